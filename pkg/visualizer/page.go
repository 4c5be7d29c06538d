// Package visualizer renders the pages of a document as SVG with candidate
// arguments highlighted.
package visualizer

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"github.com/athapong/docfuse/pkg/model"
	"github.com/pkg/errors"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>{{.Document}}</title>
    <style>
        body { margin: 0; font-family: Arial, sans-serif; background-color: #f5f5f5; }
        .page { margin: 16px; background-color: #fff; box-shadow: 0 0 10px rgba(0,0,0,0.1); }
        .phrase { fill: none; stroke: #bbb; stroke-width: 0.5px; }
        .figure { fill: none; stroke: #69c; stroke-dasharray: 4 2; }
        .arg { fill-opacity: 0.25; stroke-width: 1.5px; }
        .arg-0 { fill: #e41a1c; stroke: #e41a1c; }
        .arg-1 { fill: #377eb8; stroke: #377eb8; }
        .arg-2 { fill: #4daf4a; stroke: #4daf4a; }
        .arg-n { fill: #984ea3; stroke: #984ea3; }
    </style>
</head>
<body>
    <h3>{{.Document}}: {{.Candidates}} candidate(s)</h3>
    {{range .Pages}}
    <svg class="page" width="{{.Width}}" height="{{.Height}}" viewBox="0 0 {{.Width}} {{.Height}}">
        <text x="4" y="12" font-size="10">page {{.Number}}</text>
        {{range .Boxes}}<rect class="{{.Class}}" x="{{.X}}" y="{{.Y}}" width="{{.W}}" height="{{.H}}"><title>{{.Title}}</title></rect>
        {{end}}
    </svg>
    {{end}}
</body>
</html>
`

var pageTmpl = template.Must(template.New("pages").Parse(pageTemplate))

type box struct {
	Class string
	X, Y  float64
	W, H  float64
	Title string
}

type page struct {
	Number int
	Width  float64
	Height float64
	Boxes  []box
}

type view struct {
	Document   string
	Candidates int
	Pages      []*page
}

// Render writes the HTML page view of doc to w. records must belong to doc;
// their arguments are drawn over the phrase and figure boxes.
func Render(w io.Writer, doc *model.Document, records []model.CandidateRecord) error {
	if !doc.Modalities.Has(model.Visual) {
		return errors.Errorf("document %s has no visual modality", doc.Name)
	}

	v := view{Document: doc.Name, Candidates: len(records)}
	pages := make(map[int]*page, len(doc.Pages))
	for _, p := range doc.Pages {
		pg := &page{Number: p.Number, Width: p.Width, Height: p.Height}
		pages[p.Number] = pg
		v.Pages = append(v.Pages, pg)
	}
	add := func(va *model.VisualAttrs, class, title string) {
		if va == nil {
			return
		}
		if pg, ok := pages[va.Page]; ok {
			b := va.BBox
			pg.Boxes = append(pg.Boxes, box{Class: class, X: b.Left, Y: b.Top, W: b.Width(), H: b.Height(), Title: title})
		}
	}

	for _, p := range doc.Phrases {
		add(p.Visual, "phrase", p.Text)
	}
	for _, f := range doc.Figures {
		add(f.Visual, "figure", f.URL)
	}

	for _, r := range records {
		if r.Document != doc.Name {
			return errors.Errorf("candidate %s belongs to %s, not %s", r.Key, r.Document, doc.Name)
		}
		for i, ref := range r.Args {
			c, err := ref.Resolve(doc)
			if err != nil {
				return errors.Wrapf(err, "candidate %s", r.Key)
			}
			class := "arg arg-n"
			if i < 3 {
				class = fmt.Sprintf("arg arg-%d", i)
			}
			title := fmt.Sprintf("%s #%d arg %d: %s", r.Relation, r.Position, i, c.Text())
			if cell, ok := c.(*model.CellContext); ok {
				// a cell is drawn through its phrases
				if cl := cell.Cell(); cl != nil {
					for _, pi := range cl.Phrases {
						add(doc.Phrases[pi].Visual, class, title)
					}
				}
				continue
			}
			add(model.VisualOf(c), class, title)
		}
	}

	return pageTmpl.Execute(w, v)
}

// PageVisualizer writes page views to a file
type PageVisualizer struct {
	outputPath string
}

// NewPageVisualizer creates a visualizer writing to outputPath
func NewPageVisualizer(outputPath string) *PageVisualizer {
	return &PageVisualizer{
		outputPath: outputPath,
	}
}

// Visualize renders doc with its candidates to the output file
func (v *PageVisualizer) Visualize(doc *model.Document, records []model.CandidateRecord) error {
	if err := os.MkdirAll(filepath.Dir(v.outputPath), 0755); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := Render(&buf, doc, records); err != nil {
		return err
	}
	return os.WriteFile(v.outputPath, buf.Bytes(), 0644)
}
