package parser

import (
	"bytes"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/athapong/docfuse/pkg/model"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

var (
	// skippedTags never contribute phrases or figures
	skippedTags = mapset.NewSet("head", "script", "style", "noscript", "template", "#comment")

	// inlineTags are folded into the text of their enclosing block
	inlineTags = mapset.NewSet(
		"a", "abbr", "b", "bdi", "bdo", "cite", "code", "data", "dfn", "em", "font",
		"i", "kbd", "mark", "q", "s", "samp", "small", "span", "strong", "sub", "sup",
		"time", "u", "var", "wbr",
	)
)

// structureWalker builds the phrase, table, cell and figure skeleton of a
// document from its markup
type structureWalker struct {
	doc        *model.Document
	segmenter  Segmenter
	structural bool
}

// parseStructure establishes phrase, table, cell and figure containment.
// Structural attributes are only recorded when keepAttrs is set; phrase
// tokens are left to the lingual stage.
func parseStructure(name string, html []byte, seg Segmenter, keepAttrs bool) (*model.Document, error) {
	dom, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create document from HTML content")
	}

	w := &structureWalker{
		doc:        &model.Document{Name: name},
		segmenter:  seg,
		structural: keepAttrs,
	}
	root := dom.Find("html").First()
	if root.Length() == 0 {
		root = dom.Selection
	}
	if err := w.visitBlock(root, nil); err != nil {
		return nil, err
	}
	return w.doc, nil
}

// visitBlock collects the inline text of a block element into phrases and
// descends into nested blocks, tables and images in document order
func (w *structureWalker) visitBlock(block *goquery.Selection, cell *model.CellRef) error {
	var buf strings.Builder
	flush := func() error {
		text := buf.String()
		buf.Reset()
		return w.emit(text, block, cell)
	}

	var err error
	block.Contents().EachWithBreak(func(_ int, child *goquery.Selection) bool {
		name := goquery.NodeName(child)
		switch {
		case name == "#text":
			buf.WriteString(child.Text())
		case skippedTags.Contains(name):
		case name == "br":
			buf.WriteByte(' ')
		case name == "img":
			w.addFigure(child)
		case inlineTags.Contains(name):
			buf.WriteString(child.Text())
			child.Find("img").Each(func(_ int, img *goquery.Selection) {
				w.addFigure(img)
			})
		case name == "table":
			if err = flush(); err != nil {
				return false
			}
			err = w.visitTable(child)
		default:
			if err = flush(); err != nil {
				return false
			}
			err = w.visitBlock(child, cell)
		}
		return err == nil
	})
	if err != nil {
		return err
	}
	return flush()
}

// visitTable lays the cells of a table out on a grid, honouring rowspan and
// colspan, then parses every cell as a block
func (w *structureWalker) visitTable(table *goquery.Selection) error {
	ti := len(w.doc.Tables)
	w.doc.Tables = append(w.doc.Tables, model.Table{Position: ti, Structural: w.attrs(table)})

	rows := table.Find("tr").FilterFunction(func(_ int, row *goquery.Selection) bool {
		return row.Closest("table").IsSelection(table)
	})

	occupied := make(map[[2]int]bool)
	type placed struct {
		sel *goquery.Selection
		ref model.CellRef
	}
	var cells []placed

	rows.Each(func(r int, row *goquery.Selection) {
		col := 0
		row.ChildrenFiltered("td, th").Each(func(_ int, td *goquery.Selection) {
			for occupied[[2]int{r, col}] {
				col++
			}
			rowSpan, colSpan := span(td, "rowspan", model.MaxRowSpan), span(td, "colspan", model.MaxColSpan)
			if left := rows.Length() - r; rowSpan > left {
				rowSpan = left
			}
			ci := len(w.doc.Tables[ti].Cells)
			w.doc.Tables[ti].Cells = append(w.doc.Tables[ti].Cells, model.Cell{
				Position:   ci,
				RowStart:   r,
				RowEnd:     r + rowSpan - 1,
				ColStart:   col,
				ColEnd:     col + colSpan - 1,
				Structural: w.attrs(td),
			})
			for dr := 0; dr < rowSpan; dr++ {
				for dc := 0; dc < colSpan; dc++ {
					occupied[[2]int{r + dr, col + dc}] = true
				}
			}
			col += colSpan
			cells = append(cells, placed{sel: td, ref: model.CellRef{Table: ti, Cell: ci}})
		})
	})

	// cells are parsed after the grid is complete so nested tables get
	// their own positions after this one
	for _, c := range cells {
		ref := c.ref
		if err := w.visitBlock(c.sel, &ref); err != nil {
			return err
		}
	}

	// a caption belongs to the table but to no cell
	var err error
	table.ChildrenFiltered("caption").EachWithBreak(func(_ int, caption *goquery.Selection) bool {
		err = w.visitBlock(caption, nil)
		return err == nil
	})
	return err
}

// emit normalises block text, splits it into sentences and appends one
// phrase per sentence
func (w *structureWalker) emit(text string, block *goquery.Selection, cell *model.CellRef) error {
	text = norm.NFC.String(strings.Join(strings.Fields(text), " "))
	if text == "" {
		return nil
	}
	sentences, err := w.segmenter.Segment(text)
	if err != nil {
		return errors.Wrap(err, "segment block text")
	}

	attrs := w.attrs(block)
	for _, s := range sentences {
		p := model.Phrase{Position: len(w.doc.Phrases), Text: s, Structural: attrs}
		if cell != nil {
			ref := *cell
			p.Cell = &ref
			c := w.doc.Cell(ref)
			c.Phrases = append(c.Phrases, p.Position)
		}
		w.doc.Phrases = append(w.doc.Phrases, p)
	}
	return nil
}

func (w *structureWalker) addFigure(img *goquery.Selection) {
	src, _ := img.Attr("src")
	w.doc.Figures = append(w.doc.Figures, model.Figure{
		Position:   len(w.doc.Figures),
		URL:        src,
		Kind:       figureKind(src),
		Structural: w.attrs(img),
	})
}

// attrs returns the structural attributes of an element, or nil when the
// structural modality is disabled
func (w *structureWalker) attrs(sel *goquery.Selection) *model.StructuralAttrs {
	if !w.structural || sel.Length() == 0 {
		return nil
	}
	a := &model.StructuralAttrs{Tag: goquery.NodeName(sel), XPath: xpath(sel)}
	for _, attr := range sel.Nodes[0].Attr {
		a.Attrs = append(a.Attrs, attr.Key+"="+attr.Val)
	}
	return a
}

// xpath returns the absolute location of an element, e.g. /html/body/div[2]/p
func xpath(sel *goquery.Selection) string {
	var steps []string
	for s := sel; s.Length() > 0; s = s.Parent() {
		name := goquery.NodeName(s)
		if name == "" || name == "#document" {
			break
		}
		step := name
		if idx := s.PrevAllFiltered(name).Length() + 1; idx > 1 {
			step = fmt.Sprintf("%s[%d]", name, idx)
		}
		steps = append(steps, step)
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return "/" + strings.Join(steps, "/")
}

// span reads a rowspan or colspan attribute, clamped to [1, limit]
func span(sel *goquery.Selection, attr string, limit int) int {
	v, ok := sel.Attr(attr)
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return 1
	}
	return min(n, limit)
}

// figureKind derives the image format from a URL or data URI
func figureKind(src string) string {
	if strings.HasPrefix(src, "data:") {
		mime := strings.TrimPrefix(src, "data:")
		if i := strings.IndexAny(mime, ";,"); i >= 0 {
			mime = mime[:i]
		}
		return strings.ToLower(strings.TrimPrefix(mime, "image/"))
	}
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(src), "."))
}
