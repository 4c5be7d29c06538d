package layout

import (
	"bytes"
	"context"
	"strings"
	"unicode"

	"github.com/athapong/docfuse/pkg/model"
	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// US Letter, used when a page carries no MediaBox
const (
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

// PDFRenderer locates phrase texts in the glyph runs of a PDF. Phrases are
// aligned in order: each one is searched for after the end of the previous
// match, ignoring whitespace. Images are not located.
type PDFRenderer struct {
	logger *logrus.Logger
}

// NewPDFRenderer creates a renderer backed by ledongthuc/pdf
func NewPDFRenderer(logger *logrus.Logger) *PDFRenderer {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &PDFRenderer{logger: logger}
}

type glyph struct {
	page int
	box  model.BBox
}

// Render implements Renderer
func (r *PDFRenderer) Render(ctx context.Context, req Request) (out *Layout, err error) {
	if len(req.PDF) == 0 {
		return nil, errors.New("no PDF content to render")
	}
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, errors.Errorf("malformed PDF: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(req.PDF), int64(len(req.PDF)))
	if err != nil {
		return nil, errors.Wrap(err, "open PDF")
	}

	layout := &Layout{}
	var runes []rune
	var glyphs []glyph

	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := reader.Page(pageIndex)
		if p.V.IsNull() {
			continue
		}
		width, height := mediaBox(p.V)
		layout.Pages = append(layout.Pages, model.Page{Number: pageIndex, Width: width, Height: height})

		for _, t := range p.Content().Text {
			box := model.BBox{
				Left:   t.X,
				Top:    height - (t.Y + t.FontSize),
				Right:  t.X + t.W,
				Bottom: height - t.Y,
			}
			for _, ch := range t.S {
				if unicode.IsSpace(ch) {
					continue
				}
				runes = append(runes, ch)
				glyphs = append(glyphs, glyph{page: pageIndex, box: box})
			}
		}
	}

	layout.Units = alignTexts(req.Texts, runes, glyphs)

	r.logger.WithFields(logrus.Fields{
		"document": req.Name,
		"pages":    len(layout.Pages),
		"located":  len(layout.Units),
		"phrases":  len(req.Texts),
	}).Debug("PDF rendered")

	return layout, nil
}

// alignTexts matches each text, whitespace removed, against the glyph stream
// starting where the previous match ended
func alignTexts(texts []string, runes []rune, glyphs []glyph) []Unit {
	haystack := string(runes)
	// byte offset in haystack -> rune index
	runeAt := make(map[int]int, len(runes))
	offset := 0
	for i, ch := range runes {
		runeAt[offset] = i
		offset += len(string(ch))
	}

	var units []Unit
	cursor := 0
	for ordinal, text := range texts {
		needle := strings.Map(func(ch rune) rune {
			if unicode.IsSpace(ch) {
				return -1
			}
			return ch
		}, text)
		if needle == "" {
			continue
		}
		idx := strings.Index(haystack[cursor:], needle)
		if idx < 0 {
			continue
		}
		start := runeAt[cursor+idx]
		end := start + len([]rune(needle))
		page := glyphs[start].page
		var box model.BBox
		for _, g := range glyphs[start:end] {
			if g.page == page {
				box = box.Union(g.box)
			}
		}
		units = append(units, Unit{Kind: TextUnit, Ordinal: ordinal, Page: page, BBox: box})
		cursor += idx + len(needle)
	}
	return units
}

func mediaBox(v pdf.Value) (float64, float64) {
	for node := v; !node.IsNull(); node = node.Key("Parent") {
		mb := node.Key("MediaBox")
		if mb.Len() == 4 {
			w := mb.Index(2).Float64() - mb.Index(0).Float64()
			h := mb.Index(3).Float64() - mb.Index(1).Float64()
			if w > 0 && h > 0 {
				return w, h
			}
		}
	}
	return defaultPageWidth, defaultPageHeight
}
