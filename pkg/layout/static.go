package layout

import (
	"context"

	"github.com/athapong/docfuse/pkg/model"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// StaticRenderer returns a layout computed ahead of time, e.g. by an external
// PDF-to-bbox tool whose output was stored next to the source file.
type StaticRenderer struct {
	layouts map[string]*Layout
}

// NewStaticRenderer creates a renderer serving precomputed layouts by document name
func NewStaticRenderer(layouts map[string]*Layout) *StaticRenderer {
	return &StaticRenderer{layouts: layouts}
}

// Render implements Renderer
func (s *StaticRenderer) Render(ctx context.Context, req Request) (*Layout, error) {
	l, ok := s.layouts[req.Name]
	if !ok {
		return nil, errors.Errorf("no layout for document %s", req.Name)
	}
	out := &Layout{
		Pages: append([]model.Page(nil), l.Pages...),
		Units: append([]Unit(nil), l.Units...),
	}
	return out, nil
}

// ParseLayoutJSON decodes a sidecar layout file. Bounding boxes may be given
// either as objects with left/top/right/bottom or as [left, top, right, bottom].
func ParseLayoutJSON(data []byte) (*Layout, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("layout is not valid JSON")
	}
	root := gjson.ParseBytes(data)
	out := &Layout{}

	root.Get("pages").ForEach(func(_, p gjson.Result) bool {
		out.Pages = append(out.Pages, model.Page{
			Number: int(p.Get("number").Int()),
			Width:  p.Get("width").Float(),
			Height: p.Get("height").Float(),
		})
		return true
	})

	var parseErr error
	root.Get("units").ForEach(func(_, u gjson.Result) bool {
		kind := UnitKind(u.Get("kind").String())
		if kind != TextUnit && kind != ImageUnit {
			parseErr = errors.Errorf("unit has unknown kind %q", kind)
			return false
		}
		box, err := parseBBox(u.Get("bbox"))
		if err != nil {
			parseErr = err
			return false
		}
		out.Units = append(out.Units, Unit{
			Kind:    kind,
			Ordinal: int(u.Get("ordinal").Int()),
			Page:    int(u.Get("page").Int()),
			BBox:    box,
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

func parseBBox(v gjson.Result) (model.BBox, error) {
	if v.IsArray() {
		coords := v.Array()
		if len(coords) != 4 {
			return model.BBox{}, errors.Errorf("bbox has %d coordinates", len(coords))
		}
		return model.BBox{
			Left:   coords[0].Float(),
			Top:    coords[1].Float(),
			Right:  coords[2].Float(),
			Bottom: coords[3].Float(),
		}, nil
	}
	if !v.IsObject() {
		return model.BBox{}, errors.New("unit has no bbox")
	}
	return model.BBox{
		Left:   v.Get("left").Float(),
		Top:    v.Get("top").Float(),
		Right:  v.Get("right").Float(),
		Bottom: v.Get("bottom").Float(),
	}, nil
}
