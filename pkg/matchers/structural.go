package matchers

import (
	"strings"

	"github.com/athapong/docfuse/pkg/model"
	mapset "github.com/deckarep/golang-set/v2"
)

type figureKind struct{ kinds mapset.Set[string] }

func (f figureKind) Match(c model.Context) bool {
	fc, ok := c.(*model.FigureContext)
	if !ok {
		return false
	}
	fig := fc.Figure()
	return fig != nil && f.kinds.Contains(strings.ToLower(fig.Kind))
}

// FigureKind matches figures of one of the given image formats
func FigureKind(kinds ...string) Matcher {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, k := range kinds {
		set.Add(strings.ToLower(k))
	}
	return figureKind{kinds: set}
}

type ancestorTag struct{ tag string }

func (a ancestorTag) Match(c model.Context) bool {
	var attrs *model.StructuralAttrs
	switch v := c.(type) {
	case *model.FigureContext:
		if f := v.Figure(); f != nil {
			attrs = f.Structural
		}
	case *model.CellContext:
		if cell := v.Cell(); cell != nil {
			attrs = cell.Structural
		}
	case *model.Span:
		if p := v.Phrase(); p != nil {
			attrs = p.Structural
		}
	}
	for _, t := range attrs.Ancestors() {
		if t == a.tag {
			return true
		}
	}
	return false
}

// AncestorTag matches contexts whose element is, or is nested inside, an
// element with the given tag. It needs the structural modality.
func AncestorTag(tag string) Matcher {
	return ancestorTag{tag: strings.ToLower(tag)}
}

// InTable matches contexts placed in a table cell
func InTable() Matcher {
	return Func(func(c model.Context) bool {
		_, ok := model.CellOf(c)
		return ok
	})
}

// OnPage matches contexts the visual modality placed on page
func OnPage(page int) Matcher {
	return Func(func(c model.Context) bool {
		v := model.VisualOf(c)
		return v != nil && v.Page == page
	})
}
