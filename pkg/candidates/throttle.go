package candidates

import (
	"github.com/athapong/docfuse/pkg/model"
)

// Throttler prunes argument tuples that passed the matchers
type Throttler interface {
	Allow(args []model.Context) bool
}

// ThrottlerFunc adapts a plain function to a Throttler
type ThrottlerFunc func(args []model.Context) bool

func (f ThrottlerFunc) Allow(args []model.Context) bool {
	return f(args)
}

// AllOf allows a tuple when every throttler does
func AllOf(ts ...Throttler) Throttler {
	return ThrottlerFunc(func(args []model.Context) bool {
		for _, t := range ts {
			if !t.Allow(args) {
				return false
			}
		}
		return true
	})
}

// SamePhrase keeps tuples whose arguments all sit in one phrase
func SamePhrase() Throttler {
	return ThrottlerFunc(func(args []model.Context) bool {
		first, ok := model.Position(args[0])
		if !ok {
			return false
		}
		for _, a := range args[1:] {
			if p, ok := model.Position(a); !ok || p != first {
				return false
			}
		}
		return true
	})
}

// SameTable keeps tuples whose arguments all sit in cells of one table
func SameTable() Throttler {
	return ThrottlerFunc(func(args []model.Context) bool {
		return allCells(args, func(a, b model.CellRef, _, _ *model.Cell) bool {
			return a.Table == b.Table
		})
	})
}

// SameRow keeps tuples whose cells share a row of one table
func SameRow() Throttler {
	return ThrottlerFunc(func(args []model.Context) bool {
		return allCells(args, func(a, b model.CellRef, ca, cb *model.Cell) bool {
			return a.Table == b.Table && ca.RowStart <= cb.RowEnd && cb.RowStart <= ca.RowEnd
		})
	})
}

// SameCol keeps tuples whose cells share a column of one table
func SameCol() Throttler {
	return ThrottlerFunc(func(args []model.Context) bool {
		return allCells(args, func(a, b model.CellRef, ca, cb *model.Cell) bool {
			return a.Table == b.Table && ca.ColStart <= cb.ColEnd && cb.ColStart <= ca.ColEnd
		})
	})
}

// allCells checks pred between the first argument's cell and every other
func allCells(args []model.Context, pred func(a, b model.CellRef, ca, cb *model.Cell) bool) bool {
	first, ok := model.CellOf(args[0])
	if !ok {
		return false
	}
	doc := args[0].Document()
	firstCell := doc.Cell(first)
	if firstCell == nil {
		return false
	}
	for _, a := range args[1:] {
		ref, ok := model.CellOf(a)
		if !ok {
			return false
		}
		cell := doc.Cell(ref)
		if cell == nil || !pred(first, ref, firstCell, cell) {
			return false
		}
	}
	return true
}

// SamePage keeps tuples whose arguments were all placed on one page
func SamePage() Throttler {
	return ThrottlerFunc(func(args []model.Context) bool {
		first := model.VisualOf(args[0])
		if first == nil {
			return false
		}
		for _, a := range args[1:] {
			if v := model.VisualOf(a); v == nil || v.Page != first.Page {
				return false
			}
		}
		return true
	})
}

// Aligned keeps tuples whose arguments share a page and are horizontally
// aligned with the first argument, e.g. a label and its value on one line
func Aligned() Throttler {
	return ThrottlerFunc(func(args []model.Context) bool {
		first := model.VisualOf(args[0])
		if first == nil {
			return false
		}
		for _, a := range args[1:] {
			v := model.VisualOf(a)
			if v == nil || v.Page != first.Page || !first.BBox.HorizontallyAligned(v.BBox) {
				return false
			}
		}
		return true
	})
}
