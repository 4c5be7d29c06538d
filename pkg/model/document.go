package model

import (
	"strings"

	"github.com/pkg/errors"
)

// Modality is a bit set of the signal families fused into a Document
type Modality uint8

const (
	Structural Modality = 1 << iota
	Lingual
	Visual

	AllModalities = Structural | Lingual | Visual
)

// Has reports whether every modality in m is enabled
func (m Modality) Has(other Modality) bool {
	return m&other == other
}

func (m Modality) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	if m.Has(Structural) {
		parts = append(parts, "structural")
	}
	if m.Has(Lingual) {
		parts = append(parts, "lingual")
	}
	if m.Has(Visual) {
		parts = append(parts, "visual")
	}
	return strings.Join(parts, ",")
}

// ParseModalities parses a comma separated modality list. "full" and "all"
// enable every modality.
func ParseModalities(s string) (Modality, error) {
	var m Modality
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "":
		case "full", "all":
			m |= AllModalities
		case "structural":
			m |= Structural
		case "lingual":
			m |= Lingual
		case "visual":
			m |= Visual
		default:
			return 0, errors.Errorf("unknown modality %q", part)
		}
	}
	return m, nil
}

// Split labels the data partition a Document or Candidate belongs to
type Split string

const (
	SplitUnassigned Split = ""
	SplitTrain      Split = "train"
	SplitDev        Split = "dev"
	SplitTest       Split = "test"
)

// ParseSplit validates a split label
func ParseSplit(s string) (Split, error) {
	switch sp := Split(strings.ToLower(strings.TrimSpace(s))); sp {
	case SplitTrain, SplitDev, SplitTest:
		return sp, nil
	default:
		return SplitUnassigned, errors.Errorf("unknown split %q", s)
	}
}

// Document is the unified multimodal representation of one source file
type Document struct {
	Name       string   `json:"name"`
	Source     string   `json:"source,omitempty"`
	Modalities Modality `json:"modalities"`
	Split      Split    `json:"split,omitempty"`
	Pages      []Page   `json:"pages,omitempty"`
	Phrases    []Phrase `json:"phrases"`
	Tables     []Table  `json:"tables,omitempty"`
	Figures    []Figure `json:"figures,omitempty"`
}

// Phrase is a sentence-level text unit
type Phrase struct {
	Position    int              `json:"position"`
	Text        string           `json:"text"`
	Words       []string         `json:"words"`
	CharOffsets []int            `json:"char_offsets"`
	Lingual     *LingualAttrs    `json:"lingual,omitempty"`
	Structural  *StructuralAttrs `json:"structural,omitempty"`
	Cell        *CellRef         `json:"cell,omitempty"`
	Visual      *VisualAttrs     `json:"visual,omitempty"`
}

// LingualAttrs holds per-token annotations parallel to Phrase.Words
type LingualAttrs struct {
	Lemmas  []string  `json:"lemmas"`
	POSTags []string  `json:"pos_tags"`
	NERTags []string  `json:"ner_tags"`
	Deps    []DepEdge `json:"deps,omitempty"`
}

// DepEdge is a dependency arc between two tokens of the same phrase.
// The root token has no incoming edge.
type DepEdge struct {
	Head      int    `json:"head"`
	Dependent int    `json:"dependent"`
	Label     string `json:"label"`
}

// StructuralAttrs places an element inside the DOM hierarchy
type StructuralAttrs struct {
	Tag   string   `json:"tag"`
	XPath string   `json:"xpath"`
	Attrs []string `json:"attrs,omitempty"`
}

// Ancestors returns the tag names along XPath from the root down to the element
func (s *StructuralAttrs) Ancestors() []string {
	if s == nil {
		return nil
	}
	var tags []string
	for _, step := range strings.Split(strings.Trim(s.XPath, "/"), "/") {
		if step == "" {
			continue
		}
		if i := strings.IndexByte(step, '['); i >= 0 {
			step = step[:i]
		}
		tags = append(tags, step)
	}
	return tags
}

// VisualAttrs places an element on a rendered page
type VisualAttrs struct {
	Page int  `json:"page"`
	BBox BBox `json:"bbox"`
}

// CellRef points at a table cell by ordinal; it does not own the cell
type CellRef struct {
	Table int `json:"table"`
	Cell  int `json:"cell"`
}

// Table owns an ordered grid of cells
type Table struct {
	Position   int              `json:"position"`
	Cells      []Cell           `json:"cells"`
	Structural *StructuralAttrs `json:"structural,omitempty"`
}

// Largest rowspan and colspan a cell may have, as in HTML
const (
	MaxRowSpan = 65534
	MaxColSpan = 1000
)

// Cell covers the inclusive grid range [RowStart,RowEnd]x[ColStart,ColEnd]
type Cell struct {
	Position   int              `json:"position"`
	RowStart   int              `json:"row_start"`
	RowEnd     int              `json:"row_end"`
	ColStart   int              `json:"col_start"`
	ColEnd     int              `json:"col_end"`
	Phrases    []int            `json:"phrases,omitempty"`
	Structural *StructuralAttrs `json:"structural,omitempty"`
}

// Figure is an embedded image
type Figure struct {
	Position   int              `json:"position"`
	URL        string           `json:"url"`
	Kind       string           `json:"kind,omitempty"`
	Visual     *VisualAttrs     `json:"visual,omitempty"`
	Structural *StructuralAttrs `json:"structural,omitempty"`
}

// Phrase returns the phrase at position, or nil
func (d *Document) Phrase(position int) *Phrase {
	if position < 0 || position >= len(d.Phrases) {
		return nil
	}
	return &d.Phrases[position]
}

// Cell resolves a cell reference, or returns nil
func (d *Document) Cell(ref CellRef) *Cell {
	if ref.Table < 0 || ref.Table >= len(d.Tables) {
		return nil
	}
	t := &d.Tables[ref.Table]
	if ref.Cell < 0 || ref.Cell >= len(t.Cells) {
		return nil
	}
	return &t.Cells[ref.Cell]
}

// Validate checks the cross-entity invariants of the model
func (d *Document) Validate() error {
	if d.Name == "" {
		return errors.New("document has no name")
	}
	cellOf := make(map[int]CellRef)
	for ti, t := range d.Tables {
		if t.Position != ti {
			return errors.Errorf("table %d has position %d", ti, t.Position)
		}
		grid := make(map[[2]int]int)
		for ci, c := range t.Cells {
			if c.Position != ci {
				return errors.Errorf("table %d: cell %d has position %d", ti, ci, c.Position)
			}
			if c.RowStart < 0 || c.ColStart < 0 || c.RowEnd < c.RowStart || c.ColEnd < c.ColStart {
				return errors.Errorf("table %d: cell %d has invalid span", ti, ci)
			}
			if c.RowEnd-c.RowStart >= MaxRowSpan || c.ColEnd-c.ColStart >= MaxColSpan {
				return errors.Errorf("table %d: cell %d spans too many rows or columns", ti, ci)
			}
			for r := c.RowStart; r <= c.RowEnd; r++ {
				for col := c.ColStart; col <= c.ColEnd; col++ {
					if other, taken := grid[[2]int{r, col}]; taken {
						return errors.Errorf("table %d: cells %d and %d both claim (%d,%d)", ti, other, ci, r, col)
					}
					grid[[2]int{r, col}] = ci
				}
			}
			for _, p := range c.Phrases {
				if p < 0 || p >= len(d.Phrases) {
					return errors.Errorf("table %d: cell %d references missing phrase %d", ti, ci, p)
				}
				if prev, dup := cellOf[p]; dup {
					return errors.Errorf("phrase %d placed in two cells (%v, %v)", p, prev, CellRef{ti, ci})
				}
				cellOf[p] = CellRef{Table: ti, Cell: ci}
			}
		}
	}
	for i := range d.Phrases {
		p := &d.Phrases[i]
		if p.Position != i {
			return errors.Errorf("phrase %d has position %d", i, p.Position)
		}
		if err := p.validate(); err != nil {
			return errors.Wrapf(err, "phrase %d", i)
		}
		if p.Cell != nil {
			if d.Cell(*p.Cell) == nil {
				return errors.Errorf("phrase %d references missing cell %v", i, *p.Cell)
			}
			if ref, ok := cellOf[i]; !ok || ref != *p.Cell {
				return errors.Errorf("phrase %d cell reference %v is not mirrored by the cell", i, *p.Cell)
			}
		}
		if p.Visual != nil {
			if err := d.checkPage(p.Visual.Page); err != nil {
				return errors.Wrapf(err, "phrase %d", i)
			}
		}
	}
	for i, f := range d.Figures {
		if f.Position != i {
			return errors.Errorf("figure %d has position %d", i, f.Position)
		}
		if f.Visual != nil {
			if err := d.checkPage(f.Visual.Page); err != nil {
				return errors.Wrapf(err, "figure %d", i)
			}
		}
	}
	return nil
}

func (d *Document) checkPage(n int) error {
	for _, p := range d.Pages {
		if p.Number == n {
			return nil
		}
	}
	return errors.Errorf("bounding box references non-existent page %d", n)
}

func (p *Phrase) validate() error {
	n := len(p.Words)
	if len(p.CharOffsets) != n {
		return errors.Errorf("%d char offsets for %d words", len(p.CharOffsets), n)
	}
	if l := p.Lingual; l != nil {
		if len(l.Lemmas) != n || len(l.POSTags) != n || len(l.NERTags) != n {
			return errors.Errorf("lingual arrays (%d lemmas, %d pos, %d ner) do not match %d words",
				len(l.Lemmas), len(l.POSTags), len(l.NERTags), n)
		}
		for _, e := range l.Deps {
			if e.Head < 0 || e.Head >= n || e.Dependent < 0 || e.Dependent >= n {
				return errors.Errorf("dependency edge %d->%d outside %d tokens", e.Head, e.Dependent, n)
			}
		}
	}
	return nil
}
