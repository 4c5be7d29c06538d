// Package rules compiles declarative YAML relation definitions into
// extractor inputs.
package rules

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/athapong/docfuse/pkg/candidates"
	"github.com/athapong/docfuse/pkg/matchers"
	"github.com/athapong/docfuse/pkg/model"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a rules file
type File struct {
	Relations []RelationSpec `yaml:"relations"`
}

// RelationSpec declares one relation
type RelationSpec struct {
	Name        string         `yaml:"name"`
	Arguments   []ArgumentSpec `yaml:"arguments"`
	Distances   []DistanceSpec `yaml:"distances"`
	Throttlers  []string       `yaml:"throttlers"`
	AllowSelf   bool           `yaml:"allow_self"`
	AllowNested bool           `yaml:"allow_nested"`
	Asymmetric  bool           `yaml:"asymmetric"`
}

// ArgumentSpec declares one argument of a relation
type ArgumentSpec struct {
	Name    string       `yaml:"name"`
	Space   SpaceSpec    `yaml:"space"`
	Matcher *MatcherSpec `yaml:"matcher"`
}

// SpaceSpec mirrors candidates.Space
type SpaceSpec struct {
	Modality    string   `yaml:"modality"`
	NMax        int      `yaml:"n_max"`
	SplitTokens string   `yaml:"split_tokens"`
	FigureKinds []string `yaml:"figure_kinds"`
}

// DistanceSpec bounds the phrase distance between two named arguments.
// A nil Max is unbounded.
type DistanceSpec struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Min  int    `yaml:"min"`
	Max  *int   `yaml:"max"`
}

// MatcherSpec is one node of a matcher tree. Exactly one primitive or
// combinator must be set; the remaining fields are modifiers.
type MatcherSpec struct {
	Regex          string          `yaml:"regex"`
	RegexEach      string          `yaml:"regex_each"`
	Dictionary     []string        `yaml:"dictionary"`
	DictionaryFile string          `yaml:"dictionary_file"`
	NER            []string        `yaml:"ner"`
	POS            []string        `yaml:"pos"`
	Dependency     *DependencySpec `yaml:"dependency"`
	FigureKind     []string        `yaml:"figure_kind"`
	Ancestor       string          `yaml:"ancestor"`
	InTable        bool            `yaml:"in_table"`
	Page           int             `yaml:"page"`
	Everything     bool            `yaml:"everything"`
	All            []MatcherSpec   `yaml:"all"`
	Any            []MatcherSpec   `yaml:"any"`
	Not            *MatcherSpec    `yaml:"not"`

	IgnoreCase bool `yaml:"ignore_case"`
	Search     bool `yaml:"search"`
	FoldCase   bool `yaml:"fold_case"`
	Lemmas     bool `yaml:"lemmas"`
}

// DependencySpec selects tokens by dependency label and head lemma
type DependencySpec struct {
	Label string `yaml:"label"`
	Head  string `yaml:"head"`
}

// Definition is a compiled relation ready for candidates.NewExtractor
type Definition struct {
	Relation  model.Relation
	Arguments []candidates.Argument
	// Throttler is nil when the relation declares none
	Throttler candidates.Throttler
}

// Extractor builds the extractor for the definition
func (d *Definition) Extractor(store candidates.CandidateStore, opts ...candidates.Option) (*candidates.Extractor, error) {
	if d.Throttler != nil {
		opts = append([]candidates.Option{candidates.WithThrottler(d.Throttler)}, opts...)
	}
	return candidates.NewExtractor(d.Relation, d.Arguments, store, opts...)
}

// Set is a compiled rules file
type Set struct {
	defs   []*Definition
	byName map[string]*Definition
}

// Names returns the relation names in file order
func (s *Set) Names() []string {
	out := make([]string, len(s.defs))
	for i, d := range s.defs {
		out[i] = d.Relation.Name
	}
	return out
}

// Lookup returns the definition of a relation
func (s *Set) Lookup(name string) (*Definition, bool) {
	d, ok := s.byName[name]
	return d, ok
}

// Load reads and compiles a rules file. Dictionary files are resolved
// relative to its directory.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read rules %s", path)
	}
	set, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, errors.Wrapf(err, "rules %s", path)
	}
	return set, nil
}

// Parse compiles rules from YAML
func Parse(data []byte, baseDir string) (*Set, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Wrap(err, "parse rules")
	}
	if len(f.Relations) == 0 {
		return nil, errors.New("no relations defined")
	}

	c := &compiler{baseDir: baseDir}
	set := &Set{byName: make(map[string]*Definition)}
	for _, r := range f.Relations {
		if _, dup := set.byName[r.Name]; dup {
			return nil, errors.Errorf("relation %s defined twice", r.Name)
		}
		def, err := c.relation(r)
		if err != nil {
			return nil, errors.Wrapf(err, "relation %s", r.Name)
		}
		set.defs = append(set.defs, def)
		set.byName[r.Name] = def
	}
	return set, nil
}

type compiler struct {
	baseDir string
}

func (c *compiler) relation(r RelationSpec) (*Definition, error) {
	rel := model.Relation{
		Name:        r.Name,
		AllowSelf:   r.AllowSelf,
		AllowNested: r.AllowNested,
		Asymmetric:  r.Asymmetric,
	}
	index := make(map[string]int, len(r.Arguments))
	args := make([]candidates.Argument, 0, len(r.Arguments))
	for i, a := range r.Arguments {
		rel.ArgNames = append(rel.ArgNames, a.Name)
		index[a.Name] = i

		var m matchers.Matcher
		if a.Matcher != nil {
			var err error
			if m, err = c.matcher(*a.Matcher); err != nil {
				return nil, errors.Wrapf(err, "argument %s", a.Name)
			}
		}
		args = append(args, candidates.Argument{
			Space: candidates.Space{
				Modality:    candidates.SpaceModality(strings.ToLower(a.Space.Modality)),
				NMax:        a.Space.NMax,
				SplitTokens: a.Space.SplitTokens,
				FigureKinds: a.Space.FigureKinds,
			},
			Matcher: m,
		})
	}

	for _, d := range r.Distances {
		from, ok := index[d.From]
		if !ok {
			return nil, errors.Errorf("distance references unknown argument %q", d.From)
		}
		to, ok := index[d.To]
		if !ok {
			return nil, errors.Errorf("distance references unknown argument %q", d.To)
		}
		upper := -1
		if d.Max != nil {
			upper = *d.Max
		}
		rel.Distances = append(rel.Distances, model.DistanceConstraint{A: from, B: to, Min: d.Min, Max: upper})
	}
	if err := rel.Validate(); err != nil {
		return nil, err
	}

	def := &Definition{Relation: rel, Arguments: args}
	if len(r.Throttlers) > 0 {
		ts := make([]candidates.Throttler, 0, len(r.Throttlers))
		for _, name := range r.Throttlers {
			t, ok := throttlers[name]
			if !ok {
				return nil, errors.Errorf("unknown throttler %q (known: %s)", name, strings.Join(throttlerNames(), ", "))
			}
			ts = append(ts, t())
		}
		def.Throttler = candidates.AllOf(ts...)
	}
	// spaces and distance constraints are checked by the extractor itself
	if _, err := def.Extractor(nil); err != nil {
		return nil, err
	}
	return def, nil
}

var throttlers = map[string]func() candidates.Throttler{
	"same_phrase": candidates.SamePhrase,
	"same_table":  candidates.SameTable,
	"same_row":    candidates.SameRow,
	"same_col":    candidates.SameCol,
	"same_page":   candidates.SamePage,
	"aligned":     candidates.Aligned,
}

func throttlerNames() []string {
	names := make([]string, 0, len(throttlers))
	for n := range throttlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c *compiler) matcher(s MatcherSpec) (matchers.Matcher, error) {
	var built []matchers.Matcher
	add := func(m matchers.Matcher) { built = append(built, m) }

	var regexOpts []matchers.RegexOption
	if s.IgnoreCase {
		regexOpts = append(regexOpts, matchers.IgnoreCase())
	}
	if s.Search {
		regexOpts = append(regexOpts, matchers.Search())
	}
	var dictOpts []matchers.DictionaryOption
	if s.FoldCase {
		dictOpts = append(dictOpts, matchers.FoldCase())
	}
	if s.Lemmas {
		dictOpts = append(dictOpts, matchers.UseLemmas())
	}

	if s.Regex != "" {
		m, err := matchers.Regex(s.Regex, regexOpts...)
		if err != nil {
			return nil, err
		}
		add(m)
	}
	if s.RegexEach != "" {
		m, err := matchers.RegexEach(s.RegexEach, regexOpts...)
		if err != nil {
			return nil, err
		}
		add(m)
	}
	if s.Dictionary != nil || s.DictionaryFile != "" {
		entries := s.Dictionary
		if s.DictionaryFile != "" {
			more, err := c.readDictionary(s.DictionaryFile)
			if err != nil {
				return nil, err
			}
			entries = append(append([]string(nil), entries...), more...)
		}
		add(matchers.Dictionary(entries, dictOpts...))
	}
	if len(s.NER) > 0 {
		add(matchers.NER(s.NER...))
	}
	if len(s.POS) > 0 {
		add(matchers.POS(s.POS...))
	}
	if s.Dependency != nil {
		if s.Dependency.Label == "" {
			return nil, errors.New("dependency matcher needs a label")
		}
		add(matchers.Dependency(s.Dependency.Label, s.Dependency.Head))
	}
	if len(s.FigureKind) > 0 {
		add(matchers.FigureKind(s.FigureKind...))
	}
	if s.Ancestor != "" {
		add(matchers.AncestorTag(s.Ancestor))
	}
	if s.InTable {
		add(matchers.InTable())
	}
	if s.Page > 0 {
		add(matchers.OnPage(s.Page))
	}
	if s.Everything {
		add(matchers.Everything())
	}
	if len(s.All) > 0 {
		children, err := c.matchers(s.All)
		if err != nil {
			return nil, errors.Wrap(err, "all")
		}
		add(matchers.All(children...))
	}
	if len(s.Any) > 0 {
		children, err := c.matchers(s.Any)
		if err != nil {
			return nil, errors.Wrap(err, "any")
		}
		add(matchers.Any(children...))
	}
	if s.Not != nil {
		child, err := c.matcher(*s.Not)
		if err != nil {
			return nil, errors.Wrap(err, "not")
		}
		add(matchers.Not(child))
	}

	switch len(built) {
	case 0:
		return nil, errors.New("matcher node sets no matcher")
	case 1:
		return built[0], nil
	default:
		return nil, errors.Errorf("matcher node sets %d matchers; combine them with all or any", len(built))
	}
}

func (c *compiler) matchers(specs []MatcherSpec) ([]matchers.Matcher, error) {
	out := make([]matchers.Matcher, 0, len(specs))
	for i, s := range specs {
		m, err := c.matcher(s)
		if err != nil {
			return nil, errors.Wrapf(err, "[%d]", i)
		}
		out = append(out, m)
	}
	return out, nil
}

// readDictionary reads one entry per line, skipping blanks and # comments
func (c *compiler) readDictionary(name string) ([]string, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.baseDir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open dictionary %s", name)
	}
	defer f.Close()

	var entries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	return entries, errors.Wrapf(sc.Err(), "read dictionary %s", name)
}
