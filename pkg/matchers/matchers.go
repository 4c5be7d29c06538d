// Package matchers provides composable predicates over contexts. Matchers
// are pure: a context a matcher cannot inspect, such as a figure handed to
// a text matcher, simply does not match.
package matchers

import (
	"regexp"
	"strings"

	"github.com/athapong/docfuse/pkg/model"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
)

// Matcher decides whether a context is a valid mention
type Matcher interface {
	Match(c model.Context) bool
}

// Func adapts a plain function to a Matcher
type Func func(c model.Context) bool

func (f Func) Match(c model.Context) bool {
	if c == nil {
		return false
	}
	return f(c)
}

// Everything matches every context
func Everything() Matcher {
	return Func(func(model.Context) bool { return true })
}

type all []Matcher

func (a all) Match(c model.Context) bool {
	for _, m := range a {
		if !m.Match(c) {
			return false
		}
	}
	return true
}

// All matches when every matcher does. Evaluation stops at the first
// failing matcher, left to right.
func All(ms ...Matcher) Matcher {
	return all(ms)
}

type anyOf []Matcher

func (a anyOf) Match(c model.Context) bool {
	for _, m := range a {
		if m.Match(c) {
			return true
		}
	}
	return false
}

// Any matches when at least one matcher does
func Any(ms ...Matcher) Matcher {
	return anyOf(ms)
}

type not struct{ m Matcher }

func (n not) Match(c model.Context) bool {
	return c != nil && !n.m.Match(c)
}

// Not inverts a matcher
func Not(m Matcher) Matcher {
	return not{m: m}
}

// RegexOption customises Regex and RegexEach
type RegexOption func(*regexConfig)

type regexConfig struct {
	ignoreCase bool
	search     bool
}

// IgnoreCase matches regardless of letter case
func IgnoreCase() RegexOption { return func(c *regexConfig) { c.ignoreCase = true } }

// Search matches anywhere in the text instead of the whole text
func Search() RegexOption { return func(c *regexConfig) { c.search = true } }

func compile(pattern string, opts []RegexOption) (*regexp.Regexp, error) {
	var cfg regexConfig
	for _, o := range opts {
		o(&cfg)
	}
	expr := pattern
	if !cfg.search {
		expr = `^(?:` + expr + `)$`
	}
	if cfg.ignoreCase {
		expr = `(?i)` + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "compile %q", pattern)
	}
	return re, nil
}

type regex struct{ re *regexp.Regexp }

func (r regex) Match(c model.Context) bool {
	if c == nil {
		return false
	}
	text := c.Text()
	return text != "" && r.re.MatchString(text)
}

// Regex matches the full text of a context against pattern
func Regex(pattern string, opts ...RegexOption) (Matcher, error) {
	re, err := compile(pattern, opts)
	if err != nil {
		return nil, err
	}
	return regex{re: re}, nil
}

type regexEach struct{ re *regexp.Regexp }

func (r regexEach) Match(c model.Context) bool {
	s, ok := c.(*model.Span)
	if !ok {
		return false
	}
	words := s.Words()
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !r.re.MatchString(w) {
			return false
		}
	}
	return true
}

// RegexEach matches a span when every one of its tokens matches pattern
func RegexEach(pattern string, opts ...RegexOption) (Matcher, error) {
	re, err := compile(pattern, opts)
	if err != nil {
		return nil, err
	}
	return regexEach{re: re}, nil
}

// DictionaryOption customises Dictionary
type DictionaryOption func(*dictionary)

// FoldCase compares entries and text case-insensitively
func FoldCase() DictionaryOption { return func(d *dictionary) { d.fold = true } }

// UseLemmas compares the space-joined lemmas of a span instead of its text
func UseLemmas() DictionaryOption { return func(d *dictionary) { d.lemmas = true } }

type dictionary struct {
	entries mapset.Set[string]
	fold    bool
	lemmas  bool
}

func (d *dictionary) Match(c model.Context) bool {
	if c == nil {
		return false
	}
	text := c.Text()
	if d.lemmas {
		s, ok := c.(*model.Span)
		if !ok {
			return false
		}
		lemmas := s.Lemmas()
		if lemmas == nil {
			return false
		}
		text = strings.Join(lemmas, " ")
	}
	if d.fold {
		text = strings.ToLower(text)
	}
	return text != "" && d.entries.Contains(text)
}

// Dictionary matches contexts whose text is one of entries
func Dictionary(entries []string, opts ...DictionaryOption) Matcher {
	d := &dictionary{}
	for _, o := range opts {
		o(d)
	}
	d.entries = mapset.NewThreadUnsafeSetWithSize[string](len(entries))
	for _, e := range entries {
		e = strings.Join(strings.Fields(e), " ")
		if d.fold {
			e = strings.ToLower(e)
		}
		if e != "" {
			d.entries.Add(e)
		}
	}
	return d
}
