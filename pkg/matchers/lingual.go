package matchers

import (
	"strings"

	"github.com/athapong/docfuse/pkg/model"
	mapset "github.com/deckarep/golang-set/v2"
)

// Common entity tags as produced by CoreNLP style annotators
const (
	TagPerson       = "PERSON"
	TagOrganization = "ORG"
	TagLocation     = "GPE"
	TagDate         = "DATE"
	TagNumber       = "CARDINAL"
)

type ner struct{ tags mapset.Set[string] }

func (n ner) Match(c model.Context) bool {
	s, ok := c.(*model.Span)
	if !ok {
		return false
	}
	tags := s.NERTags()
	if len(tags) == 0 {
		return false
	}
	for _, t := range tags {
		if !n.tags.Contains(t) {
			return false
		}
	}
	return true
}

// NER matches spans whose tokens all carry one of tags
func NER(tags ...string) Matcher {
	return ner{tags: mapset.NewThreadUnsafeSet(tags...)}
}

// Person matches person names
func Person() Matcher { return NER(TagPerson, "PER") }

// Organization matches organisation names
func Organization() Matcher { return NER(TagOrganization, "ORGANIZATION") }

// Location matches places
func Location() Matcher { return NER(TagLocation, "LOC", "LOCATION") }

// Date matches dates
func Date() Matcher { return NER(TagDate) }

// Number matches numbers
func Number() Matcher { return NER(TagNumber, "NUMBER", "QUANTITY") }

type pos struct{ prefixes []string }

func (p pos) Match(c model.Context) bool {
	s, ok := c.(*model.Span)
	if !ok {
		return false
	}
	tags := s.POSTags()
	if len(tags) == 0 {
		return false
	}
	for _, t := range tags {
		if !hasAnyPrefix(t, p.prefixes) {
			return false
		}
	}
	return true
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// POS matches spans whose part-of-speech tags all start with one of
// prefixes, e.g. POS("NN") for nouns
func POS(prefixes ...string) Matcher {
	return pos{prefixes: prefixes}
}

type dependency struct {
	label     string
	headLemma string
}

func (d dependency) Match(c model.Context) bool {
	s, ok := c.(*model.Span)
	if !ok {
		return false
	}
	p := s.Phrase()
	if p == nil || p.Lingual == nil {
		return false
	}
	for _, e := range p.Lingual.Deps {
		if e.Dependent < s.Start || e.Dependent >= s.End || e.Label != d.label {
			continue
		}
		if d.headLemma == "" {
			return true
		}
		if e.Head >= 0 && e.Head < len(p.Lingual.Lemmas) && strings.EqualFold(p.Lingual.Lemmas[e.Head], d.headLemma) {
			return true
		}
	}
	return false
}

// Dependency matches spans containing a token attached to its head by an
// arc labelled label. With headLemma set the head token must also have that
// lemma, e.g. Dependency("nsubj", "manufacture").
func Dependency(label, headLemma string) Matcher {
	return dependency{label: label, headLemma: headLemma}
}
