// Package annotate wraps external NLP pipelines that turn raw sentences into
// tokens, lemmas, part-of-speech tags, entity tags and dependency arcs.
package annotate

import (
	"context"
	"strings"

	"github.com/athapong/docfuse/pkg/model"
	"github.com/pkg/errors"
)

// Annotation is the linguistic analysis of one sentence. Every per-token
// slice has the same length as Words.
type Annotation struct {
	Words       []string
	CharOffsets []int
	Lemmas      []string
	POSTags     []string
	NERTags     []string
	Deps        []model.DepEdge
}

// Annotator analyses sentences. Implementations must return exactly one
// Annotation per input sentence, in input order.
type Annotator interface {
	Annotate(ctx context.Context, sentences []string) ([]Annotation, error)
}

// Check verifies that an annotation is internally consistent
func (a Annotation) Check() error {
	n := len(a.Words)
	if len(a.CharOffsets) != n || len(a.Lemmas) != n || len(a.POSTags) != n || len(a.NERTags) != n {
		return errors.Errorf("annotation arrays differ in length (words=%d offsets=%d lemmas=%d pos=%d ner=%d)",
			n, len(a.CharOffsets), len(a.Lemmas), len(a.POSTags), len(a.NERTags))
	}
	for _, e := range a.Deps {
		if e.Head < 0 || e.Head >= n || e.Dependent < 0 || e.Dependent >= n {
			return errors.Errorf("dependency edge %d->%d outside %d tokens", e.Head, e.Dependent, n)
		}
	}
	return nil
}

// Offsets locates each word in text, scanning left to right. A word that
// cannot be found verbatim is placed at the current scan position.
func Offsets(text string, words []string) []int {
	offsets := make([]int, len(words))
	cursor := 0
	for i, w := range words {
		if idx := strings.Index(text[cursor:], w); idx >= 0 && w != "" {
			offsets[i] = cursor + idx
			cursor += idx + len(w)
			continue
		}
		offsets[i] = cursor
	}
	return offsets
}

// Whitespace tokenises a sentence on whitespace only. It is used when the
// lingual modality is disabled and no annotator runs.
func Whitespace(text string) ([]string, []int) {
	words := strings.Fields(text)
	return words, Offsets(text, words)
}
