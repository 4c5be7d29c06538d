package parser

import (
	"strings"

	"github.com/jdkato/prose/v2"
)

// Segmenter splits the text of one structural block into sentences
type Segmenter interface {
	Segment(text string) ([]string, error)
}

// ProseSegmenter uses the punkt sentence tokenizer shipped with prose
type ProseSegmenter struct{}

// NewProseSegmenter creates a new prose backed segmenter
func NewProseSegmenter() *ProseSegmenter {
	return &ProseSegmenter{}
}

// Segment implements Segmenter
func (ProseSegmenter) Segment(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	doc, err := prose.NewDocument(text,
		prose.WithTokenization(false),
		prose.WithTagging(false),
		prose.WithExtraction(false))
	if err != nil {
		return nil, err
	}

	var out []string
	for _, s := range doc.Sentences() {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

// BlockSegmenter keeps every structural block as a single sentence
type BlockSegmenter struct{}

// Segment implements Segmenter
func (BlockSegmenter) Segment(text string) ([]string, error) {
	if t := strings.TrimSpace(text); t != "" {
		return []string{t}, nil
	}
	return nil, nil
}
