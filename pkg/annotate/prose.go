package annotate

import (
	"context"
	"strings"

	"github.com/athapong/docfuse/pkg/metrics"
	"github.com/jdkato/prose/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// ProseAnnotator annotates sentences with jdkato/prose. Prose provides
// tokens, Penn Treebank tags and IOB entity labels; it has neither a
// lemmatiser nor a dependency parser, so lemmas are lower-cased word forms
// and no dependency edges are produced.
type ProseAnnotator struct {
	logger *logrus.Logger
}

// NewProseAnnotator creates a new prose backed annotator
func NewProseAnnotator(logger *logrus.Logger) *ProseAnnotator {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &ProseAnnotator{logger: logger}
}

// Annotate implements Annotator
func (p *ProseAnnotator) Annotate(ctx context.Context, sentences []string) ([]Annotation, error) {
	timer := prometheus.NewTimer(metrics.AnnotationDuration.WithLabelValues("prose"))
	defer timer.ObserveDuration()

	out := make([]Annotation, 0, len(sentences))
	for i, sentence := range sentences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a, err := p.annotate(sentence)
		if err != nil {
			p.logger.WithError(err).WithField("sentence", i).Error("Failed to annotate sentence")
			return nil, errors.Wrapf(err, "sentence %d", i)
		}
		out = append(out, a)
	}

	p.logger.WithField("sentences", len(sentences)).Debug("Prose annotation completed")
	return out, nil
}

func (p *ProseAnnotator) annotate(sentence string) (Annotation, error) {
	if strings.TrimSpace(sentence) == "" {
		return Annotation{Words: []string{}, CharOffsets: []int{}, Lemmas: []string{}, POSTags: []string{}, NERTags: []string{}}, nil
	}

	// The sentence boundaries come from the document structure
	doc, err := prose.NewDocument(sentence, prose.WithSegmentation(false))
	if err != nil {
		return Annotation{}, err
	}

	tokens := doc.Tokens()
	a := Annotation{
		Words:   make([]string, len(tokens)),
		Lemmas:  make([]string, len(tokens)),
		POSTags: make([]string, len(tokens)),
		NERTags: make([]string, len(tokens)),
	}
	for i, tok := range tokens {
		a.Words[i] = tok.Text
		a.Lemmas[i] = strings.ToLower(tok.Text)
		a.POSTags[i] = tok.Tag
		a.NERTags[i] = entityType(tok.Label)
	}
	a.CharOffsets = Offsets(sentence, a.Words)
	return a, nil
}

// entityType strips the IOB prefix from a prose label: "B-PERSON" -> "PERSON"
func entityType(label string) string {
	if label == "" || label == "O" {
		return "O"
	}
	if len(label) > 2 && label[1] == '-' {
		return label[2:]
	}
	return label
}
