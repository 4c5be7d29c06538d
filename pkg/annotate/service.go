package annotate

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/athapong/docfuse/pkg/metrics"
	"github.com/athapong/docfuse/pkg/model"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// ServiceAnnotator sends sentences to an HTTP NLP service (spaCy, Stanza or
// CoreNLP behind a thin wrapper) and decodes its JSON answer:
//
//	{"sentences": [{"tokens": [
//	    {"text": "Alice", "offset": 0, "lemma": "Alice", "pos": "NNP",
//	     "ner": "PERSON", "head": 1, "dep": "nsubj"}, ...]}]}
//
// "head" is the 0-based index of the governing token, -1 for the root.
type ServiceAnnotator struct {
	url    string
	client *http.Client
	logger *logrus.Logger
}

// NewServiceAnnotator creates an annotator posting to url
func NewServiceAnnotator(url string, client *http.Client, logger *logrus.Logger) *ServiceAnnotator {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &ServiceAnnotator{url: url, client: client, logger: logger}
}

// Annotate implements Annotator
func (s *ServiceAnnotator) Annotate(ctx context.Context, sentences []string) ([]Annotation, error) {
	timer := prometheus.NewTimer(metrics.AnnotationDuration.WithLabelValues("service"))
	defer timer.ObserveDuration()

	body, err := json.Marshal(map[string]interface{}{"sentences": sentences})
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call annotator")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read annotator response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("annotator returned %s: %s", resp.Status, bytes.TrimSpace(payload))
	}
	if !gjson.ValidBytes(payload) {
		return nil, errors.New("annotator returned invalid JSON")
	}

	results := gjson.GetBytes(payload, "sentences").Array()
	out := make([]Annotation, len(results))
	for i, sent := range results {
		out[i] = decodeSentence(sent)
	}

	s.logger.WithFields(logrus.Fields{
		"sentences": len(sentences),
		"results":   len(out),
	}).Debug("Service annotation completed")
	return out, nil
}

func decodeSentence(sent gjson.Result) Annotation {
	tokens := sent.Get("tokens").Array()
	a := Annotation{
		Words:       make([]string, len(tokens)),
		CharOffsets: make([]int, len(tokens)),
		Lemmas:      make([]string, len(tokens)),
		POSTags:     make([]string, len(tokens)),
		NERTags:     make([]string, len(tokens)),
	}
	for i, tok := range tokens {
		a.Words[i] = tok.Get("text").String()
		a.CharOffsets[i] = int(tok.Get("offset").Int())
		a.Lemmas[i] = tok.Get("lemma").String()
		a.POSTags[i] = tok.Get("pos").String()
		a.NERTags[i] = tok.Get("ner").String()
		if a.NERTags[i] == "" {
			a.NERTags[i] = "O"
		}
		head := tok.Get("head")
		if head.Exists() && head.Int() >= 0 {
			a.Deps = append(a.Deps, model.DepEdge{
				Head:      int(head.Int()),
				Dependent: i,
				Label:     tok.Get("dep").String(),
			})
		}
	}
	return a
}
