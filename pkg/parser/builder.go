// Package parser builds the unified document model. For every source it
// runs a structural parse of the markup, splices in the linguistic
// annotation of each phrase and attaches the page geometry reported by a
// renderer, then stores the document subtree in one transaction.
package parser

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/athapong/docfuse/pkg/annotate"
	"github.com/athapong/docfuse/pkg/layout"
	"github.com/athapong/docfuse/pkg/metrics"
	"github.com/athapong/docfuse/pkg/model"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Config controls how documents are built
type Config struct {
	// Modalities selects the attribute groups to populate
	Modalities model.Modality
	// Workers bounds how many documents BuildAll builds at once
	Workers int
	// AnnotatorTimeout bounds one annotator call; zero means no bound
	AnnotatorTimeout time.Duration
}

// DefaultConfig enables every modality
func DefaultConfig() Config {
	return Config{
		Modalities:       model.AllModalities,
		Workers:          4,
		AnnotatorTimeout: 2 * time.Minute,
	}
}

// Source is one raw document
type Source struct {
	Name string
	// Path is informational and stored as the document source
	Path string
	HTML []byte
	// PDF is the rendered form handed to the renderer
	PDF []byte
}

// DocumentStore persists a built document, replacing any document of the
// same name atomically
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc *model.Document) error
}

// Builder fuses structure, linguistic annotation and geometry into documents
type Builder struct {
	cfg       Config
	store     DocumentStore
	annotator annotate.Annotator
	renderer  layout.Renderer
	segmenter Segmenter
	logger    *logrus.Logger
}

// Option customises a Builder
type Option func(*Builder)

// WithAnnotator sets the linguistic annotator. Default: prose.
func WithAnnotator(a annotate.Annotator) Option { return func(b *Builder) { b.annotator = a } }

// WithRenderer sets the geometry adapter. Required for the visual modality.
func WithRenderer(r layout.Renderer) Option { return func(b *Builder) { b.renderer = r } }

// WithSegmenter sets the sentence segmenter. Default: prose punkt.
func WithSegmenter(s Segmenter) Option { return func(b *Builder) { b.segmenter = s } }

// WithLogger sets the logger
func WithLogger(l *logrus.Logger) Option { return func(b *Builder) { b.logger = l } }

// NewBuilder creates a document builder. store may be nil, in which case
// built documents are returned but not persisted.
func NewBuilder(cfg Config, store DocumentStore, opts ...Option) (*Builder, error) {
	b := &Builder{cfg: cfg, store: store}
	for _, o := range opts {
		o(b)
	}
	if b.logger == nil {
		b.logger = logrus.New()
		b.logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if b.cfg.Workers <= 0 {
		b.cfg.Workers = 1
	}
	if b.segmenter == nil {
		b.segmenter = NewProseSegmenter()
	}
	if b.cfg.Modalities.Has(model.Lingual) && b.annotator == nil {
		b.annotator = annotate.NewProseAnnotator(b.logger)
	}
	if b.cfg.Modalities.Has(model.Visual) && b.renderer == nil {
		return nil, errors.New("visual modality requires a renderer")
	}
	return b, nil
}

// Build parses one source into a document and persists it. Stages run
// strictly in order: structural, lingual, visual.
func (b *Builder) Build(ctx context.Context, src Source) (*model.Document, error) {
	log := b.logger.WithField("document", src.Name)
	log.Info("Building document")

	doc, err := b.build(ctx, src)
	if err != nil {
		metrics.DocumentsParsed.WithLabelValues("error").Inc()
		log.WithError(err).Error("Failed to build document")
		return nil, err
	}

	if b.store != nil {
		timer := prometheus.NewTimer(metrics.ParseDuration.WithLabelValues("store"))
		err = b.store.SaveDocument(ctx, doc)
		timer.ObserveDuration()
		if err != nil {
			metrics.DocumentsParsed.WithLabelValues("error").Inc()
			log.WithError(err).Error("Failed to store document")
			return nil, errors.Wrapf(err, "store %s", src.Name)
		}
	}

	metrics.DocumentsParsed.WithLabelValues("success").Inc()
	log.WithFields(logrus.Fields{
		"phrases": len(doc.Phrases),
		"tables":  len(doc.Tables),
		"figures": len(doc.Figures),
	}).Info("Document built")
	return doc, nil
}

func (b *Builder) build(ctx context.Context, src Source) (*model.Document, error) {
	if src.Name == "" {
		return nil, &model.ParseError{Document: src.Name, Err: errors.New("source has no name")}
	}

	timer := prometheus.NewTimer(metrics.ParseDuration.WithLabelValues("structural"))
	doc, err := parseStructure(src.Name, src.HTML, b.segmenter, b.cfg.Modalities.Has(model.Structural))
	timer.ObserveDuration()
	if err != nil {
		return nil, &model.ParseError{Document: src.Name, Err: err}
	}
	doc.Source = src.Path
	doc.Modalities = b.cfg.Modalities

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.cfg.Modalities.Has(model.Lingual) {
		timer := prometheus.NewTimer(metrics.ParseDuration.WithLabelValues("lingual"))
		err := b.annotate(ctx, doc)
		timer.ObserveDuration()
		if err != nil {
			return nil, err
		}
	} else {
		for i := range doc.Phrases {
			p := &doc.Phrases[i]
			p.Words, p.CharOffsets = annotate.Whitespace(p.Text)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.cfg.Modalities.Has(model.Visual) {
		timer := prometheus.NewTimer(metrics.ParseDuration.WithLabelValues("visual"))
		err := b.attachVisual(ctx, doc, src)
		timer.ObserveDuration()
		if err != nil {
			return nil, err
		}
	}

	if err := doc.Validate(); err != nil {
		return nil, &model.ParseError{Document: doc.Name, Err: err}
	}
	return doc, nil
}

// annotate sends every phrase text to the annotator and splices the results
// back by ordinal
func (b *Builder) annotate(ctx context.Context, doc *model.Document) error {
	if len(doc.Phrases) == 0 {
		return nil
	}
	texts := make([]string, len(doc.Phrases))
	for i, p := range doc.Phrases {
		texts[i] = p.Text
	}

	actx, cancel := ctx, context.CancelFunc(func() {})
	if b.cfg.AnnotatorTimeout > 0 {
		actx, cancel = context.WithTimeout(ctx, b.cfg.AnnotatorTimeout)
	}
	defer cancel()

	results, err := b.annotator.Annotate(actx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &model.ModalityAlignmentError{Document: doc.Name, Err: errors.Wrap(err, "annotator failed")}
	}
	if len(results) != len(texts) {
		return &model.ModalityAlignmentError{
			Document: doc.Name,
			Err:      errors.Errorf("annotator returned %d results for %d phrases", len(results), len(texts)),
		}
	}

	for i := range doc.Phrases {
		a := results[i]
		if err := a.Check(); err != nil {
			return &model.ModalityAlignmentError{Document: doc.Name, Err: errors.Wrapf(err, "phrase %d", i)}
		}
		p := &doc.Phrases[i]
		if err := checkOffsets(p.Text, a); err != nil {
			return &model.ModalityAlignmentError{Document: doc.Name, Err: errors.Wrapf(err, "phrase %d", i)}
		}
		p.Words = a.Words
		p.CharOffsets = a.CharOffsets
		p.Lingual = &model.LingualAttrs{
			Lemmas:  a.Lemmas,
			POSTags: a.POSTags,
			NERTags: a.NERTags,
			Deps:    a.Deps,
		}
	}
	return nil
}

// checkOffsets makes sure every token lies inside the phrase text
func checkOffsets(text string, a annotate.Annotation) error {
	for i, off := range a.CharOffsets {
		if off < 0 || off > len(text) {
			return errors.Errorf("token %d starts at %d outside %d bytes", i, off, len(text))
		}
	}
	return nil
}

// attachVisual places phrases and figures on pages using the units the
// renderer reports for the same ordinals. Units that are not reported leave
// the visual attributes absent.
func (b *Builder) attachVisual(ctx context.Context, doc *model.Document, src Source) error {
	req := layout.Request{Name: doc.Name, PDF: src.PDF}
	for _, p := range doc.Phrases {
		req.Texts = append(req.Texts, p.Text)
	}
	for _, f := range doc.Figures {
		req.Images = append(req.Images, f.URL)
	}

	l, err := b.renderer.Render(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &model.ParseError{Document: doc.Name, Err: errors.Wrap(err, "render")}
	}
	if l == nil {
		return &model.ParseError{Document: doc.Name, Err: errors.New("renderer returned no layout")}
	}

	pages := make(map[int]bool, len(l.Pages))
	for _, p := range l.Pages {
		if pages[p.Number] {
			return &model.ParseError{Document: doc.Name, Err: errors.Errorf("page %d reported twice", p.Number)}
		}
		pages[p.Number] = true
	}
	doc.Pages = append([]model.Page(nil), l.Pages...)

	seen := make(map[layout.UnitKind]map[int]bool)
	for _, u := range l.Units {
		if !pages[u.Page] {
			return &model.ParseError{Document: doc.Name, Err: errors.Errorf("%s unit %d references non-existent page %d", u.Kind, u.Ordinal, u.Page)}
		}
		if seen[u.Kind] == nil {
			seen[u.Kind] = make(map[int]bool)
		}
		if seen[u.Kind][u.Ordinal] {
			return &model.ParseError{Document: doc.Name, Err: errors.Errorf("%s unit %d reported twice", u.Kind, u.Ordinal)}
		}
		seen[u.Kind][u.Ordinal] = true

		visual := &model.VisualAttrs{Page: u.Page, BBox: u.BBox}
		switch u.Kind {
		case layout.TextUnit:
			if u.Ordinal < 0 || u.Ordinal >= len(doc.Phrases) {
				return &model.ParseError{Document: doc.Name, Err: errors.Errorf("text unit %d has no phrase", u.Ordinal)}
			}
			doc.Phrases[u.Ordinal].Visual = visual
		case layout.ImageUnit:
			if u.Ordinal < 0 || u.Ordinal >= len(doc.Figures) {
				return &model.ParseError{Document: doc.Name, Err: errors.Errorf("image unit %d has no figure", u.Ordinal)}
			}
			doc.Figures[u.Ordinal].Visual = visual
		default:
			return &model.ParseError{Document: doc.Name, Err: errors.Errorf("unknown unit kind %q", u.Kind)}
		}
	}
	return nil
}

// BuildReport summarises a BuildAll run
type BuildReport struct {
	Built  []string
	Failed []model.DocumentError
}

// Err returns a *model.BatchError when any document failed
func (r BuildReport) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return &model.BatchError{Failed: r.Failed}
}

// BuildAll builds sources in parallel. Every source is attempted; a failed
// document never affects its siblings and is listed in the report.
func (b *Builder) BuildAll(ctx context.Context, sources []Source) BuildReport {
	b.logger.WithFields(logrus.Fields{
		"documents": len(sources),
		"workers":   b.cfg.Workers,
	}).Info("Starting batch build")

	var (
		mu     sync.Mutex
		report BuildReport
	)
	built := make([]bool, len(sources))

	g := new(errgroup.Group)
	g.SetLimit(b.cfg.Workers)
	for i, src := range sources {
		g.Go(func() error {
			_, err := b.Build(ctx, src)
			if err != nil {
				mu.Lock()
				report.Failed = append(report.Failed, model.DocumentError{Document: src.Name, Err: err})
				mu.Unlock()
				return nil
			}
			built[i] = true
			return nil
		})
	}
	g.Wait()

	for i, ok := range built {
		if ok {
			report.Built = append(report.Built, sources[i].Name)
		}
	}
	sort.Slice(report.Failed, func(i, j int) bool {
		return report.Failed[i].Document < report.Failed[j].Document
	})

	b.logger.WithFields(logrus.Fields{
		"built":  len(report.Built),
		"failed": len(report.Failed),
	}).Info("Batch build completed")
	return report
}
