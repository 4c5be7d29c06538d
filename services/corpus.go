package services

import (
	"context"
	"net/http"
	"sync"

	"github.com/athapong/docfuse/pkg/annotate"
	"github.com/athapong/docfuse/pkg/candidates"
	"github.com/athapong/docfuse/pkg/config"
	"github.com/athapong/docfuse/pkg/layout"
	"github.com/athapong/docfuse/pkg/model"
	"github.com/athapong/docfuse/pkg/parser"
	"github.com/athapong/docfuse/pkg/rules"
	"github.com/athapong/docfuse/pkg/store"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Corpus ties one configuration to its store and the components built from it
type Corpus struct {
	Config *config.Config
	Logger *logrus.Logger
	Store  *store.Store

	rules func() (*rules.Set, error)
}

// OpenCorpus opens the configured store
func OpenCorpus(cfg *config.Config, logger *logrus.Logger) (*Corpus, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	st, err := store.Open(cfg.Database.Path,
		store.WithBusyTimeout(cfg.Database.BusyTimeoutMS),
		store.WithConflictRetries(cfg.Database.ConflictRetries),
		store.WithMkdirAll(),
		store.WithLogger(logger),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "open store %s", cfg.Database.Path)
	}
	return newCorpus(cfg, logger, st), nil
}

func newCorpus(cfg *config.Config, logger *logrus.Logger, st *store.Store) *Corpus {
	c := &Corpus{Config: cfg, Logger: logger, Store: st}
	c.rules = sync.OnceValues(func() (*rules.Set, error) {
		return rules.Load(cfg.Extraction.Rules)
	})
	return c
}

// Close closes the store
func (c *Corpus) Close() error {
	return c.Store.Close()
}

// Builder creates a document builder. layouts holds precomputed page
// layouts by document name; documents without one are rendered from their PDF.
func (c *Corpus) Builder(layouts map[string]*layout.Layout) (*parser.Builder, error) {
	modalities, err := c.Config.Modalities()
	if err != nil {
		return nil, err
	}
	pc := c.Config.Parser

	opts := []parser.Option{parser.WithLogger(c.Logger)}
	switch pc.Annotator {
	case "service":
		client := &http.Client{Timeout: pc.AnnotatorTimeout}
		opts = append(opts, parser.WithAnnotator(annotate.NewServiceAnnotator(pc.AnnotatorURL, client, c.Logger)))
	default:
		opts = append(opts, parser.WithAnnotator(annotate.NewProseAnnotator(c.Logger)))
	}
	switch pc.Segmenter {
	case "block":
		opts = append(opts, parser.WithSegmenter(parser.BlockSegmenter{}))
	default:
		opts = append(opts, parser.WithSegmenter(parser.NewProseSegmenter()))
	}
	if modalities.Has(model.Visual) {
		opts = append(opts, parser.WithRenderer(&layoutRouter{
			static: layout.NewStaticRenderer(layouts),
			known:  layouts,
			pdf:    layout.NewPDFRenderer(c.Logger),
		}))
	}

	return parser.NewBuilder(parser.Config{
		Modalities:       modalities,
		Workers:          pc.Workers,
		AnnotatorTimeout: pc.AnnotatorTimeout,
	}, c.Store, opts...)
}

// Parse loads the sources under paths and builds them into the store
func (c *Corpus) Parse(ctx context.Context, paths []string) (parser.BuildReport, error) {
	sources, layouts, err := LoadSources(paths)
	if err != nil {
		return parser.BuildReport{}, err
	}
	return c.Build(ctx, sources, layouts)
}

// Build builds already loaded sources into the store
func (c *Corpus) Build(ctx context.Context, sources []parser.Source, layouts map[string]*layout.Layout) (parser.BuildReport, error) {
	b, err := c.Builder(layouts)
	if err != nil {
		return parser.BuildReport{}, err
	}
	c.Logger.WithField("documents", len(sources)).Info("Parsing documents")
	return b.BuildAll(ctx, sources), nil
}

// Rules returns the relation definitions, loaded once
func (c *Corpus) Rules() (*rules.Set, error) {
	return c.rules()
}

// Extractor creates the extractor for a configured relation
func (c *Corpus) Extractor(relation string) (*candidates.Extractor, *rules.Definition, error) {
	set, err := c.Rules()
	if err != nil {
		return nil, nil, errors.Wrap(err, "load rules")
	}
	def, ok := set.Lookup(relation)
	if !ok {
		return nil, nil, errors.Errorf("unknown relation %q (known: %v)", relation, set.Names())
	}
	ext, err := def.Extractor(c.Store,
		candidates.WithWorkers(c.Config.Extraction.Workers),
		candidates.WithLogger(c.Logger),
	)
	if err != nil {
		return nil, nil, err
	}
	return ext, def, nil
}

// Extract runs a relation's extractor. Without documents every document of
// the split is processed.
func (c *Corpus) Extract(ctx context.Context, relation string, split model.Split, documents []string) (*candidates.Report, error) {
	ext, _, err := c.Extractor(relation)
	if err != nil {
		return nil, err
	}
	if len(documents) == 0 {
		documents, err = c.Store.DocumentNames(ctx, split)
		if err != nil {
			return nil, err
		}
		if len(documents) == 0 {
			return nil, errors.Errorf("no documents in split %s", split)
		}
	}
	return ext.Apply(ctx, split, documents)
}

// layoutRouter serves precomputed layouts and falls back to the PDF renderer
type layoutRouter struct {
	static *layout.StaticRenderer
	known  map[string]*layout.Layout
	pdf    *layout.PDFRenderer
}

func (r *layoutRouter) Render(ctx context.Context, req layout.Request) (*layout.Layout, error) {
	if _, ok := r.known[req.Name]; ok {
		return r.static.Render(ctx, req)
	}
	if len(req.PDF) == 0 {
		return nil, errors.Errorf("document %s has neither a layout file nor a PDF", req.Name)
	}
	return r.pdf.Render(ctx, req)
}
