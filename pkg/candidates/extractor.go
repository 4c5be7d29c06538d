package candidates

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/athapong/docfuse/pkg/matchers"
	"github.com/athapong/docfuse/pkg/metrics"
	"github.com/athapong/docfuse/pkg/model"
	"github.com/athapong/docfuse/pkg/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Argument pairs the context space of one relation argument with the
// matcher filtering it. A nil Matcher keeps every context.
type Argument struct {
	Space   Space
	Matcher matchers.Matcher
}

// CandidateStore is the persistence the extractor needs
type CandidateStore interface {
	LoadDocument(ctx context.Context, name string) (*model.Document, error)
	// ReplaceCandidates supersedes every candidate of (relation, split,
	// document) in one transaction
	ReplaceCandidates(ctx context.Context, relation string, split model.Split, document string, records []model.CandidateRecord) error
}

// Extractor combines the filtered argument contexts of documents into
// candidates of one relation
type Extractor struct {
	rel       model.Relation
	args      []Argument
	store     CandidateStore
	throttler Throttler
	workers   int
	logger    *logrus.Logger
}

// Option customises an Extractor
type Option func(*Extractor)

// WithThrottler prunes argument tuples before they become candidates
func WithThrottler(t Throttler) Option { return func(e *Extractor) { e.throttler = t } }

// WithWorkers sets how many documents are extracted concurrently. Default: 1.
func WithWorkers(n int) Option { return func(e *Extractor) { e.workers = n } }

// WithLogger sets the logger
func WithLogger(l *logrus.Logger) Option { return func(e *Extractor) { e.logger = l } }

// NewExtractor validates the relation against its arguments
func NewExtractor(rel model.Relation, args []Argument, cs CandidateStore, opts ...Option) (*Extractor, error) {
	if err := rel.Validate(); err != nil {
		return nil, err
	}
	if len(args) != rel.Arity() {
		return nil, errors.Errorf("relation %s has %d arguments, got %d spaces", rel.Name, rel.Arity(), len(args))
	}
	for i, a := range args {
		if err := a.Space.Validate(); err != nil {
			return nil, errors.Wrapf(err, "argument %s", rel.ArgNames[i])
		}
	}
	for _, d := range rel.Distances {
		for _, i := range []int{d.A, d.B} {
			if !args[i].Space.Positional() {
				return nil, errors.Errorf("relation %s: argument %s has no phrase position for a distance constraint", rel.Name, rel.ArgNames[i])
			}
		}
	}

	e := &Extractor{rel: rel, args: args, store: cs, workers: 1}
	for _, o := range opts {
		o(e)
	}
	if e.workers <= 0 {
		e.workers = 1
	}
	if e.logger == nil {
		e.logger = logrus.New()
		e.logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return e, nil
}

// Relation returns the relation the extractor produces
func (e *Extractor) Relation() model.Relation {
	return e.rel
}

// DocumentReport is the outcome for one successfully extracted document
type DocumentReport struct {
	Document   string `json:"document"`
	Candidates int    `json:"candidates"`
}

// Report summarises one Apply run
type Report struct {
	RunID      string                `json:"run_id"`
	Relation   string                `json:"relation"`
	Split      model.Split           `json:"split"`
	Documents  []DocumentReport      `json:"documents"`
	Failed     []model.DocumentError `json:"-"`
	Candidates int                   `json:"candidates"`
}

type task struct {
	index int
	name  string
}

type result struct {
	task
	candidates int
	err        error
}

// Apply extracts and persists the candidates of documents under split.
// Documents are processed in parallel by the configured workers, each one
// independently: a failing document keeps its previous candidates and is
// reported in the returned *model.BatchError once every document has been
// attempted.
func (e *Extractor) Apply(ctx context.Context, split model.Split, documents []string) (*Report, error) {
	if split == model.SplitUnassigned {
		return nil, errors.New("a split label is required")
	}
	if e.store == nil {
		return nil, errors.New("extractor has no candidate store")
	}

	report := &Report{RunID: uuid.NewString(), Relation: e.rel.Name, Split: split}
	names := dedupe(documents)

	log := e.logger.WithFields(logrus.Fields{
		"relation": e.rel.Name,
		"split":    split,
		"run":      report.RunID,
	})
	log.WithFields(logrus.Fields{
		"documents": len(names),
		"workers":   e.workers,
	}).Info("Starting candidate extraction")

	tasks := make(chan task)
	results := make(chan result, len(names))
	metrics.ExtractionQueueLength.Add(float64(len(names)))

	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for t := range tasks {
				metrics.ExtractionQueueLength.Dec()
				n, err := e.process(ctx, report.RunID, split, t.name)
				if err != nil {
					log.WithError(err).WithFields(logrus.Fields{
						"document": t.name,
						"worker":   worker,
					}).Error("Candidate extraction failed")
				}
				results <- result{task: t, candidates: n, err: err}
			}
		}(w)
	}

	go func() {
		defer close(tasks)
		for i, name := range names {
			tasks <- task{index: i, name: name}
		}
	}()

	wg.Wait()
	close(results)

	collected := make([]result, len(names))
	for r := range results {
		collected[r.index] = r
	}
	for _, r := range collected {
		if r.err != nil {
			report.Failed = append(report.Failed, model.DocumentError{Document: r.name, Err: r.err})
			continue
		}
		report.Documents = append(report.Documents, DocumentReport{Document: r.name, Candidates: r.candidates})
		report.Candidates += r.candidates
	}

	log.WithFields(logrus.Fields{
		"candidates": report.Candidates,
		"succeeded":  len(report.Documents),
		"failed":     len(report.Failed),
	}).Info("Candidate extraction completed")

	if len(report.Failed) > 0 {
		return report, &model.BatchError{Failed: report.Failed}
	}
	return report, nil
}

// process extracts one document and supersedes its stored candidates
func (e *Extractor) process(ctx context.Context, runID string, split model.Split, name string) (int, error) {
	timer := prometheus.NewTimer(metrics.ExtractionDuration.WithLabelValues(e.rel.Name))
	defer timer.ObserveDuration()

	n, err := e.extractAndStore(ctx, runID, split, name)
	if err != nil {
		metrics.ExtractionFailures.WithLabelValues(e.rel.Name, errorType(err)).Inc()
		return 0, err
	}
	metrics.CandidatesExtracted.WithLabelValues(e.rel.Name, string(split)).Add(float64(n))
	return n, nil
}

func (e *Extractor) extractAndStore(ctx context.Context, runID string, split model.Split, name string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	doc, err := e.store.LoadDocument(ctx, name)
	if err != nil {
		return 0, errors.Wrapf(err, "load %s", name)
	}

	cands, err := e.Extract(doc, split)
	if err != nil {
		return 0, err
	}

	records := make([]model.CandidateRecord, len(cands))
	for i, c := range cands {
		records[i] = c.Record()
		records[i].Run = runID
	}
	if err := e.store.ReplaceCandidates(ctx, e.rel.Name, split, name, records); err != nil {
		return 0, err
	}
	return len(cands), nil
}

func errorType(err error) string {
	var (
		matcherErr  *model.MatcherEvaluationError
		conflictErr *model.PersistenceConflictError
	)
	switch {
	case errors.As(err, &matcherErr):
		return "matcher"
	case errors.As(err, &conflictErr):
		return "conflict"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// Extract returns the candidates of one document in emission order without
// persisting them. A panicking matcher or throttler is reported as a
// *model.MatcherEvaluationError.
func (e *Extractor) Extract(doc *model.Document, split model.Split) ([]model.Candidate, error) {
	streams := make([]stream, len(e.args))
	for i := range e.args {
		s, err := e.filter(doc, i)
		if err != nil {
			return nil, err
		}
		if len(s.contexts) == 0 {
			return nil, nil
		}
		streams[i] = s
	}

	p := &product{
		e:       e,
		doc:     doc,
		split:   split,
		streams: streams,
		tuple:   make([]model.Context, len(streams)),
		seen:    make(map[string]bool),
	}
	if err := p.run(); err != nil {
		return nil, err
	}
	return p.out, nil
}

// stream is the filtered contexts of one argument with their phrase
// positions; sorted is set when positions never decrease
type stream struct {
	contexts  []model.Context
	positions []int
	anchored  []bool
	sorted    bool
}

func (e *Extractor) filter(doc *model.Document, arg int) (s stream, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &model.MatcherEvaluationError{
				Document: doc.Name,
				Argument: e.rel.ArgNames[arg],
				Err:      errors.Errorf("matcher panicked: %v", r),
			}
		}
	}()

	m := e.args[arg].Matcher
	seen := make(map[string]bool)
	s.sorted = true
	for c := range e.args[arg].Space.Contexts(doc) {
		if m != nil && !m.Match(c) {
			continue
		}
		key := c.Key()
		if seen[key] {
			continue
		}
		seen[key] = true

		pos, ok := model.Position(c)
		if !ok || (len(s.positions) > 0 && pos < s.positions[len(s.positions)-1]) {
			s.sorted = false
		}
		s.contexts = append(s.contexts, c)
		s.positions = append(s.positions, pos)
		s.anchored = append(s.anchored, ok)
	}
	return s, nil
}

// product walks the Cartesian product of the argument streams depth first,
// pruning partial tuples as soon as a constraint fails
type product struct {
	e       *Extractor
	doc     *model.Document
	split   model.Split
	streams []stream
	tuple   []model.Context
	tupleAt []int
	seen    map[string]bool
	out     []model.Candidate
}

func (p *product) run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &model.MatcherEvaluationError{
				Document: p.doc.Name,
				Argument: "throttler",
				Err:      errors.Errorf("throttler panicked: %v", r),
			}
		}
	}()
	p.tupleAt = make([]int, len(p.streams))
	p.walk(0)
	return nil
}

func (p *product) walk(k int) {
	if k == len(p.streams) {
		p.emit()
		return
	}
	s := &p.streams[k]
	lo, hi := p.window(k)
	for i := lo; i < hi; i++ {
		if !p.admissible(k, i) {
			continue
		}
		p.tuple[k] = s.contexts[i]
		p.tupleAt[k] = i
		p.walk(k + 1)
	}
}

// window narrows the candidates for position k with a binary search when a
// distance constraint ties k to an earlier argument and the stream is sorted
func (p *product) window(k int) (int, int) {
	s := &p.streams[k]
	lo, hi := 0, len(s.contexts)
	if !s.sorted {
		return lo, hi
	}
	for _, d := range p.e.rel.Distances {
		j := -1
		switch {
		case d.B == k && d.A < k:
			j = d.A
		case d.A == k && d.B < k:
			j = d.B
		}
		if j < 0 || d.Max < 0 {
			continue
		}
		at := p.streams[j].positions[p.tupleAt[j]]
		from := sort.SearchInts(s.positions, addSat(at, -d.Max))
		to := sort.SearchInts(s.positions, addSat(addSat(at, d.Max), 1))
		if from > lo {
			lo = from
		}
		if to < hi {
			hi = to
		}
	}
	return lo, hi
}

// addSat adds b to a, saturating at the int bounds
func addSat(a, b int) int {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return math.MaxInt
	case b < 0 && a < math.MinInt-b:
		return math.MinInt
	}
	return a + b
}

// admissible checks the context at index i of stream k against the
// arguments already chosen
func (p *product) admissible(k, i int) bool {
	s := &p.streams[k]
	c := s.contexts[i]
	rel := p.e.rel
	for j := 0; j < k; j++ {
		prev := p.tuple[j]
		if !rel.AllowSelf && prev.Key() == c.Key() {
			return false
		}
		if !rel.AllowNested {
			if a, ok := prev.(*model.Span); ok {
				if b, ok := c.(*model.Span); ok && a.Key() != b.Key() && (a.Contains(b) || b.Contains(a)) {
					return false
				}
			}
		}
	}
	for _, d := range rel.Distances {
		var j int
		switch {
		case d.B == k && d.A < k:
			j = d.A
		case d.A == k && d.B < k:
			j = d.B
		default:
			continue
		}
		prev := &p.streams[j]
		if !s.anchored[i] || !prev.anchored[p.tupleAt[j]] {
			return false
		}
		if !d.Allows(prev.positions[p.tupleAt[j]], s.positions[i]) {
			return false
		}
	}
	return true
}

// emit records the current tuple. An asymmetric relation keeps the first
// permutation the throttler accepts.
func (p *product) emit() {
	if p.e.throttler != nil && !p.e.throttler.Allow(p.tuple) {
		return
	}
	if p.e.rel.Asymmetric {
		keys := make([]string, len(p.tuple))
		for i, c := range p.tuple {
			keys[i] = c.Key()
		}
		sort.Strings(keys)
		set := strings.Join(keys, "|")
		if p.seen[set] {
			return
		}
		p.seen[set] = true
	}
	args := make([]model.Context, len(p.tuple))
	copy(args, p.tuple)
	p.out = append(p.out, model.Candidate{
		Relation: p.e.rel.Name,
		Split:    p.split,
		Document: p.doc.Name,
		Position: len(p.out),
		Args:     args,
	})
}
