package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joelkehle/jury-instructions/internal/assembly"
	"github.com/joelkehle/jury-instructions/internal/catalog"
	"github.com/joelkehle/jury-instructions/internal/dedupe"
	"github.com/joelkehle/jury-instructions/internal/extract"
	"github.com/joelkehle/jury-instructions/internal/legal"
	"github.com/joelkehle/jury-instructions/internal/oracle"
	"github.com/joelkehle/jury-instructions/internal/taxonomy"
	"github.com/joelkehle/jury-instructions/internal/window"
)

const tracerName = "github.com/joelkehle/jury-instructions/internal/pipeline"

const DefaultWindowSize = 3

type Pipeline struct {
	exec        *oracle.Executor
	snap        *catalog.Snapshot
	reducer     *extract.Reducer
	grouper     *dedupe.Engine
	matcher     *taxonomy.Matcher
	windowSize  int
	concurrency int
	engineOpts  []assembly.Option
	logger      *zap.Logger
	tracer      trace.Tracer
}

type Option func(*Pipeline)

func WithWindowSize(n int) Option {
	return func(p *Pipeline) { p.windowSize = n }
}

// WithConcurrency bounds how many independent branches run at once.
// Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func WithAssemblyOptions(opts ...assembly.Option) Option {
	return func(p *Pipeline) { p.engineOpts = append(p.engineOpts, opts...) }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// New builds a pipeline over one catalog snapshot. The snapshot is read for
// every run and never modified.
func New(exec *oracle.Executor, snap *catalog.Snapshot, opts ...Option) *Pipeline {
	p := &Pipeline{
		exec:        exec,
		snap:        snap,
		reducer:     extract.NewReducer(exec),
		grouper:     dedupe.New(exec),
		matcher:     taxonomy.New(exec),
		windowSize:  DefaultWindowSize,
		concurrency: 1,
		logger:      exec.Logger().Named("pipeline"),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	return p.runWithProgress(ctx, req, nil)
}

func (p *Pipeline) RunWithProgress(ctx context.Context, req Request, progress StageProgressFn) (Result, error) {
	return p.runWithProgress(ctx, req, progress)
}

// run carries the mutable state of one pipeline execution.
type run struct {
	p        *Pipeline
	req      Request
	res      *Result
	log      *zap.Logger
	mu       sync.Mutex
	progress StageProgressFn
}

func (p *Pipeline) runWithProgress(ctx context.Context, req Request, progress StageProgressFn) (Result, error) {
	res := Result{CaseID: req.CaseID, Metadata: Metadata{StartedAt: time.Now()}}
	if err := req.Validate(); err != nil {
		return res, err
	}
	if err := window.Validate(p.windowSize); err != nil {
		return res, &legal.ValidationError{Field: "window_size", Reason: err.Error()}
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(attribute.String("case_id", req.CaseID)))
	defer span.End()
	before := p.exec.Stats()
	r := &run{p: p, req: req, res: &res, log: p.logger.With(zap.String("case_id", req.CaseID)), progress: progress}

	err := r.execute(ctx)
	after := p.exec.Stats()
	res.Metadata.OracleCalls = after.Calls - before.Calls
	res.Metadata.OracleFailures = after.Failures - before.Failures
	res.Metadata.ContentRetries = after.ContentRetries - before.ContentRetries
	res.Metadata.TransportRetries = after.TransportRetries - before.TransportRetries
	res.Metadata.CompletedAt = time.Now()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.log.Error("pipeline failed", zap.String("stage", StageNameFromError(err)), zap.Error(err))
		return res, err
	}
	r.log.Info("pipeline complete",
		zap.Int("claims", len(res.Claims)),
		zap.Int("counterclaims", len(res.Counterclaims)),
		zap.Int("instructions", len(res.Instructions)),
		zap.Int64("oracle_calls", res.Metadata.OracleCalls))
	return res, nil
}

func (r *run) execute(ctx context.Context) error {
	if err := r.stage(ctx, StageCaseFacts, "Extracting case facts...", r.caseFacts); err != nil {
		return err
	}

	// Witnesses, claims and counterclaims have no data dependency on each
	// other. Each writes only its own result field.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.p.concurrency)
	g.Go(func() error { return r.stage(gctx, StageWitnesses, "Extracting witnesses...", r.witnesses) })
	g.Go(func() error { return r.stage(gctx, StageClaims, "Extracting claims...", r.claims) })
	g.Go(func() error { return r.stage(gctx, StageCounterclaims, "Extracting counterclaims...", r.counterclaims) })
	if err := g.Wait(); err != nil {
		return err
	}

	if err := r.stage(ctx, StageEnrichment, "Extracting damages and defenses...", r.enrich); err != nil {
		return err
	}
	return r.stage(ctx, StageAssembly, "Assembling instructions...", r.assemble)
}

// stage runs fn under a span, reports progress and wraps failures in a
// StageError naming the stage.
func (r *run) stage(ctx context.Context, name, message string, fn func(context.Context) error) error {
	r.emit(name, message)
	started := time.Now()
	ctx, span := r.p.tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StageError{Stage: name, Err: err}
	}
	elapsed := time.Since(started).Round(time.Millisecond)
	r.mu.Lock()
	r.res.Metadata.StagesExecuted = append(r.res.Metadata.StagesExecuted, name)
	r.mu.Unlock()
	r.log.Debug("stage complete", zap.String("stage", name), zap.Duration("elapsed", elapsed))
	r.emit(name, fmt.Sprintf("%s complete in %s", name, elapsed))
	return nil
}

func (r *run) emit(stage, message string) {
	if r.progress == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress(stage, message)
}

func (r *run) countWindows(pass extract.Pass) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.res.Metadata.WindowsProcessed += pass.Windows
	r.res.Metadata.WindowsFailed += pass.FailedWindows
}

func (r *run) caseFacts(ctx context.Context) error {
	var sections []extract.Section
	for _, s := range []extract.Section{
		{Source: "complaint", Chunks: r.req.Complaint},
		{Source: "answer", Chunks: r.req.Answer},
		{Source: "witness list", Chunks: r.req.WitnessList},
	} {
		if hasText(s.Chunks) {
			sections = append(sections, s)
		}
	}
	pass, err := r.p.reducer.CaseFacts(ctx, sections, r.p.windowSize)
	r.countWindows(pass)
	if err != nil {
		return err
	}
	r.res.CaseFacts = pass.Context
	return nil
}

func (r *run) witnesses(ctx context.Context) error {
	w, err := r.p.reducer.Witnesses(ctx, r.req.WitnessList)
	if err != nil {
		return err
	}
	r.res.Witnesses = w
	return nil
}

func (r *run) claims(ctx context.Context) error {
	items, err := r.extractAndMatch(ctx, r.req.Complaint, extract.Goal{Kind: extract.Claims, Source: "complaint"}, dedupe.Claims)
	if err != nil {
		return err
	}
	r.res.Claims = items
	return nil
}

func (r *run) counterclaims(ctx context.Context) error {
	if !hasText(r.req.Answer) {
		return nil
	}
	items, err := r.extractAndMatch(ctx, r.req.Answer, extract.Goal{Kind: extract.Counterclaims, Source: "answer"}, dedupe.Counterclaims)
	if err != nil {
		return err
	}
	r.res.Counterclaims = items
	return nil
}

func (r *run) extractAndMatch(ctx context.Context, chunks []string, goal extract.Goal, kind dedupe.Kind) ([]legal.MatchedItem, error) {
	pass, err := r.p.reducer.ExtractOver(ctx, chunks, r.p.windowSize, goal)
	r.countWindows(pass)
	if err != nil {
		return nil, err
	}
	groups, err := r.p.grouper.Deduplicate(ctx, kind, pass.Entities)
	if err != nil {
		return nil, err
	}
	items, err := r.p.matcher.Match(ctx, groups, r.p.snap)
	if err != nil {
		return nil, err
	}
	r.log.Info("entities resolved",
		zap.String("goal", string(goal.Kind)),
		zap.Int("raw", len(pass.Entities)),
		zap.Int("groups", len(groups)),
		zap.Int("matched", countMatched(items)))
	return items, nil
}

func countMatched(items []legal.MatchedItem) int {
	n := 0
	for _, it := range items {
		if it.Matched() {
			n++
		}
	}
	return n
}

// enrich attaches damages to every item and defenses to every claim. Each
// item is enriched independently and written back to its own slot, so the
// output order is the extraction order regardless of concurrency.
func (r *run) enrich(ctx context.Context) error {
	claims := slices.Clone(r.res.Claims)
	counterclaims := slices.Clone(r.res.Counterclaims)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.p.concurrency)
	for i := range claims {
		g.Go(func() error {
			item := &claims[i]
			damages, err := r.damages(gctx, r.req.Complaint, item.Context(), extract.PartyPlaintiff, "complaint")
			if err != nil {
				return err
			}
			defenses, err := r.defenses(gctx, item.Context())
			if err != nil {
				return err
			}
			item.Damages = damages
			item.Defenses = defenses
			return nil
		})
	}
	for i := range counterclaims {
		g.Go(func() error {
			item := &counterclaims[i]
			damages, err := r.damages(gctx, r.req.Answer, item.Context(), extract.PartyCounterclaimant, "answer")
			if err != nil {
				return err
			}
			item.Damages = damages
			item.Defenses = []legal.Defense{}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	r.res.Claims = claims
	r.res.Counterclaims = counterclaims
	return nil
}

func (r *run) damages(ctx context.Context, chunks []string, subject, party, source string) (legal.Damages, error) {
	if !hasText(chunks) {
		return legal.Damages{}, nil
	}
	pass, err := r.p.reducer.ExtractOver(ctx, chunks, r.p.windowSize,
		extract.Goal{Kind: extract.Damages, Subject: subject, Party: party, Source: source})
	r.countWindows(pass)
	if err != nil {
		return legal.Damages{}, err
	}
	return pass.Damages, nil
}

func (r *run) defenses(ctx context.Context, subject string) ([]legal.Defense, error) {
	if !hasText(r.req.Answer) {
		return []legal.Defense{}, nil
	}
	pass, err := r.p.reducer.ExtractOver(ctx, r.req.Answer, r.p.windowSize,
		extract.Goal{Kind: extract.Defenses, Subject: subject, Source: "answer"})
	r.countWindows(pass)
	if err != nil {
		return nil, err
	}
	defenses, err := r.p.grouper.DeduplicateDefenses(ctx, pass.Entities)
	if err != nil {
		return nil, err
	}
	if defenses == nil {
		defenses = []legal.Defense{}
	}
	return defenses, nil
}

func (r *run) assemble(ctx context.Context) error {
	engine := assembly.New(r.p.exec, r.p.snap, r.req.Config, r.p.engineOpts...)
	instructions, err := engine.Assemble(ctx, assembly.Input{
		CaseFacts:     r.res.CaseFacts,
		Witnesses:     r.res.Witnesses,
		Claims:        r.res.Claims,
		Counterclaims: r.res.Counterclaims,
	})
	if err != nil {
		return err
	}
	r.res.Instructions = instructions
	return nil
}
