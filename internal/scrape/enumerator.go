// Package scrape walks USN ranges branch by branch and persists every result
// sheet the portal returns.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/usn-result-scraper/internal/artifact"
	"github.com/JakeFAU/usn-result-scraper/internal/metrics"
	"github.com/JakeFAU/usn-result-scraper/internal/notify"
	"github.com/JakeFAU/usn-result-scraper/internal/portal"
	"github.com/JakeFAU/usn-result-scraper/internal/progress"
	"github.com/JakeFAU/usn-result-scraper/internal/usn"
)

// DefaultFailureThreshold is the number of consecutive absent USNs that ends a branch.
const DefaultFailureThreshold = 10

// Fetcher retrieves the outcome for one USN.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (portal.Outcome, error)
}

// Reporter receives progress updates. Total is always 0 because the number
// of students per branch is unknown until the branch is exhausted.
type Reporter func(processed, total int, message string)

// Config controls the enumeration loop.
type Config struct {
	Prefix           string
	FailureThreshold int
	// Delay is the pause between consecutive probes within a branch.
	Delay             time.Duration
	BranchConcurrency int
}

// BranchSummary tallies one branch of a run.
type BranchSummary struct {
	Branch     string `json:"branch"`
	Probed     int    `json:"probed"`
	Saved      int    `json:"saved"`
	Transient  int    `json:"transient"`
	SaveErrors int    `json:"save_errors"`
	// LastFound is the highest number that returned a sheet, 0 if none did.
	LastFound int `json:"last_found"`
}

// Summary is the result of Run.
type Summary struct {
	Year      string          `json:"year"`
	Processed int             `json:"processed"`
	Branches  []BranchSummary `json:"branches"`
}

// Probed returns the total number of fetches across branches.
func (s Summary) Probed() int {
	n := 0
	for _, b := range s.Branches {
		n += b.Probed
	}
	return n
}

// Transient returns the total number of transient outcomes across branches.
func (s Summary) Transient() int {
	n := 0
	for _, b := range s.Branches {
		n += b.Transient
	}
	return n
}

// Enumerator drives the probe loop for a scrape job.
type Enumerator struct {
	fetcher   Fetcher
	store     artifact.Store
	emitter   progress.Emitter
	publisher notify.Publisher
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

// New constructs an Enumerator. A nil emitter or publisher disables that output.
func New(
	fetcher Fetcher,
	store artifact.Store,
	emitter progress.Emitter,
	publisher notify.Publisher,
	cfg Config,
	logger *zap.Logger,
) *Enumerator {
	if cfg.Prefix == "" {
		cfg.Prefix = usn.DefaultPrefix
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.BranchConcurrency <= 0 {
		cfg.BranchConcurrency = 1
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if publisher == nil {
		publisher = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enumerator{
		fetcher:   fetcher,
		store:     store,
		emitter:   emitter,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// run carries the state shared by the branches of one job.
type run struct {
	jobID     uuid.UUID
	year      string
	report    Reporter
	processed atomic.Int64
}

// Run scans every branch for year. It returns context errors on cancellation;
// fetch and save failures for individual USNs never abort the job.
func (e *Enumerator) Run(
	ctx context.Context,
	jobID uuid.UUID,
	year string,
	branches []string,
	report Reporter,
) (summary Summary, err error) {
	if err := usn.ValidateYear(year); err != nil {
		return Summary{}, err
	}
	branches, err = usn.NormalizeBranches(branches)
	if err != nil {
		return Summary{}, err
	}
	if report == nil {
		report = func(int, int, string) {}
	}

	r := &run{jobID: jobID, year: year, report: report}
	start := e.now()
	e.emit(r, progress.Event{Stage: progress.StageJobStart, Note: fmt.Sprintf("branches=%v", branches)})
	finished := false
	defer func() {
		if !finished {
			e.emit(r, progress.Event{Stage: progress.StageJobError, Dur: e.now().Sub(start), Note: "panic"})
		}
	}()

	results := make([]BranchSummary, len(branches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.BranchConcurrency)
	for i, branch := range branches {
		g.Go(func() error {
			bs, err := e.scanBranch(gctx, r, branch)
			results[i] = bs
			return err
		})
	}
	err = g.Wait()
	finished = true

	summary = Summary{Year: year, Processed: int(r.processed.Load()), Branches: results}
	evt := progress.Event{Stage: progress.StageJobDone, Dur: e.now().Sub(start), Processed: r.processed.Load()}
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		evt.Stage = progress.StageJobCanceled
	default:
		evt.Stage = progress.StageJobError
		evt.Note = err.Error()
	}
	e.emit(r, evt)
	e.logger.Info("scrape finished",
		zap.String("job_id", jobID.String()),
		zap.String("year", year),
		zap.Int("processed", summary.Processed),
		zap.Int("probed", summary.Probed()),
		zap.Int("transient", summary.Transient()),
		zap.Error(err),
	)
	return summary, err
}

// scanBranch probes n = 1, 2, ... until FailureThreshold consecutive USNs are absent.
func (e *Enumerator) scanBranch(ctx context.Context, r *run, branch string) (BranchSummary, error) {
	bs := BranchSummary{Branch: branch}
	logger := e.logger.With(zap.String("job_id", r.jobID.String()), zap.String("branch", branch))
	consecutive := 0

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return bs, err
		}
		id := usn.Generate(e.cfg.Prefix, r.year, branch, n)
		r.report(int(r.processed.Load()), 0, fmt.Sprintf("Checking %s...", id))

		started := e.now()
		out, err := e.fetcher.Fetch(ctx, id)
		if err != nil {
			return bs, fmt.Errorf("fetch %s: %w", id, err)
		}
		bs.Probed++
		e.emit(r, progress.Event{
			Stage:   progress.StageProbe,
			Branch:  branch,
			USN:     id,
			Outcome: out.Kind.String(),
			Dur:     e.now().Sub(started),
		})

		switch out.Kind {
		case portal.KindFound:
			consecutive = 0
			bs.LastFound = n
			e.persist(ctx, r, &bs, out.Result, logger)
		case portal.KindTransient:
			bs.Transient++
			consecutive++
			logger.Warn("transient failure counted as absent", zap.String("usn", id), zap.String("reason", out.Reason))
		default:
			consecutive++
		}

		if consecutive >= e.cfg.FailureThreshold {
			logger.Info("branch exhausted", zap.Int("last_found", bs.LastFound), zap.Int("probed", bs.Probed))
			e.emit(r, progress.Event{Stage: progress.StageBranchDone, Branch: branch, Note: fmt.Sprintf("last_found=%d", bs.LastFound)})
			return bs, nil
		}
		if err := sleep(ctx, e.cfg.Delay); err != nil {
			return bs, err
		}
	}
}

// persist saves a found sheet. Save failures are logged and skipped: the USN
// still resets the absence counter but is not counted as processed.
func (e *Enumerator) persist(ctx context.Context, r *run, bs *BranchSummary, res portal.Result, logger *zap.Logger) {
	saved, err := e.store.Save(ctx, res)
	if err != nil {
		bs.SaveErrors++
		metrics.ObserveArtifactSave(res.Branch, metrics.SaveError)
		logger.Error("failed to save result sheet", zap.String("usn", res.USN), zap.Error(err))
		return
	}
	processed := r.processed.Add(1)
	bs.Saved++
	r.report(int(processed), 0, fmt.Sprintf("Saved %s", res.USN))

	if !saved.Created {
		metrics.ObserveArtifactSave(res.Branch, metrics.SaveExisting)
		return
	}
	metrics.ObserveArtifactSave(res.Branch, metrics.SaveCreated)
	e.emit(r, progress.Event{Stage: progress.StageSaved, Branch: res.Branch, USN: res.USN, Path: saved.Path, Processed: processed})
	msg := notify.Message{
		JobID:     r.jobID.String(),
		USN:       res.USN,
		Branch:    res.Branch,
		Year:      res.Year,
		Name:      res.Name,
		Path:      saved.Path,
		SHA256:    artifact.Checksum(res.PDF),
		Timestamp: e.now().UTC(),
	}
	if _, err := e.publisher.Publish(ctx, msg); err != nil {
		logger.Warn("failed to publish artifact notification", zap.String("usn", res.USN), zap.Error(err))
	}
}

func (e *Enumerator) emit(r *run, evt progress.Event) {
	evt.JobID = progress.UUIDToBytes(r.jobID)
	evt.TS = e.now().UTC()
	evt.Year = r.year
	e.emitter.Emit(evt)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
