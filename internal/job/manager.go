// Package job runs at most one scrape at a time and tracks its status.
package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/usn-result-scraper/internal/artifact"
	"github.com/JakeFAU/usn-result-scraper/internal/metrics"
	"github.com/JakeFAU/usn-result-scraper/internal/portal"
	"github.com/JakeFAU/usn-result-scraper/internal/scrape"
	"github.com/JakeFAU/usn-result-scraper/internal/usn"
)

// Status messages.
const (
	MessageReady     = "Ready"
	MessageCompleted = "Scraping completed!"
	MessageCanceled  = "Scraping canceled"
)

var (
	// ErrJobRunning is returned when a scrape or single fetch is already in progress.
	ErrJobRunning = errors.New("scraping is already in progress")
	// ErrNoJob is returned by Cancel when nothing is running.
	ErrNoJob = errors.New("no scraping job is running")
	// ErrNotFound is returned by FetchOne when the portal has no sheet for the USN.
	ErrNotFound = errors.New("result not found")
)

// Runner executes one scrape job.
type Runner interface {
	Run(ctx context.Context, jobID uuid.UUID, year string, branches []string, report scrape.Reporter) (scrape.Summary, error)
}

// Status is a snapshot of the current or most recent job.
type Status struct {
	JobID      string          `json:"job_id,omitempty"`
	Running    bool            `json:"is_running"`
	Processed  int             `json:"progress"`
	Total      int             `json:"total"`
	Message    string          `json:"message"`
	Year       string          `json:"year,omitempty"`
	Branches   []string        `json:"branches,omitempty"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Error      string          `json:"error,omitempty"`
	Summary    *scrape.Summary `json:"summary,omitempty"`
}

func (s Status) clone() Status {
	out := s
	out.Branches = append([]string(nil), s.Branches...)
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		out.FinishedAt = &t
	}
	if s.Summary != nil {
		sum := *s.Summary
		sum.Branches = append([]scrape.BranchSummary(nil), s.Summary.Branches...)
		out.Summary = &sum
	}
	return out
}

// Manager owns the single-job guard and the status record.
type Manager struct {
	runner  Runner
	fetcher scrape.Fetcher
	store   artifact.Store
	logger  *zap.Logger
	newID   func() (uuid.UUID, error)
	now     func() time.Time

	mu     sync.Mutex
	busy   bool
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager wires a Manager. The fetcher and store serve FetchOne and ListArtifacts.
func NewManager(runner Runner, fetcher scrape.Fetcher, store artifact.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		runner:  runner,
		fetcher: fetcher,
		store:   store,
		logger:  logger,
		newID:   uuid.NewV7,
		now:     time.Now,
		status:  Status{Message: MessageReady},
	}
}

// StartJob launches a scrape in the background and returns immediately.
func (m *Manager) StartJob(year string, branches []string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return Status{}, ErrJobRunning
	}
	if err := usn.ValidateYear(year); err != nil {
		return Status{}, err
	}
	normalized, err := usn.NormalizeBranches(branches)
	if err != nil {
		return Status{}, err
	}
	id, err := m.newID()
	if err != nil {
		return Status{}, fmt.Errorf("generate job id: %w", err)
	}

	started := m.now().UTC()
	ctx, cancel := context.WithCancel(context.Background())
	m.busy = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.status = Status{
		JobID:     id.String(),
		Running:   true,
		Message:   fmt.Sprintf("Starting scraping for year 20%s...", year),
		Year:      year,
		Branches:  normalized,
		StartedAt: &started,
	}
	m.logger.Info("scrape job started",
		zap.String("job_id", id.String()),
		zap.String("year", year),
		zap.Strings("branches", normalized),
	)

	go m.run(ctx, id, year, normalized, m.done)
	return m.status.clone(), nil
}

func (m *Manager) run(ctx context.Context, id uuid.UUID, year string, branches []string, done chan struct{}) {
	var (
		summary scrape.Summary
		err     error
	)
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("scrape job panicked", zap.String("job_id", id.String()), zap.Any("panic", r))
			err = fmt.Errorf("panic: %v", r)
		}
		m.finish(ctx, summary, err)
	}()
	summary, err = m.runner.Run(ctx, id, year, branches, m.report)
}

func (m *Manager) report(processed, total int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.status.Running {
		return
	}
	if processed > m.status.Processed {
		m.status.Processed = processed
	}
	m.status.Total = total
	m.status.Message = message
}

func (m *Manager) finish(ctx context.Context, summary scrape.Summary, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	finished := m.now().UTC()
	m.status.Running = false
	m.status.FinishedAt = &finished
	if summary.Processed > m.status.Processed {
		m.status.Processed = summary.Processed
	}
	if summary.Year != "" {
		m.status.Summary = &summary
	}
	switch {
	case err == nil:
		m.status.Message = MessageCompleted
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		m.status.Message = MessageCanceled
	default:
		m.status.Message = fmt.Sprintf("An error occurred: %v", err)
		m.status.Error = err.Error()
	}
	m.logger.Info("scrape job finished",
		zap.String("job_id", m.status.JobID),
		zap.Int("processed", m.status.Processed),
		zap.String("message", m.status.Message),
	)
	m.busy = false
	m.cancel()
	m.cancel = nil
}

// Cancel stops the running job. The status message becomes MessageCanceled
// once the job unwinds.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel == nil || !m.status.Running {
		return ErrNoJob
	}
	m.cancel()
	return nil
}

// Wait blocks until the current job, if any, has finished or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetStatus returns a copy of the status record.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.clone()
}

// FetchOne fetches and saves a single USN synchronously. It holds the job
// guard for its duration, so it conflicts with a running scrape.
func (m *Manager) FetchOne(ctx context.Context, id string) (string, error) {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return "", ErrJobRunning
	}
	m.busy = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.busy = false
		m.mu.Unlock()
	}()

	out, err := m.fetcher.Fetch(ctx, id)
	if err != nil {
		return "", err
	}
	if !out.Found() {
		m.logger.Info("single fetch found nothing", zap.String("usn", id), zap.Stringer("outcome", out.Kind), zap.String("reason", out.Reason))
		return "", fmt.Errorf("%w for USN: %s", ErrNotFound, id)
	}
	saved, err := m.store.Save(ctx, out.Result)
	if err != nil {
		metrics.ObserveArtifactSave(out.Result.Branch, metrics.SaveError)
		return "", fmt.Errorf("save %s: %w", id, err)
	}
	result := metrics.SaveExisting
	if saved.Created {
		result = metrics.SaveCreated
	}
	metrics.ObserveArtifactSave(out.Result.Branch, result)
	m.logger.Info("single fetch saved", zap.String("usn", out.Result.USN), zap.String("path", saved.Path))
	return saved.Path, nil
}

// ListArtifacts returns every stored result sheet.
func (m *Manager) ListArtifacts(ctx context.Context) ([]artifact.Artifact, error) {
	list, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return list, nil
}

// IsInvalidInput reports whether err stems from a malformed year, branch or USN.
func IsInvalidInput(err error) bool {
	return errors.Is(err, usn.ErrInvalidYear) ||
		errors.Is(err, usn.ErrInvalidBranch) ||
		errors.Is(err, portal.ErrInvalidUSN)
}
