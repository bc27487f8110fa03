package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/netmon/internal/fixtures"
	"github.com/raysh454/netmon/internal/harness"
	"github.com/raysh454/netmon/internal/logging"
	"github.com/raysh454/netmon/internal/scenario"
)

var ErrJobNotFound = errors.New("job not found")

type JobEventType string

const (
	JobEventStatus   JobEventType = "status"
	JobEventProgress JobEventType = "progress"
	JobEventResult   JobEventType = "result"
)

type JobEvent struct {
	JobID string       `json:"job_id"`
	Type  JobEventType `json:"type"`

	// For status changes
	Status JobStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`

	// For progress
	Processed int              `json:"processed,omitempty"`
	Total     int              `json:"total,omitempty"`
	Report    *scenario.Report `json:"report,omitempty"`
}

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

// Job is one run of one or more scenarios.
type Job struct {
	ID        string        `json:"id"`
	Scenarios []string      `json:"scenarios"`
	Status    JobStatus     `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Events    chan JobEvent `json:"-"`

	Reports []*scenario.Report `json:"reports,omitempty"`
	Passed  bool               `json:"passed"`
}

func (j *Job) snapshot() *Job {
	cp := *j
	cp.Scenarios = append([]string(nil), j.Scenarios...)
	cp.Reports = append([]*scenario.Report(nil), j.Reports...)
	return &cp
}

// Orchestrator runs scenario checks as background jobs.
type Orchestrator struct {
	cfg    *Config
	logger logging.Logger

	jobsMu     sync.Mutex
	jobs       map[string]*Job
	jobCancels map[string]context.CancelFunc
	wg         sync.WaitGroup
}

func NewOrchestrator(cfg *Config, logger logging.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Orchestrator{
		cfg:        cfg,
		logger:     logger.With(logging.F("component", "orchestrator")),
		jobs:       make(map[string]*Job),
		jobCancels: make(map[string]context.CancelFunc),
	}
}

func (o *Orchestrator) emitJobEvent(job *Job, ev JobEvent) {
	ev.JobID = job.ID
	// Non-blocking send; drop if buffer is full.
	select {
	case job.Events <- ev:
	default:
	}
}

func (o *Orchestrator) setStatus(job *Job, status JobStatus, errMsg string) {
	o.jobsMu.Lock()
	job.Status = status
	job.Error = errMsg
	o.jobsMu.Unlock()
	o.emitJobEvent(job, JobEvent{Type: JobEventStatus, Status: status, Error: errMsg})
}

// StartCheckJob runs the named scenarios in the background; no names means
// all of them.
func (o *Orchestrator) StartCheckJob(ctx context.Context, names ...string) (*Job, error) {
	scenarios, err := SelectScenarios(names)
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:        uuid.New().String(),
		Status:    JobPending,
		StartedAt: time.Now().UTC(),
		Events:    make(chan JobEvent, 16),
	}
	for _, sc := range scenarios {
		job.Scenarios = append(job.Scenarios, sc.Name)
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.jobsMu.Lock()
	o.pruneLocked(time.Now())
	o.jobs[job.ID] = job
	o.jobCancels[job.ID] = cancel
	o.jobsMu.Unlock()

	o.emitJobEvent(job, JobEvent{Type: JobEventStatus, Status: JobPending})
	o.logger.Info("check job started", logging.F("job_id", job.ID), logging.F("scenarios", job.Scenarios))

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.jobsMu.Lock()
			job.EndedAt = time.Now().UTC()
			delete(o.jobCancels, job.ID)
			o.jobsMu.Unlock()
			cancel()
			// Close events channel so websocket loop can terminate cleanly
			close(job.Events)
		}()

		o.setStatus(job, JobRunning, "")
		reports, err := o.RunChecks(jobCtx, scenarios, func(done int, rep *scenario.Report) {
			o.jobsMu.Lock()
			job.Reports = append(job.Reports, rep)
			o.jobsMu.Unlock()
			o.emitJobEvent(job, JobEvent{Type: JobEventProgress, Processed: done, Total: len(scenarios), Report: rep})
		})

		switch {
		case jobCtx.Err() != nil:
			o.setStatus(job, JobCanceled, jobCtx.Err().Error())
		case err != nil:
			o.setStatus(job, JobFailed, err.Error())
		default:
			o.jobsMu.Lock()
			job.Status = JobDone
			job.Passed = allPassed(reports)
			o.jobsMu.Unlock()
			o.emitJobEvent(job, JobEvent{Type: JobEventResult, Status: JobDone})
		}
	}()

	return job.snapshot(), nil
}

// RunChecks runs scenarios one after another. When checks.base_url is unset
// an in-process fixture server is started for the run. progress, if set, is
// called after each scenario.
func (o *Orchestrator) RunChecks(ctx context.Context, scenarios []scenario.Scenario, progress func(done int, rep *scenario.Report)) ([]*scenario.Report, error) {
	var local *fixtures.Local
	if o.cfg.Checks.BaseURL == "" {
		local = fixtures.StartLocal(o.logger)
		defer local.Close()
	}
	opts := o.checkOptions(local)

	var reports []*scenario.Report
	for i, sc := range scenarios {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		rep, err := scenario.Run(ctx, sc, opts)
		if err != nil {
			return reports, fmt.Errorf("running %s: %w", sc.Name, err)
		}
		reports = append(reports, rep)
		if progress != nil {
			progress(i+1, rep)
		}
	}
	return reports, nil
}

// checkOptions points the harness at local when set. Both backends trust the
// fixture certificate: nethttp through RootCAs, Chrome through its SPKI hash,
// so the HTTPS hop classifies as secure.
func (o *Orchestrator) checkOptions(local *fixtures.Local) scenario.Options {
	opts := scenario.Options{
		BaseURL: o.cfg.Checks.BaseURL,
		Timeout: o.cfg.Checks.Timeout,
		Harness: harness.Options{
			WebClient: o.cfg.WebClientConfig(nil),
			Logger:    o.logger,
		},
	}
	if local != nil {
		opts.BaseURL = local.HTTPURL
		opts.Harness.WebClient.RootCAs = local.RootCAs()
		opts.Harness.WebClient.TrustedSPKI = append(opts.Harness.WebClient.TrustedSPKI, local.SPKIHash())
	}
	return opts
}

func (o *Orchestrator) CancelJob(jobID string) error {
	o.jobsMu.Lock()
	_, known := o.jobs[jobID]
	cancel := o.jobCancels[jobID]
	o.jobsMu.Unlock()
	if !known {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// GetJob returns a copy of the job's current state.
func (o *Orchestrator) GetJob(jobID string) (*Job, error) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return j.snapshot(), nil
}

// Events returns the live event channel of a job. It is closed when the job
// ends.
func (o *Orchestrator) Events(jobID string) (<-chan JobEvent, error) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return j.Events, nil
}

// ListJobs returns jobs newest first.
func (o *Orchestrator) ListJobs() []*Job {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	o.pruneLocked(time.Now())
	out := make([]*Job, 0, len(o.jobs))
	for _, j := range o.jobs {
		out = append(out, j.snapshot())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.After(out[k].StartedAt) })
	return out
}

// pruneLocked drops finished jobs older than the retention time.
func (o *Orchestrator) pruneLocked(now time.Time) {
	if o.cfg.JobRetentionTime <= 0 {
		return
	}
	for id, j := range o.jobs {
		if !j.EndedAt.IsZero() && now.Sub(j.EndedAt) > o.cfg.JobRetentionTime {
			delete(o.jobs, id)
		}
	}
}

// Close cancels running jobs and waits for them to stop.
func (o *Orchestrator) Close() {
	o.jobsMu.Lock()
	for _, cancel := range o.jobCancels {
		cancel()
	}
	o.jobsMu.Unlock()
	o.wg.Wait()
}

// SelectScenarios resolves scenario names; none or "all" selects every scenario.
func SelectScenarios(names []string) ([]scenario.Scenario, error) {
	if len(names) == 0 || (len(names) == 1 && (names[0] == "" || names[0] == "all")) {
		return scenario.All(), nil
	}
	var out []scenario.Scenario
	for _, name := range names {
		sc, err := scenario.Find(name)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

func allPassed(reports []*scenario.Report) bool {
	for _, r := range reports {
		if !r.Passed {
			return false
		}
	}
	return len(reports) > 0
}
