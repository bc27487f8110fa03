package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raysh454/netmon/internal/fixtures"
	"github.com/raysh454/netmon/internal/scenario"
	"github.com/raysh454/netmon/internal/testutil"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Checks.Timeout = 10 * time.Second
	cfg.JobRetentionTime = 5 * time.Second
	o := NewOrchestrator(cfg, &testutil.DummyLogger{})
	t.Cleanup(o.Close)
	return o
}

func waitJob(t *testing.T, o *Orchestrator, id string) *Job {
	t.Helper()
	events, err := o.Events(id)
	if err != nil {
		t.Fatal(err)
	}
	timeout := time.After(20 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				job, err := o.GetJob(id)
				if err != nil {
					t.Fatal(err)
				}
				return job
			}
		case <-timeout:
			t.Fatal("timed out waiting for job")
		}
	}
}

func TestOrchestrator_RunsAllChecks(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t)

	job, err := o.StartCheckJob(context.Background())
	if err != nil {
		t.Fatalf("StartCheckJob: %v", err)
	}
	if len(job.Scenarios) != len(scenario.All()) {
		t.Fatalf("scenarios = %v", job.Scenarios)
	}

	done := waitJob(t, o, job.ID)
	if done.Status != JobDone {
		t.Fatalf("status = %s (%s)", done.Status, done.Error)
	}
	if !done.Passed || len(done.Reports) != len(scenario.All()) {
		for _, r := range done.Reports {
			t.Logf("%s: %+v", r.Scenario, r.Checks)
		}
		t.Fatalf("job did not pass: %+v", done)
	}
	if done.EndedAt.IsZero() {
		t.Error("EndedAt not set")
	}

	jobs := o.ListJobs()
	if len(jobs) != 1 || jobs[0].ID != job.ID {
		t.Errorf("ListJobs = %+v", jobs)
	}
}

func TestOrchestrator_SingleScenario(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t)

	job, err := o.StartCheckJob(context.Background(), "beacon-capture")
	if err != nil {
		t.Fatal(err)
	}
	done := waitJob(t, o, job.ID)
	if done.Status != JobDone || len(done.Reports) != 1 || done.Reports[0].Scenario != "beacon-capture" {
		t.Fatalf("unexpected job: %+v", done)
	}
}

func TestOrchestrator_Errors(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t)

	if _, err := o.StartCheckJob(context.Background(), "nope"); !errors.Is(err, scenario.ErrUnknownScenario) {
		t.Errorf("unknown scenario: %v", err)
	}
	if _, err := o.GetJob("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetJob: %v", err)
	}
	if err := o.CancelJob("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("CancelJob: %v", err)
	}
}

func TestOrchestrator_PrunesOldJobs(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t)
	o.jobs["old"] = &Job{ID: "old", Status: JobDone, EndedAt: time.Now().Add(-time.Minute)}
	o.jobs["running"] = &Job{ID: "running", Status: JobRunning}

	jobs := o.ListJobs()
	if len(jobs) != 1 || jobs[0].ID != "running" {
		t.Fatalf("ListJobs = %+v", jobs)
	}
}

func TestOrchestrator_CheckOptionsTrustFixtureCert(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.WebClient.Client = "chromedp"
	o := NewOrchestrator(cfg, &testutil.DummyLogger{})
	defer o.Close()

	local := fixtures.StartLocal(nil)
	defer local.Close()

	opts := o.checkOptions(local)
	wc := opts.Harness.WebClient
	if opts.BaseURL != local.HTTPURL {
		t.Errorf("BaseURL = %q, want %q", opts.BaseURL, local.HTTPURL)
	}
	if wc.IgnoreCertErrors {
		t.Error("certificate errors must not be ignored wholesale")
	}
	if len(wc.TrustedSPKI) != 1 || wc.TrustedSPKI[0] != local.SPKIHash() {
		t.Errorf("TrustedSPKI = %v, want [%s]", wc.TrustedSPKI, local.SPKIHash())
	}
	if wc.RootCAs == nil {
		t.Error("RootCAs not set")
	}

	cfg.Checks.BaseURL = "http://fixtures.test:8888"
	if opts := o.checkOptions(nil); opts.BaseURL != cfg.Checks.BaseURL || len(opts.Harness.WebClient.TrustedSPKI) != 0 {
		t.Errorf("external fixtures: %+v", opts)
	}
}
