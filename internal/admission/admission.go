// Package admission implements the Admission Service (component E): the
// use case that turns an accepted job submission request into a queued
// job, enforcing the rate/concurrency gate and rolling back partial
// state on every failure path, per spec.md §4.E.
package admission

import (
	"context"
	"fmt"

	"github.com/anomaly-lab/jobctl/internal/apperr"
	"github.com/anomaly-lab/jobctl/internal/bundlestore"
	"github.com/anomaly-lab/jobctl/internal/gate"
	"github.com/anomaly-lab/jobctl/internal/ids"
	"github.com/anomaly-lab/jobctl/internal/jobstore"
	"github.com/anomaly-lab/jobctl/internal/queue"
)

const (
	defaultEntrypoint = "main.py"
	defaultConfigFile = "config.yaml"
)

// Limits bounds the gate check for one EnqueueJob call.
type Limits struct {
	MaxConcurrentRunning int
	MaxSubmissionsPerHour int
}

// Service wires the Store, Gate, Job State Store and Queue capability
// interfaces into the EnqueueJob use case.
type Service struct {
	Bundles bundlestore.Store
	Gate    gate.Gate
	Jobs    jobstore.Store
	Queue   queue.Queue
	Limits  Limits
}

func New(bundles bundlestore.Store, g gate.Gate, jobs jobstore.Store, q queue.Queue, limits Limits) *Service {
	return &Service{Bundles: bundles, Gate: g, Jobs: jobs, Queue: q, Limits: limits}
}

// EnqueueJob implements the seven-step contract of spec.md §4.E:
//  1. reject if the submission does not exist
//  2. load its metadata, defaulting entrypoint/config_file
//  3. check the gate; reject with the matching error kind if it trips
//  4. reject as incomplete if the bundle is missing its entrypoint or
//     config file, rolling back the hourly counter first
//  5. create the job record, rolling back the hourly counter on failure
//  6. enqueue the job message, marking the job FAILED and rolling back
//     the hourly counter on failure
//  7. return the new job id
//
// config is the caller-supplied body from POST /jobs (spec.md §6); it
// carries resource_class and any other per-job overrides the worker
// reads (§4.F step 5). A nil/empty config falls back to the submission's
// own stored metadata.
func (s *Service) EnqueueJob(ctx context.Context, submissionID, userID string, config map[string]interface{}) (string, error) {
	if !s.Bundles.Exists(submissionID) {
		return "", apperr.New(apperr.KindNotFound, fmt.Sprintf("submission %q not found", submissionID))
	}

	meta, err := s.Bundles.Metadata(submissionID)
	if err != nil {
		return "", err
	}
	entrypoint := meta.Entrypoint
	if entrypoint == "" {
		entrypoint = defaultEntrypoint
	}
	configFile := meta.ConfigFile
	if configFile == "" {
		configFile = defaultConfigFile
	}

	decision, err := s.Gate.TryAdmit(ctx, userID, s.Limits.MaxConcurrentRunning, s.Limits.MaxSubmissionsPerHour)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "admission gate check", err)
	}
	switch decision {
	case gate.RateExceeded:
		return "", apperr.New(apperr.KindRateExceeded, "hourly submission rate exceeded")
	case gate.ConcurrencyExceeded:
		return "", apperr.New(apperr.KindConcurrencyExceeded, "concurrent running job limit reached")
	}

	if !hasFile(meta, entrypoint) || !hasFile(meta, configFile) {
		_ = s.Gate.DecrHourly(ctx, userID)
		return "", apperr.New(apperr.KindIncomplete, "submission is missing its entrypoint or config file")
	}
	if entrypoint == configFile {
		_ = s.Gate.DecrHourly(ctx, userID)
		return "", apperr.New(apperr.KindIncomplete, "entrypoint and config_file must not be the same file")
	}

	jid := ids.New()
	if err := s.Jobs.Create(ctx, jid, submissionID, userID); err != nil {
		_ = s.Gate.DecrHourly(ctx, userID)
		return "", apperr.Wrap(apperr.KindInternal, "create job record", err)
	}

	jobConfig := config
	if len(jobConfig) == 0 {
		jobConfig = meta.Extra
	}
	msg := &queue.Message{
		JobID:        jid,
		SubmissionID: submissionID,
		UserID:       userID,
		Entrypoint:   entrypoint,
		ConfigFile:   configFile,
		Config:       jobConfig,
	}
	if err := s.Queue.Enqueue(ctx, msg); err != nil {
		_ = s.Jobs.Update(ctx, jid, jobstore.Failed, "", "failed to enqueue job")
		_ = s.Gate.DecrHourly(ctx, userID)
		return "", apperr.Wrap(apperr.KindInternal, "enqueue job", err)
	}

	return jid, nil
}

func hasFile(meta bundlestore.Metadata, name string) bool {
	for _, f := range meta.Files {
		if f == name {
			return true
		}
	}
	return false
}
