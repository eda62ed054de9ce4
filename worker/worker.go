// Package worker provides the single claim-once job worker.
//
// One worker goroutine polls the job table, claims the oldest pending job,
// dispatches its tools through the plugin registry, writes the output
// document to the blob store, and finalizes the row. The worker and the
// HTTP server share one process and one database handle.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rogermt/forgesyte-sub004/blob"
	"github.com/rogermt/forgesyte-sub004/errors"
	"github.com/rogermt/forgesyte-sub004/health"
	"github.com/rogermt/forgesyte-sub004/job"
	"github.com/rogermt/forgesyte-sub004/plugin"
	"github.com/rogermt/forgesyte-sub004/progress"
)

// OrphanSweepMessage is the error message recorded on jobs found running
// at startup. A running job with no live worker can never finish.
const OrphanSweepMessage = "worker crashed"

// Worker polls for pending jobs and executes them one at a time.
type Worker struct {
	jobs         *job.Store
	registry     *plugin.Registry
	blobs        *blob.Store
	bus          *progress.Bus
	heartbeat    *health.Heartbeat
	pollInterval time.Duration
	log          *zap.SugaredLogger
}

// New creates a worker. Run must be called to start processing.
func New(
	jobs *job.Store,
	registry *plugin.Registry,
	blobs *blob.Store,
	bus *progress.Bus,
	heartbeat *health.Heartbeat,
	pollInterval time.Duration,
	log *zap.SugaredLogger,
) *Worker {
	return &Worker{
		jobs:         jobs,
		registry:     registry,
		blobs:        blobs,
		bus:          bus,
		heartbeat:    heartbeat,
		pollInterval: pollInterval,
		log:          log.Named("worker"),
	}
}

// Run executes the poll loop until ctx is cancelled.
// Every iteration beats the heartbeat, then either executes one claimed
// job or sleeps a jittered poll interval.
func (w *Worker) Run(ctx context.Context) {
	w.log.Infow("Worker started", "poll_interval", w.pollInterval)

	for {
		select {
		case <-ctx.Done():
			w.log.Infow("Worker stopping")
			return
		default:
		}

		w.heartbeat.Beat()

		claimed, err := w.jobs.ClaimOldestPending()
		if err != nil {
			w.log.Errorw("Claim failed", "error", err)
			claimed = nil
		}

		if claimed == nil {
			select {
			case <-ctx.Done():
				w.log.Infow("Worker stopping")
				return
			case <-time.After(jitter(w.pollInterval)):
			}
			continue
		}

		w.execute(ctx, claimed)
	}
}

// jitter spreads the poll interval by up to 20 percent either way so a
// restarted fleet of processes does not poll in lockstep.
func jitter(d time.Duration) time.Duration {
	spread := float64(d) * 0.2
	offset := (rand.Float64()*2 - 1) * spread
	return time.Duration(float64(d) + offset)
}

// execute runs one claimed job to a terminal state.
// Every failure path finalizes the row and publishes a terminal event;
// a claimed job is never left running.
func (w *Worker) execute(ctx context.Context, j *job.Job) {
	log := w.log.With("job_id", j.ID, "plugin_id", j.PluginID)
	log.Infow("Job claimed", "job_type", j.Type, "tools", j.Tools())

	w.publishRunning(j)

	outputKey, err := w.runTools(ctx, j)
	if err != nil {
		w.fail(j, err, log)
		return
	}

	if err := w.jobs.FinalizeSuccess(j.ID, outputKey); err != nil {
		log.Errorw("Failed to finalize completed job", "error", err)
		return
	}

	log.Infow("Job completed", "output_path", outputKey)
	w.bus.Publish(progress.Event{
		JobID:      j.ID,
		Status:     string(job.StatusCompleted),
		OutputPath: &outputKey,
		Timestamp:  time.Now().UTC(),
	})
}

// runTools dispatches the job's tools in order, fail-fast, builds the
// output document, and writes it to the blob store. Returns the output's
// relative key.
func (w *Worker) runTools(ctx context.Context, j *job.Job) (string, error) {
	args, err := w.loadInput(j)
	if err != nil {
		return "", err
	}

	doc, err := w.collectResults(ctx, j, args)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal output document")
	}

	outputKey := path.Join("output", j.ID+".json")
	return w.blobs.Put(bytes.NewReader(data), outputKey)
}

func (w *Worker) collectResults(ctx context.Context, j *job.Job, args plugin.Args) (any, error) {
	tools := j.Tools()
	if len(tools) == 0 {
		return nil, errors.New("job has no tools")
	}

	if j.Type == job.TypeSingle {
		result, err := w.registry.RunTool(ctx, j.PluginID, tools[0], args)
		if err != nil {
			return nil, err
		}
		w.publishToolProgress(j, 1, 1)
		return singleOutput{Results: result}, nil
	}

	results := newOrderedToolResults()
	for i, tool := range tools {
		result, err := w.registry.RunTool(ctx, j.PluginID, tool, args)
		if err != nil {
			// Fail-fast: earlier tool results are discarded
			return nil, errors.Wrapf(err, "tool %s", tool)
		}
		results.add(tool, result)
		w.publishToolProgress(j, i+1, len(tools))
	}
	return multiOutput{PluginID: j.PluginID, Tools: results}, nil
}

// publishToolProgress records advisory progress after each completed tool
// and fans it out to subscribers. Failures here never fail the job.
func (w *Worker) publishToolProgress(j *job.Job, completed, total int) {
	percent := completed * 100 / total
	if err := w.jobs.UpdateProgress(j.ID, percent); err != nil {
		w.log.Warnw("Failed to persist progress", "job_id", j.ID, "error", err)
	}
	w.bus.Publish(progress.Event{
		JobID:          j.ID,
		Status:         string(job.StatusRunning),
		Progress:       &percent,
		CompletedTools: completed,
		TotalTools:     total,
		Timestamp:      time.Now().UTC(),
	})
}

// loadInput resolves the job's input blob into dispatch args.
// The upload kind is carried by the input key's extension: video uploads
// are stored with their container suffix and travel by path, images are
// read into memory.
func (w *Worker) loadInput(j *job.Job) (plugin.Args, error) {
	absPath, err := w.blobs.Open(j.InputPath)
	if err != nil {
		return plugin.Args{}, err
	}

	args := plugin.Args{JobID: j.ID}
	if IsVideoKey(j.InputPath) {
		if _, err := os.Stat(absPath); err != nil {
			return plugin.Args{}, errors.Wrapf(err, "input blob missing: %s", j.InputPath)
		}
		args.VideoPath = absPath
		return args, nil
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return plugin.Args{}, errors.Wrapf(err, "failed to read input blob %s", j.InputPath)
	}
	args.ImageBytes = data
	return args, nil
}

// IsVideoKey reports whether a blob key names a video upload.
func IsVideoKey(key string) bool {
	return strings.EqualFold(path.Ext(key), ".mp4")
}

func (w *Worker) fail(j *job.Job, cause error, log *zap.SugaredLogger) {
	msg := cause.Error()
	log.Warnw("Job failed", "error", cause)

	if err := w.jobs.FinalizeFailure(j.ID, msg); err != nil {
		log.Errorw("Failed to finalize failed job", "error", err)
		return
	}

	w.bus.Publish(progress.Event{
		JobID:     j.ID,
		Status:    string(job.StatusFailed),
		Error:     &msg,
		Timestamp: time.Now().UTC(),
	})
}

func (w *Worker) publishRunning(j *job.Job) {
	w.bus.Publish(progress.Event{
		JobID:     j.ID,
		Status:    string(job.StatusRunning),
		Timestamp: time.Now().UTC(),
	})
}

// SweepOrphans fails every job left running by a previous process.
// Called once at startup, before Run.
func (w *Worker) SweepOrphans() error {
	swept, err := w.jobs.SweepOrphanedRunning(OrphanSweepMessage)
	if err != nil {
		return err
	}
	if swept > 0 {
		w.log.Warnw("Swept orphaned running jobs", "count", swept)
	}
	return nil
}
