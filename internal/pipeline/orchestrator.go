// Package pipeline sequences the audit stages for one job and owns the job's
// status lifecycle. Each status is persisted before its stage runs, so an
// externally observed status always names the stage executing or just done.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"call-audit-go/internal/metrics"
	"call-audit-go/internal/store"
	"call-audit-go/internal/types"
)

// ErrAlreadyRunning is returned when a job could not be claimed because it is
// not in the uploaded state (typically a concurrent run already took it).
var ErrAlreadyRunning = errors.New("job already claimed or not in uploaded state")

// StageError wraps a stage failure with the stage at which it occurred.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (types.Transcript, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, audioPath string, tr types.Transcript) types.AudioMetrics
}

type Detector interface {
	Detect(tr types.Transcript) []types.TriggerEvent
}

type RubricBuilder interface {
	Build(spreadsheetPath string) (types.Rubric, error)
}

type Scorer interface {
	Score(ctx context.Context, tr types.Transcript, rub types.Rubric, trigs []types.TriggerEvent, am types.AudioMetrics) (types.ScoreResult, error)
}

type Assembler interface {
	Assemble(res types.ScoreResult, rub types.Rubric) types.Report
}

type Orchestrator struct {
	store       *store.Store
	transcriber Transcriber
	analyzer    Analyzer
	detector    Detector
	rubrics     RubricBuilder
	scorer      Scorer
	assembler   Assembler

	transcribeTimeout time.Duration
	scoreTimeout      time.Duration

	httpClient *http.Client
	log        *logrus.Entry
}

func NewOrchestrator(
	st *store.Store,
	transcriber Transcriber,
	analyzer Analyzer,
	detector Detector,
	rubrics RubricBuilder,
	scorer Scorer,
	assembler Assembler,
	transcribeTimeout, scoreTimeout time.Duration,
	log *logrus.Entry,
) *Orchestrator {
	return &Orchestrator{
		store:             st,
		transcriber:       transcriber,
		analyzer:          analyzer,
		detector:          detector,
		rubrics:           rubrics,
		scorer:            scorer,
		assembler:         assembler,
		transcribeTimeout: transcribeTimeout,
		scoreTimeout:      scoreTimeout,
		httpClient:        &http.Client{Timeout: 10 * time.Second},
		log:               log,
	}
}

// Run executes the full pipeline for one job. Whole-pipeline failures are not
// retried here; a caller wanting a retry submits a new job.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	log := o.log.WithField("job_id", jobID)

	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	// Claiming uploaded -> transcribing atomically is what guarantees
	// at-most-one active run per job id.
	claimed, err := o.store.Transition(ctx, jobID, types.StatusUploaded, types.StatusTranscribing)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if !claimed {
		log.WithField("status", job.Status).Warn("job not claimable, refusing duplicate run")
		return ErrAlreadyRunning
	}
	log.Info("pipeline started")

	tr, err := o.transcribe(ctx, job)
	if err != nil {
		return o.fail(ctx, jobID, types.StatusTranscribing, err)
	}

	if err := o.advance(ctx, jobID, types.StatusTranscribing, types.StatusAnalyzingMetrics); err != nil {
		return err
	}
	am := o.timed(types.StatusAnalyzingMetrics, func() types.AudioMetrics {
		return o.analyzer.Analyze(ctx, job.AudioPath, tr)
	})

	if err := o.advance(ctx, jobID, types.StatusAnalyzingMetrics, types.StatusDetectingTriggers); err != nil {
		return err
	}
	trigs := o.detector.Detect(tr)

	if err := o.advance(ctx, jobID, types.StatusDetectingTriggers, types.StatusBuildingRubric); err != nil {
		return err
	}
	rub, err := o.rubrics.Build(job.RubricPath)
	if err != nil {
		return o.fail(ctx, jobID, types.StatusBuildingRubric, err)
	}

	if err := o.advance(ctx, jobID, types.StatusBuildingRubric, types.StatusScoring); err != nil {
		return err
	}
	res, err := o.score(ctx, tr, rub, trigs, am)
	if err != nil {
		return o.fail(ctx, jobID, types.StatusScoring, err)
	}

	if err := o.advance(ctx, jobID, types.StatusScoring, types.StatusAssembling); err != nil {
		return err
	}
	rep := o.assembler.Assemble(res, rub)
	if err := o.store.SaveReport(ctx, jobID, rep); err != nil {
		return o.fail(ctx, jobID, types.StatusAssembling, err)
	}

	if err := o.advance(ctx, jobID, types.StatusAssembling, types.StatusDone); err != nil {
		return err
	}
	metrics.JobCompleted()
	log.WithField("final_score", rep.Scores.FinalScore).Info("pipeline done")

	if job.WebhookURL != "" {
		o.notify(ctx, job, rep)
	}
	return nil
}

func (o *Orchestrator) transcribe(ctx context.Context, job types.Job) (types.Transcript, error) {
	tctx, cancel := context.WithTimeout(ctx, o.transcribeTimeout)
	defer cancel()
	start := time.Now()
	tr, err := o.transcriber.Transcribe(tctx, job.AudioPath, job.Language)
	metrics.ObserveStage(string(types.StatusTranscribing), time.Since(start).Seconds())
	return tr, err
}

func (o *Orchestrator) score(ctx context.Context, tr types.Transcript, rub types.Rubric, trigs []types.TriggerEvent, am types.AudioMetrics) (types.ScoreResult, error) {
	sctx, cancel := context.WithTimeout(ctx, o.scoreTimeout)
	defer cancel()
	start := time.Now()
	res, err := o.scorer.Score(sctx, tr, rub, trigs, am)
	metrics.ObserveStage(string(types.StatusScoring), time.Since(start).Seconds())
	return res, err
}

func (o *Orchestrator) timed(stage types.JobStatus, fn func() types.AudioMetrics) types.AudioMetrics {
	start := time.Now()
	out := fn()
	metrics.ObserveStage(string(stage), time.Since(start).Seconds())
	return out
}

// advance persists the next status before its stage runs. A transition that
// does not apply means the job was mutated out from under us; treat it as a
// stage failure rather than continuing on stale state.
func (o *Orchestrator) advance(ctx context.Context, jobID string, from, to types.JobStatus) error {
	ok, err := o.store.Transition(ctx, jobID, from, to)
	if err != nil {
		return o.fail(ctx, jobID, from, err)
	}
	if !ok {
		return o.fail(ctx, jobID, from, fmt.Errorf("status changed externally during %s", from))
	}
	return nil
}

// fail records the terminal state; no partial report is ever persisted for a
// failed job.
func (o *Orchestrator) fail(ctx context.Context, jobID string, stage types.JobStatus, cause error) error {
	stageErr := &StageError{Stage: string(stage), Err: cause}
	if err := o.store.MarkFailed(ctx, jobID, stageErr.Error()); err != nil {
		o.log.WithField("job_id", jobID).WithField("error", err.Error()).Error("failed to persist failed state")
	}
	metrics.JobFailed(string(stage))
	o.log.WithField("job_id", jobID).WithField("stage", stage).WithField("error", cause.Error()).Error("pipeline failed")
	return stageErr
}

// notify posts the finished report to the job's webhook. Fire and forget: a
// webhook problem never affects job state.
func (o *Orchestrator) notify(ctx context.Context, job types.Job, rep types.Report) {
	payload, err := json.Marshal(map[string]any{
		"job_id":      job.ID,
		"status":      types.StatusDone,
		"final_score": rep.Scores.FinalScore,
		"ethics_flag": rep.Scores.EthicsFlag,
		"report":      rep,
	})
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		o.log.WithField("job_id", job.ID).WithField("error", err.Error()).Warn("webhook request build failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.httpClient.Do(req)
	if err != nil {
		o.log.WithField("job_id", job.ID).WithField("error", err.Error()).Warn("webhook delivery failed")
		return
	}
	defer resp.Body.Close()
	o.log.WithField("job_id", job.ID).WithField("webhook_status", resp.StatusCode).Info("webhook delivered")
}
