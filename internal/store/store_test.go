package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-audit-go/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newJob(id string) types.Job {
	now := time.Now().UTC()
	return types.Job{
		ID:        id,
		Status:    types.StatusUploaded,
		AudioPath: "/data/jobs/" + id + "/audio.wav",
		Language:  "auto",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestJobRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newJob("job-1")
	job.RubricPath = "/data/jobs/job-1/rubric.xlsx"
	job.WebhookURL = "https://example.com/hook"
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, types.StatusUploaded, got.Status)
	assert.Equal(t, job.AudioPath, got.AudioPath)
	assert.Equal(t, job.RubricPath, got.RubricPath)
	assert.Equal(t, job.WebhookURL, got.WebhookURL)
	assert.WithinDuration(t, job.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestGetJobNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransitionGuarded(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, newJob("job-1")))

	ok, err := s.Transition(ctx, "job-1", types.StatusUploaded, types.StatusTranscribing)
	require.NoError(t, err)
	assert.True(t, ok)

	// Same transition again: the job is no longer in the expected status.
	ok, err = s.Transition(ctx, "job-1", types.StatusUploaded, types.StatusTranscribing)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusTranscribing, got.Status)
}

func TestTransitionUnknownJob(t *testing.T) {
	s := openTestStore(t)
	ok, err := s.Transition(context.Background(), "missing", types.StatusUploaded, types.StatusTranscribing)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkFailedFromAnyNonTerminalState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, newJob("job-1")))

	_, err := s.Transition(ctx, "job-1", types.StatusUploaded, types.StatusTranscribing)
	require.NoError(t, err)
	require.NoError(t, s.MarkFailed(ctx, "job-1", "transcribing: boom"))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, "transcribing: boom", got.Error)
}

func TestMarkFailedDoesNotTouchDoneJobs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newJob("job-1")
	job.Status = types.StatusDone
	require.NoError(t, s.CreateJob(ctx, job))

	require.NoError(t, s.MarkFailed(ctx, "job-1", "late failure"))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, got.Status)
	assert.Empty(t, got.Error)
}

func TestReportRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, newJob("job-1")))

	rep := types.Report{
		ScoreResult: types.ScoreResult{
			Scores: types.Scores{
				MandatoryAvg: 1.5,
				GeneralAvg:   2.0,
				EthicsFlag:   true,
				FinalScore:   7.0,
			},
		},
		Summary: types.Summary{TotalCriteria: 5, PassedCriteria: 4, PassRate: 0.8},
	}
	require.NoError(t, s.SaveReport(ctx, "job-1", rep))

	got, err := s.GetReport(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 7.0, got.Scores.FinalScore)
	assert.True(t, got.Scores.EthicsFlag)
	assert.Equal(t, 5, got.Summary.TotalCriteria)
}

func TestGetReportNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetReport(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
