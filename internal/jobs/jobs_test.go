package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewJob(t *testing.T) {
	job, err := NewJob(JobTypeScan, map[string]string{"sourceDir": "/src"})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, JobQueued, job.Status)
	assert.Equal(t, `{"sourceDir":"/src"}`, job.Scope)

	job, err = NewJob(JobTypeScan, nil)
	require.NoError(t, err)
	assert.Empty(t, job.Scope)
}

func TestJobTransitions(t *testing.T) {
	job, _ := NewJob(JobTypeScan, nil)
	job.MarkStarted()
	assert.Equal(t, JobRunning, job.Status)
	assert.NotNil(t, job.StartedAt)
	assert.False(t, job.IsTerminal())

	job.SetProgress(150)
	assert.Equal(t, 100, job.Progress)
	job.SetProgress(-3)
	assert.Equal(t, 0, job.Progress)

	require.NoError(t, job.MarkCompleted(map[string]int{"entities": 3}))
	assert.Equal(t, JobCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, `{"entities":3}`, job.Result)
	assert.True(t, job.IsTerminal())

	failed, _ := NewJob(JobTypeScan, nil)
	failed.MarkFailed(errors.New("boom"))
	assert.Equal(t, JobFailed, failed.Status)
	assert.Equal(t, "boom", failed.Error)
}

func TestStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)

	job, _ := NewJob(JobTypeScan, map[string]string{"sourceDir": "/src"})
	require.NoError(t, store.CreateJob(job))

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, JobQueued, got.Status)
	assert.Equal(t, job.Scope, got.Scope)
	assert.True(t, job.CreatedAt.Equal(got.CreatedAt))
	assert.Nil(t, got.StartedAt)

	job.MarkStarted()
	job.SetProgress(40)
	require.NoError(t, store.UpdateJob(job))

	got, err = store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobRunning, got.Status)
	assert.Equal(t, 40, got.Progress)
	require.NotNil(t, got.StartedAt)
	assert.True(t, job.StartedAt.Equal(*got.StartedAt))
}

func TestStoreNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetJob("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = store.Latest()
	assert.ErrorIs(t, err, ErrJobNotFound)

	job, _ := NewJob(JobTypeScan, nil)
	assert.ErrorIs(t, store.UpdateJob(job), ErrJobNotFound)
}

func TestStoreLatestAndList(t *testing.T) {
	store := openTestStore(t)

	var ids []string
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		job, _ := NewJob(JobTypeScan, nil)
		job.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.CreateJob(job))
		ids = append(ids, job.ID)
	}

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, ids[2], latest.ID)

	jobs, err := store.List(2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, ids[2], jobs[0].ID)
	assert.Equal(t, ids[1], jobs[1].ID)
}

func TestStoreFailInterrupted(t *testing.T) {
	store := openTestStore(t)

	running, _ := NewJob(JobTypeScan, nil)
	running.MarkStarted()
	require.NoError(t, store.CreateJob(running))
	done, _ := NewJob(JobTypeScan, nil)
	require.NoError(t, done.MarkCompleted(nil))
	require.NoError(t, store.CreateJob(done))

	n, err := store.FailInterrupted()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.GetJob(running.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, got.Status)
	assert.Equal(t, "interrupted", got.Error)

	got, err = store.GetJob(done.ID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, got.Status)
}

func TestRunnerCompletesJob(t *testing.T) {
	store := openTestStore(t)
	runner := NewRunner(store, nil)

	job, err := runner.Submit(JobTypeScan, nil, func(ctx context.Context, progress func(int)) (any, error) {
		progress(50)
		return map[string]int{"entities": 7}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, JobQueued, job.Status)
	runner.Wait()

	got, err := runner.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.CompletedAt)

	var result map[string]int
	require.NoError(t, json.Unmarshal([]byte(got.Result), &result))
	assert.Equal(t, 7, result["entities"])

	latest, err := runner.Latest()
	require.NoError(t, err)
	assert.Equal(t, job.ID, latest.ID)
}

func TestRunnerRecordsFailure(t *testing.T) {
	store := openTestStore(t)
	runner := NewRunner(store, nil)

	job, err := runner.Submit(JobTypeScan, nil, func(ctx context.Context, progress func(int)) (any, error) {
		progress(30)
		return nil, errors.New("source directory vanished")
	})
	require.NoError(t, err)
	runner.Wait()

	got, err := runner.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, got.Status)
	assert.Equal(t, 30, got.Progress)
	assert.Equal(t, "source directory vanished", got.Error)
}

func TestRunnerStopCancelsJobs(t *testing.T) {
	store := openTestStore(t)
	runner := NewRunner(store, nil)

	started := make(chan struct{})
	job, err := runner.Submit(JobTypeScan, nil, func(ctx context.Context, progress func(int)) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	<-started
	runner.Stop()

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, got.Status)

	_, err = runner.Submit(JobTypeScan, nil, func(ctx context.Context, progress func(int)) (any, error) { return nil, nil })
	assert.Error(t, err)
}
