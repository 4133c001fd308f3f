package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakeside-credit/spread-cli/internal/model"
	"github.com/lakeside-credit/spread-cli/internal/store"
)

func TestWorker_ProcessSuccess(t *testing.T) {
	st := newMemStore()
	sched := newTestScheduler(st)
	ctx := context.Background()

	created, err := sched.Enqueue(ctx, model.JobKindExtractDocument, "t1", "case-1", nil)
	require.NoError(t, err)

	w := NewWorker(sched, store.JobFilter{}, WorkerConfig{Concurrency: 1})
	var handled *model.Job
	w.Register(model.JobKindExtractDocument, func(_ context.Context, job *model.Job) error {
		handled = job
		return nil
	})

	leased, err := sched.Lease(ctx, store.JobFilter{})
	require.NoError(t, err)
	w.process(ctx, leased)

	require.NotNil(t, handled)
	assert.Equal(t, created.ID, handled.ID)

	got, err := st.GetJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSucceeded, got.Status)
}

func TestWorker_ProcessFailureRequeues(t *testing.T) {
	st := newMemStore()
	sched := newTestScheduler(st)
	ctx := context.Background()

	created, err := sched.Enqueue(ctx, model.JobKindRenderSpread, "t1", "case-1", nil)
	require.NoError(t, err)

	w := NewWorker(sched, store.JobFilter{}, WorkerConfig{Concurrency: 1})
	w.Register(model.JobKindRenderSpread, func(context.Context, *model.Job) error {
		return eris.New("datastore timeout")
	})

	leased, err := sched.Lease(ctx, store.JobFilter{})
	require.NoError(t, err)
	w.process(ctx, leased)

	got, err := st.GetJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, got.Status)
	assert.Equal(t, "datastore timeout", got.Error)
}

func TestWorker_HandlerPanicBecomesFailure(t *testing.T) {
	st := newMemStore()
	sched := newTestScheduler(st)
	ctx := context.Background()

	created, err := sched.Enqueue(ctx, model.JobKindExtractDocument, "t1", "case-1", nil)
	require.NoError(t, err)

	w := NewWorker(sched, store.JobFilter{}, WorkerConfig{Concurrency: 1})
	w.Register(model.JobKindExtractDocument, func(context.Context, *model.Job) error {
		panic("malformed document")
	})

	leased, err := sched.Lease(ctx, store.JobFilter{})
	require.NoError(t, err)
	w.process(ctx, leased)

	got, err := st.GetJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, got.Status)
	assert.Contains(t, got.Error, "handler panic")
}

func TestWorker_UnknownKindIsTerminal(t *testing.T) {
	st := newMemStore()
	sched := newTestScheduler(st)
	ctx := context.Background()

	created, err := sched.Enqueue(ctx, model.JobKind("mystery"), "t1", "case-1", nil)
	require.NoError(t, err)

	w := NewWorker(sched, store.JobFilter{}, WorkerConfig{Concurrency: 1})

	leased, err := sched.Lease(ctx, store.JobFilter{})
	require.NoError(t, err)
	w.process(ctx, leased)

	got, err := st.GetJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "no handler registered")
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	st := newMemStore()
	sched := newTestScheduler(st)

	w := NewWorker(sched, store.JobFilter{}, WorkerConfig{Concurrency: 2, PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
