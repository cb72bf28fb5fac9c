package measurementsync

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/measureme/internal/models"
	"github.com/noah-isme/measureme/pkg/config"
	appErrors "github.com/noah-isme/measureme/pkg/errors"
)

type fakePoster struct {
	mu       sync.Mutex
	received []models.Measurement
	errFor   map[string]error
	failures map[string]int
}

func (p *fakePoster) CreateMeasurement(ctx context.Context, m models.Measurement) (*models.Measurement, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures[m.StudentID] > 0 {
		p.failures[m.StudentID]--
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "")
	}
	if err := p.errFor[m.StudentID]; err != nil {
		return nil, err
	}
	p.received = append(p.received, m)
	return &m, nil
}

type blockingPoster struct {
	entered chan struct{}
}

func (p *blockingPoster) CreateMeasurement(ctx context.Context, m models.Measurement) (*models.Measurement, error) {
	select {
	case p.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestAgent(t *testing.T, poster Poster, retries int) (*Agent, *Spool) {
	t.Helper()
	spool, _ := newTestSpool(t)
	agent := NewAgent(spool, poster, config.SyncConfig{Workers: 2, MaxRetries: retries, RetryDelay: time.Millisecond}, nil)
	agent.Start(context.Background())
	t.Cleanup(agent.Stop)
	return agent, spool
}

func TestRecordValidates(t *testing.T) {
	agent, _ := newTestAgent(t, &fakePoster{}, 0)
	_, err := agent.Record("", 0, 10, time.Time{})
	require.Error(t, err)
	var verr *appErrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("student_id"))
	assert.True(t, verr.Has("height"))
	assert.False(t, verr.Has("weight"))
}

func TestRecordRejectsNonFiniteReadings(t *testing.T) {
	agent, spool := newTestAgent(t, &fakePoster{}, 0)
	_, err := agent.Record("s-1", math.NaN(), math.Inf(1), time.Time{})
	var verr *appErrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("height"))
	assert.True(t, verr.Has("weight"))

	pending, errs := spool.Pending()
	assert.Empty(t, errs)
	assert.Empty(t, pending)
}

func TestSyncOnceDeliversAndClearsSpool(t *testing.T) {
	poster := &fakePoster{}
	agent, spool := newTestAgent(t, poster, 0)
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	_, err := agent.Record("s-1", 150, 40, at)
	require.NoError(t, err)
	_, err = agent.Record("s-2", 151, 41, time.Time{})
	require.NoError(t, err)

	res, err := agent.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 0, res.Pending())

	entries, _ := spool.Pending()
	assert.Empty(t, entries)
	require.Len(t, poster.received, 2)
	for _, m := range poster.received {
		if m.StudentID == "s-1" {
			assert.True(t, m.Timestamp.Equal(at))
		}
	}
}

func TestSyncOnceRetriesTransientFailures(t *testing.T) {
	poster := &fakePoster{failures: map[string]int{"s-1": 2}}
	agent, _ := newTestAgent(t, poster, 3)
	_, err := agent.Record("s-1", 150, 40, time.Time{})
	require.NoError(t, err)

	res, err := agent.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
}

func TestSyncOnceKeepsEntriesWhenServiceIsDown(t *testing.T) {
	poster := &fakePoster{failures: map[string]int{"s-1": 100}}
	agent, spool := newTestAgent(t, poster, 1)
	_, err := agent.Record("s-1", 150, 40, time.Time{})
	require.NoError(t, err)

	res, err := agent.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Pending())

	entries, _ := spool.Pending()
	assert.Len(t, entries, 1)
}

func TestSyncOnceSetsAsideRejectedReadings(t *testing.T) {
	poster := &fakePoster{errFor: map[string]error{"ghost": appErrors.Clone(appErrors.ErrNotFound, "student not found")}}
	agent, spool := newTestAgent(t, poster, 3)
	_, err := agent.Record("ghost", 150, 40, time.Time{})
	require.NoError(t, err)

	res, err := agent.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rejected)

	entries, _ := spool.Pending()
	assert.Empty(t, entries)
	rejected, err := spool.Rejected()
	require.NoError(t, err)
	assert.Len(t, rejected, 1)
}

func TestStopReleasesInFlightSyncPass(t *testing.T) {
	poster := &blockingPoster{entered: make(chan struct{}, 1)}
	spool, _ := newTestSpool(t)
	agent := NewAgent(spool, poster, config.SyncConfig{Workers: 1, MaxRetries: 2, RetryDelay: time.Millisecond}, nil)
	agent.Start(context.Background())

	_, err := agent.Record("s-1", 150, 40, time.Time{})
	require.NoError(t, err)

	results := make(chan Result, 1)
	go func() {
		res, _ := agent.SyncOnce(context.Background())
		results <- res
	}()
	select {
	case <-poster.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never started")
	}
	agent.Stop()

	select {
	case res := <-results:
		assert.Equal(t, 1, res.Failed)
		assert.Zero(t, res.Sent)
	case <-time.After(2 * time.Second):
		t.Fatal("sync pass did not return after stop")
	}
	pending, errs := spool.Pending()
	assert.Empty(t, errs)
	assert.Len(t, pending, 1)
}

func TestRunStopsWithContext(t *testing.T) {
	poster := &fakePoster{}
	spool, _ := newTestSpool(t)
	agent := NewAgent(spool, poster, config.SyncConfig{Interval: time.Hour, RetryDelay: time.Millisecond}, nil)
	_, err := agent.Record("s-1", 150, 40, time.Time{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx) }()

	require.Eventually(t, func() bool {
		poster.mu.Lock()
		defer poster.mu.Unlock()
		return len(poster.received) == 1
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
