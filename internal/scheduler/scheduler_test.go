package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/teleconnection-forecast/internal/store"
	"github.com/i474232898/teleconnection-forecast/internal/teleconnection"
)

type recordingWarmer struct {
	mu      sync.Mutex
	queries []teleconnection.ModelQuery
	done    chan struct{}
}

func (w *recordingWarmer) Warm(_ context.Context, qs []teleconnection.ModelQuery) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.queries == nil {
		w.queries = qs
		close(w.done)
	}
	return len(qs)
}

func TestLatestRun(t *testing.T) {
	tests := []struct {
		now  time.Time
		lag  time.Duration
		date time.Time
		run  teleconnection.ModelRun
	}{
		{
			now:  time.Date(2024, 1, 15, 13, 30, 0, 0, time.UTC),
			lag:  0,
			date: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			run:  teleconnection.Run12,
		},
		{
			now:  time.Date(2024, 1, 15, 13, 30, 0, 0, time.UTC),
			lag:  6 * time.Hour,
			date: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			run:  teleconnection.Run06,
		},
		{
			now:  time.Date(2024, 1, 15, 3, 0, 0, 0, time.UTC),
			lag:  6 * time.Hour,
			date: time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC),
			run:  teleconnection.Run18,
		},
		{
			now:  time.Date(2024, 1, 15, 18, 0, 0, 0, time.FixedZone("EST", -5*3600)),
			lag:  0,
			date: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			run:  teleconnection.Run18,
		},
	}

	for _, tt := range tests {
		date, run := LatestRun(tt.now, tt.lag)
		assert.True(t, tt.date.Equal(date), "date for %s: got %s", tt.now, date)
		assert.Equal(t, tt.run, run, "run for %s", tt.now)
	}
}

func TestWarmQueries(t *testing.T) {
	s := New(&recordingWarmer{}, store.NewMemoryStore(0, time.Hour), Options{
		Models:  []string{"gfs", "gefs"},
		Indices: []teleconnection.Index{teleconnection.IndexPNA, teleconnection.IndexAO},
		RunLag:  6 * time.Hour,
	})

	qs := s.warmQueries(time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC))
	require.Len(t, qs, 4)
	for _, q := range qs {
		assert.Equal(t, teleconnection.Run12, q.Run)
		assert.Equal(t, "20240115", q.CompactDate())
	}
	assert.Equal(t, "gfs", qs[0].Model)
	assert.Equal(t, teleconnection.IndexPNA, qs[0].Index)
	assert.Equal(t, "gefs", qs[3].Model)
	assert.Equal(t, teleconnection.IndexAO, qs[3].Index)
}

func TestStartWithoutCacheSchedulesNothing(t *testing.T) {
	s := New(&recordingWarmer{}, nil, Options{Models: []string{"gfs"}})
	require.NoError(t, s.Start())
	s.Stop()
}

func TestStartRunsWarmJob(t *testing.T) {
	w := &recordingWarmer{done: make(chan struct{})}
	s := New(w, store.NewMemoryStore(0, time.Hour), Options{
		PruneInterval: time.Hour,
		Models:        []string{"gfs"},
		Indices:       []teleconnection.Index{teleconnection.IndexNAO},
		WarmInterval:  time.Hour,
	})
	require.NoError(t, s.Start())
	defer s.Stop()

	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		t.Fatal("warm job did not run")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.queries, 1)
	assert.Equal(t, "gfs", w.queries[0].Model)
	assert.Equal(t, teleconnection.IndexNAO, w.queries[0].Index)
}
