package teleconnection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	payloads map[string]string
	failures map[string]error
	delay    map[string]time.Duration

	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *stubFetcher) Fetch(ctx context.Context, q ModelQuery) ([]byte, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	if d := f.delay[q.Model]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, &TransportError{Model: q.Model, Query: q, Err: ctx.Err()}
		}
	}
	if err, ok := f.failures[q.Model]; ok {
		return nil, err
	}
	return []byte(f.payloads[q.Model]), nil
}

type stubRenderer struct {
	mu     sync.Mutex
	models []string
	labels ChartLabels
}

func (r *stubRenderer) Render(ds *ModelDataset, labels ChartLabels) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = ds.Models()
	r.labels = labels
	return []byte("png"), nil
}

type mapStore struct {
	mu   sync.Mutex
	data map[string]ForecastSeries
}

func (s *mapStore) Get(q ModelQuery) (ForecastSeries, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[q.Key()]
	return v, ok
}

func (s *mapStore) Put(q ModelQuery, series ForecastSeries) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[q.Key()] = series
}

func (s *mapStore) Prune(time.Time) int { return 0 }

func testRequest(models ...string) PlotRequest {
	return PlotRequest{
		Models: models,
		Date:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Run:    Run00,
		Index:  IndexPNA,
	}
}

func TestServiceDatasetKeepsRequestOrder(t *testing.T) {
	fetcher := &stubFetcher{
		payloads: map[string]string{
			"gfs":  "member,0,24\n0,1,2\n",
			"gefs": "member,0,24\n1,1,2\n2,3,4\n",
			"cmc":  "member,0,24\n0,-1,-2\n",
		},
		// The first model finishes last.
		delay: map[string]time.Duration{"gfs": 30 * time.Millisecond},
	}
	svc := NewService(fetcher, &stubRenderer{}, nil, 3)

	ds, failures, err := svc.Dataset(context.Background(), testRequest("gfs", "gefs", "cmc"))
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Equal(t, []string{"gfs", "gefs", "cmc"}, ds.Models())

	gefs, _ := ds.Get("gefs")
	assert.Equal(t, []float64{2, 3}, gefs.Values)
}

func TestServiceSkipsFailedModels(t *testing.T) {
	fetcher := &stubFetcher{
		payloads: map[string]string{"gfs": "member,0,24\n0,1,2\n"},
		failures: map[string]error{"ecmwf": &ProviderError{Model: "ecmwf", StatusCode: 500}},
	}
	svc := NewService(fetcher, &stubRenderer{}, nil, 2)

	ds, failures, err := svc.Dataset(context.Background(), testRequest("ecmwf", "gfs"))
	require.NoError(t, err)
	assert.Equal(t, []string{"gfs"}, ds.Models())

	require.Len(t, failures, 1)
	assert.Equal(t, "ecmwf", failures[0].Query.Model)
	assert.Equal(t, Run00, failures[0].Query.Run)
	assert.Equal(t, 500, failures[0].StatusCode())

	var pe *ProviderError
	assert.ErrorAs(t, failures[0], &pe)
}

func TestServiceReportsParseFailures(t *testing.T) {
	fetcher := &stubFetcher{
		payloads: map[string]string{
			"gfs":  "member,0,24\n0,1,2\n",
			"cmc":  "member,0,24\n0,1\n",
			"navy": "member,0,24\n0,1,\xff\n",
		},
	}
	svc := NewService(fetcher, &stubRenderer{}, nil, 0)

	ds, failures, err := svc.Dataset(context.Background(), testRequest("gfs", "cmc", "navy"))
	require.NoError(t, err)
	assert.Equal(t, []string{"gfs"}, ds.Models())
	require.Len(t, failures, 2)
	assert.Equal(t, "schema", failures[0].Kind())
	assert.Equal(t, "decode", failures[1].Kind())
}

func TestServiceAllModelsFailed(t *testing.T) {
	fetcher := &stubFetcher{
		failures: map[string]error{
			"gfs":  &TransportError{Model: "gfs", Err: errors.New("timeout")},
			"gefs": &ProviderError{Model: "gefs", StatusCode: 404},
		},
	}
	renderer := &stubRenderer{}
	svc := NewService(fetcher, renderer, nil, 2)

	result, err := svc.Plot(context.Background(), testRequest("gfs", "gefs"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSeries)
	assert.Len(t, result.Failures, 2)
	assert.Nil(t, result.Image)
	assert.Nil(t, renderer.models)

	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestServiceRejectsInvalidRequest(t *testing.T) {
	fetcher := &stubFetcher{}
	svc := NewService(fetcher, &stubRenderer{}, nil, 2)

	cases := []PlotRequest{
		{Date: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), Run: Run00, Index: IndexPNA},
		{Models: []string{"gfs"}, Run: Run00, Index: IndexPNA},
		{Models: []string{"gfs"}, Date: time.Now(), Run: "03", Index: IndexPNA},
		{Models: []string{"gfs"}, Date: time.Now(), Run: Run00, Index: "enso"},
	}
	for _, req := range cases {
		_, _, err := svc.Dataset(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
	assert.Zero(t, fetcher.calls.Load())
}

func TestServicePlotRendersNormalizedLabels(t *testing.T) {
	fetcher := &stubFetcher{payloads: map[string]string{"gfs": "member,0,24\n0,1,2\n"}}
	renderer := &stubRenderer{}
	svc := NewService(fetcher, renderer, nil, 1)

	req := testRequest("gfs")
	req.Run = "6z"
	req.Index = "NAO"

	result, err := svc.Plot(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), result.Image)
	assert.Equal(t, "2024-01-15", result.Date)
	assert.NotEmpty(t, result.RequestID)
	assert.Equal(t, []string{"gfs"}, renderer.models)
	assert.Equal(t, Run06, renderer.labels.Run)
	assert.Equal(t, IndexNAO, renderer.labels.Index)
}

func TestServiceBoundsConcurrency(t *testing.T) {
	fetcher := &stubFetcher{
		payloads: map[string]string{},
		delay:    map[string]time.Duration{},
	}
	var models []string
	for _, m := range []string{"a", "b", "c", "d", "e", "f"} {
		fetcher.payloads[m] = "member,0\n0,1\n"
		fetcher.delay[m] = 20 * time.Millisecond
		models = append(models, m)
	}
	svc := NewService(fetcher, &stubRenderer{}, nil, 2)

	ds, _, err := svc.Dataset(context.Background(), testRequest(models...))
	require.NoError(t, err)
	assert.Equal(t, 6, ds.Len())
	assert.LessOrEqual(t, fetcher.maxSeen.Load(), int32(2))
	assert.Equal(t, int32(2), fetcher.maxSeen.Load())
}

func TestServiceUsesStore(t *testing.T) {
	fetcher := &stubFetcher{payloads: map[string]string{"gfs": "member,0,24\n0,1,2\n"}}
	st := &mapStore{data: map[string]ForecastSeries{}}
	svc := NewService(fetcher, &stubRenderer{}, st, 1)

	for i := 0; i < 3; i++ {
		_, _, err := svc.Dataset(context.Background(), testRequest("gfs"))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestServiceWarm(t *testing.T) {
	fetcher := &stubFetcher{
		payloads: map[string]string{"gfs": "member,0\n0,1\n", "gefs": "member,0\n0,1\n"},
		failures: map[string]error{"bad": &ProviderError{Model: "bad", StatusCode: 404}},
	}
	st := &mapStore{data: map[string]ForecastSeries{}}
	svc := NewService(fetcher, &stubRenderer{}, st, 2)

	qs := testRequest("gfs", "gefs", "bad").Queries()
	assert.Equal(t, 2, svc.Warm(context.Background(), qs))
	// Cached entries are not fetched again.
	assert.Equal(t, 0, svc.Warm(context.Background(), qs[:2]))
	assert.Equal(t, int32(3), fetcher.calls.Load())

	assert.Equal(t, 0, NewService(fetcher, &stubRenderer{}, nil, 1).Warm(context.Background(), qs))
}
