package teleconnection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel model fetches when no limit is configured.
const DefaultConcurrency = 4

// Service runs the fetch -> parse -> render pipeline for plot requests.
type Service struct {
	fetcher     Fetcher
	renderer    Renderer
	store       Store
	concurrency int
}

// NewService creates a new Service. store may be nil to disable caching.
func NewService(fetcher Fetcher, renderer Renderer, store Store, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Service{
		fetcher:     fetcher,
		renderer:    renderer,
		store:       store,
		concurrency: concurrency,
	}
}

// Dataset fetches and parses every requested model concurrently and joins the
// results in request order. Models that fail are left out of the dataset and
// reported as failures. If no model succeeds the error wraps ErrNoSeries.
func (s *Service) Dataset(ctx context.Context, req PlotRequest) (*ModelDataset, []*QueryError, error) {
	_, queries, err := normalizeRequest(req)
	if err != nil {
		return nil, nil, err
	}

	type outcome struct {
		series ForecastSeries
		err    *QueryError
	}
	outcomes := make([]outcome, len(queries))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			series, err := s.load(ctx, q)
			outcomes[i] = outcome{series: series, err: err}
			return nil
		})
	}
	_ = g.Wait()

	ds := NewModelDataset()
	var failures []*QueryError
	for i, q := range queries {
		if outcomes[i].err != nil {
			failures = append(failures, outcomes[i].err)
			continue
		}
		ds.Set(q.Model, outcomes[i].series)
	}

	if ds.Len() == 0 {
		errs := []error{ErrNoSeries}
		for _, f := range failures {
			errs = append(errs, f)
		}
		return ds, failures, errors.Join(errs...)
	}
	return ds, failures, nil
}

// Plot builds the dataset for req and renders it.
func (s *Service) Plot(ctx context.Context, req PlotRequest) (PlotResult, error) {
	id := uuid.NewString()
	result := PlotResult{RequestID: id, Date: FormatISODate(req.Date)}

	req, _, err := normalizeRequest(req)
	if err != nil {
		return result, err
	}

	log.Printf("DEBUG: plot %s requested: models=%s index=%s run=%s date=%s",
		id, strings.Join(req.Models, ","), req.Index, req.Run, result.Date)

	ds, failures, err := s.Dataset(ctx, req)
	result.Dataset = ds
	result.Failures = failures
	for _, f := range failures {
		log.Printf("plot %s: model %s failed (%s): %v", id, f.Query.Model, f.Kind(), f.Err)
	}
	if err != nil {
		return result, err
	}

	img, err := s.renderer.Render(ds, req.Labels())
	if err != nil {
		return result, fmt.Errorf("rendering chart: %w", err)
	}
	result.Image = img

	log.Printf("INFO: plot %s rendered %d of %d models (%s)",
		id, ds.Len(), ds.Len()+len(failures), humanize.Bytes(uint64(len(img))))
	return result, nil
}

// Warm loads the given queries into the cache, skipping ones already cached.
// It returns the number of series newly loaded.
func (s *Service) Warm(ctx context.Context, queries []ModelQuery) int {
	if s.store == nil {
		return 0
	}

	var loaded atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, q := range queries {
		if _, ok := s.store.Get(q); ok {
			continue
		}
		q := q
		g.Go(func() error {
			if _, err := s.load(ctx, q); err != nil {
				log.Printf("warm: %v", err)
				return nil
			}
			loaded.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(loaded.Load())
}

// load resolves one query through the cache, the fetcher, and the parser.
func (s *Service) load(ctx context.Context, q ModelQuery) (ForecastSeries, *QueryError) {
	if s.store != nil {
		if series, ok := s.store.Get(q); ok {
			return series, nil
		}
	}

	payload, err := s.fetcher.Fetch(ctx, q)
	if err != nil {
		return ForecastSeries{}, &QueryError{Query: q, Err: err}
	}

	series, err := ParseSeries(payload)
	if err != nil {
		return ForecastSeries{}, &QueryError{Query: q, Err: err}
	}

	if s.store != nil {
		s.store.Put(q, series)
	}
	return series, nil
}

// normalizeRequest canonicalizes the run and index spellings and checks that
// the request names at least one model.
func normalizeRequest(req PlotRequest) (PlotRequest, []ModelQuery, error) {
	if req.Date.IsZero() {
		return req, nil, fmt.Errorf("%w: date is required", ErrInvalidRequest)
	}
	run, err := ParseModelRun(string(req.Run))
	if err != nil {
		return req, nil, err
	}
	idx, err := ParseIndex(string(req.Index))
	if err != nil {
		return req, nil, err
	}
	req.Run, req.Index = run, idx
	queries := req.Queries()
	if len(queries) == 0 {
		return req, nil, fmt.Errorf("%w: at least one model is required", ErrInvalidRequest)
	}
	return req, queries, nil
}
