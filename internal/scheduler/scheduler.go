package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/i474232898/teleconnection-forecast/internal/teleconnection"
)

// runSpacing is the interval between synoptic model runs.
const runSpacing = 6 * time.Hour

// Warmer loads forecast series into the cache ahead of requests.
type Warmer interface {
	Warm(ctx context.Context, queries []teleconnection.ModelQuery) int
}

// Options configures the periodic jobs.
type Options struct {
	PruneInterval time.Duration

	// Warm-up of the latest completed run; disabled when Models is empty.
	Models       []string
	Indices      []teleconnection.Index
	WarmInterval time.Duration
	RunLag       time.Duration
}

// Scheduler periodically prunes the series cache and warms it with the latest run.
type Scheduler struct {
	scheduler *gocron.Scheduler
	warmer    Warmer
	store     teleconnection.Store
	opts      Options
	now       func() time.Time
}

// New creates a new Scheduler.
func New(warmer Warmer, store teleconnection.Store, opts Options) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		warmer:    warmer,
		store:     store,
		opts:      opts,
		now:       time.Now,
	}
}

// Start schedules the jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.store == nil {
		log.Println("scheduler: series cache disabled; nothing to schedule")
		return nil
	}

	pruneEvery := s.opts.PruneInterval
	if pruneEvery <= 0 {
		pruneEvery = 15 * time.Minute
	}
	_, err := s.scheduler.Every(pruneEvery).Do(func() {
		if n := s.store.Prune(s.now()); n > 0 {
			log.Printf("scheduler: pruned %d expired series", n)
		}
	})
	if err != nil {
		return err
	}

	if len(s.opts.Models) > 0 && len(s.opts.Indices) > 0 {
		warmEvery := s.opts.WarmInterval
		if warmEvery <= 0 {
			warmEvery = time.Hour
		}
		_, err = s.scheduler.Every(warmEvery).SingletonMode().Do(s.warm)
		if err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) warm() {
	queries := s.warmQueries(s.now())
	log.Printf("scheduler: warming %d series", len(queries))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	n := s.warmer.Warm(ctx, queries)
	log.Printf("scheduler: completed warm job, %d series loaded", n)
}

// warmQueries lists every configured model x index for the latest run.
func (s *Scheduler) warmQueries(now time.Time) []teleconnection.ModelQuery {
	date, run := LatestRun(now, s.opts.RunLag)

	queries := make([]teleconnection.ModelQuery, 0, len(s.opts.Models)*len(s.opts.Indices))
	for _, idx := range s.opts.Indices {
		for _, m := range s.opts.Models {
			queries = append(queries, teleconnection.ModelQuery{
				Model: m,
				Date:  date,
				Run:   run,
				Index: idx,
			})
		}
	}
	return queries
}

// LatestRun returns the date and run of the most recent model cycle that
// started at least lag before now.
func LatestRun(now time.Time, lag time.Duration) (time.Time, teleconnection.ModelRun) {
	t := now.UTC().Add(-lag).Truncate(runSpacing)
	date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	run := teleconnection.ModelRuns[t.Hour()/6]
	return date, run
}
