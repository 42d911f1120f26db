package teleconnection

import (
	"context"
	"time"
)

// Fetcher retrieves the raw forecast payload for one query.
// Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, q ModelQuery) ([]byte, error)
}

// Renderer turns a dataset into an encoded chart image.
type Renderer interface {
	Render(ds *ModelDataset, labels ChartLabels) ([]byte, error)
}

// Store caches parsed series between requests.
type Store interface {
	Get(q ModelQuery) (ForecastSeries, bool)
	Put(q ModelQuery, s ForecastSeries)
	Prune(now time.Time) int
}
