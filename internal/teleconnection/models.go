package teleconnection

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// FileSuffix is appended to the index name to form the provider file name.
const FileSuffix = "-forecast.csv"

// ModelRun is the synoptic initialization hour of a forecast cycle.
type ModelRun string

const (
	Run00 ModelRun = "00"
	Run06 ModelRun = "06"
	Run12 ModelRun = "12"
	Run18 ModelRun = "18"
)

// ModelRuns lists the supported runs in chronological order.
var ModelRuns = []ModelRun{Run00, Run06, Run12, Run18}

// ParseModelRun accepts "0", "06", "12z", "18Z" and similar spellings.
func ParseModelRun(s string) (ModelRun, error) {
	v := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "z")
	if len(v) == 1 {
		v = "0" + v
	}
	for _, r := range ModelRuns {
		if string(r) == v {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: unknown model run %q", ErrInvalidRequest, s)
}

// Hour returns the run hour as an integer.
func (r ModelRun) Hour() int {
	switch r {
	case Run06:
		return 6
	case Run12:
		return 12
	case Run18:
		return 18
	default:
		return 0
	}
}

// Index is a teleconnection index name, always lower-case.
type Index string

const (
	IndexAO  Index = "ao"
	IndexNAO Index = "nao"
	IndexPNA Index = "pna"
	IndexEPO Index = "epo"
	IndexWPO Index = "wpo"
)

// Indices lists every index the provider publishes forecasts for.
var Indices = []Index{IndexAO, IndexNAO, IndexPNA, IndexEPO, IndexWPO}

// ParseIndex lower-cases s and checks it against the supported indices.
func ParseIndex(s string) (Index, error) {
	v := Index(strings.ToLower(strings.TrimSpace(s)))
	for _, idx := range Indices {
		if idx == v {
			return idx, nil
		}
	}
	return "", fmt.Errorf("%w: unknown index %q", ErrInvalidRequest, s)
}

const (
	isoDateLayout     = "2006-01-02"
	compactDateLayout = "20060102"
)

// ParseDate accepts the user-facing ISO form (2024-01-15) or the compact
// provider form (20240115).
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{isoDateLayout, compactDateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q; use YYYY-MM-DD", ErrInvalidRequest, s)
}

// FormatISODate renders a date the way users enter it.
func FormatISODate(t time.Time) string {
	return t.Format(isoDateLayout)
}

// ModelQuery identifies one forecast file at the provider.
type ModelQuery struct {
	Model string
	Date  time.Time
	Run   ModelRun
	Index Index
}

// CompactDate returns the digits-only date used in provider paths.
func (q ModelQuery) CompactDate() string {
	return q.Date.Format(compactDateLayout)
}

// FileName returns the CSV file name for the query's index.
func (q ModelQuery) FileName() string {
	return string(q.Index) + FileSuffix
}

// Path builds the provider path (without host or query string).
func (q ModelQuery) Path(apiVersion string) string {
	return fmt.Sprintf("/%s/model-data/%s/%s/%s/teleconnection/%s",
		strings.Trim(apiVersion, "/"),
		url.PathEscape(q.Model),
		q.CompactDate(),
		q.Run,
		q.FileName(),
	)
}

// Key returns a canonical string key for caching this query.
func (q ModelQuery) Key() string {
	return strings.Join([]string{q.Model, q.CompactDate(), string(q.Run), string(q.Index)}, ":")
}

func (q ModelQuery) String() string {
	return fmt.Sprintf("model=%s date=%s run=%s index=%s", q.Model, q.CompactDate(), q.Run, q.Index)
}

// ForecastSeries is one value per forecast hour, hours in provider order.
type ForecastSeries struct {
	Hours  []int     `json:"hours"`
	Values []float64 `json:"values"`
}

// Validate checks that the series is non-empty and that hours and values align.
func (s ForecastSeries) Validate() error {
	if len(s.Hours) == 0 {
		return errors.New("series has no hours")
	}
	if len(s.Hours) != len(s.Values) {
		return fmt.Errorf("series has %d hours but %d values", len(s.Hours), len(s.Values))
	}
	return nil
}

// ModelDataset maps model identifiers to series, preserving insertion order.
type ModelDataset struct {
	order  []string
	series map[string]ForecastSeries
}

// NewModelDataset creates an empty dataset.
func NewModelDataset() *ModelDataset {
	return &ModelDataset{series: make(map[string]ForecastSeries)}
}

// Set stores the series for model. A model that is already present keeps its
// original position.
func (d *ModelDataset) Set(model string, s ForecastSeries) {
	if _, ok := d.series[model]; !ok {
		d.order = append(d.order, model)
	}
	d.series[model] = s
}

// Get returns the series for model.
func (d *ModelDataset) Get(model string) (ForecastSeries, bool) {
	s, ok := d.series[model]
	return s, ok
}

// Models returns the model identifiers in insertion order.
func (d *ModelDataset) Models() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Len returns the number of series.
func (d *ModelDataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.order)
}

// Each calls fn for every series in insertion order.
func (d *ModelDataset) Each(fn func(model string, s ForecastSeries)) {
	if d == nil {
		return
	}
	for _, m := range d.order {
		fn(m, d.series[m])
	}
}

// PlotRequest is one user request for a comparative chart.
type PlotRequest struct {
	Models []string
	Date   time.Time
	Run    ModelRun
	Index  Index
}

// Queries expands the request into one query per distinct model, keeping the
// order in which models were first selected.
func (r PlotRequest) Queries() []ModelQuery {
	seen := make(map[string]struct{}, len(r.Models))
	out := make([]ModelQuery, 0, len(r.Models))
	for _, m := range r.Models {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, ModelQuery{Model: m, Date: r.Date, Run: r.Run, Index: r.Index})
	}
	return out
}

// Labels returns the chart labeling metadata for the request.
func (r PlotRequest) Labels() ChartLabels {
	return ChartLabels{Index: r.Index, Run: r.Run, Date: r.Date}
}

// ChartLabels carries the metadata the renderer needs for titles and axes.
type ChartLabels struct {
	Index Index
	Run   ModelRun
	Date  time.Time
}

// PlotResult is the outcome of one pipeline execution.
type PlotResult struct {
	RequestID string
	// Date echoes the requested date in ISO form for display.
	Date     string
	Dataset  *ModelDataset
	Failures []*QueryError
	Image    []byte
}
