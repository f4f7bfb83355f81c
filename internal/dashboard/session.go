// Package dashboard drives one dashboard page: it loads the three climate
// datasets, renders the charts, formats the summary and applies year-range
// changes to the custom-range chart.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/kjstillabower/climate-dashboard/internal/cache"
	"github.com/kjstillabower/climate-dashboard/internal/chart"
	"github.com/kjstillabower/climate-dashboard/internal/client"
	"github.com/kjstillabower/climate-dashboard/internal/models"
	"github.com/kjstillabower/climate-dashboard/internal/observability"
	"github.com/kjstillabower/climate-dashboard/internal/reqctx"
	"github.com/kjstillabower/climate-dashboard/internal/traffic"
)

var (
	ErrLoadFailed       = errors.New("dashboard load failed")
	ErrAlreadyLoaded    = errors.New("dashboard already loaded")
	ErrNotReady         = errors.New("dashboard not ready")
	ErrDisposed         = errors.New("dashboard disposed")
	ErrChartUnavailable = errors.New("chart unavailable")
)

// User-facing notice texts.
const (
	LoadFailureMessage  = "Failed to load climate data. Please try again later."
	InvalidRangeMessage = "Start year must be less than or equal to end year"
)

// DefaultRangeYears is the span of the initial custom range.
const DefaultRangeYears = 30

// State is the dashboard lifecycle state.
type State int

const (
	StateLoading State = iota
	StateReady
	StateUpdating
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateUpdating:
		return "updating"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// NoticeLevel distinguishes failures from input prompts.
type NoticeLevel string

const (
	NoticeError   NoticeLevel = "error"
	NoticeWarning NoticeLevel = "warning"
)

// Notice is the single dismissible message shown at the top of the page.
type Notice struct {
	Level   NoticeLevel
	Message string
}

// Options configures a Session. Zero values take defaults.
type Options struct {
	DefaultRangeYears int
	CacheTTL          time.Duration
	Now               func() time.Time
}

// Session is one dashboard page instance: create, Load, interact, Dispose.
type Session struct {
	ID        string
	CreatedAt time.Time

	client   client.ClimateClient
	renderer *chart.Renderer
	cache    cache.Cache
	opts     Options
	logger   *zap.Logger

	mu         sync.Mutex
	state      State
	loadCalled bool
	disposed   bool
	dataset    *models.Dataset
	years      []int
	selected   models.YearRange
	summary    Summary
	notice     *Notice
	generation uint64
	lastAccess time.Time

	annual  chart.Slot
	decadal chart.Slot
	custom  chart.Slot
}

// NewSession returns a session in the Loading state. rc may be nil to disable
// the render cache.
func NewSession(id string, c client.ClimateClient, r *chart.Renderer, rc cache.Cache, opts Options, logger *zap.Logger) *Session {
	if opts.DefaultRangeYears <= 0 {
		opts.DefaultRangeYears = DefaultRangeYears
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now()
	return &Session{
		ID:         id,
		CreatedAt:  now,
		client:     c,
		renderer:   r,
		cache:      rc,
		opts:       opts,
		logger:     logger.With(zap.String("session_id", id)),
		state:      StateLoading,
		lastAccess: now,
	}
}

// DefaultRange returns the most recent years-long window ending at maxYear,
// clamped so it never starts before minYear.
func DefaultRange(minYear, maxYear, years int) models.YearRange {
	start := maxYear - years
	if start < minYear {
		start = minYear
	}
	return models.YearRange{Start: start, End: maxYear}
}

type fetchResult struct {
	annual  []models.AnnualRecord
	trends  models.TrendsSummary
	decadal models.DecadalSummary

	annualErr, trendsErr, decadalErr error
}

func (f fetchResult) firstErr() error {
	for _, err := range []error{f.annualErr, f.trendsErr, f.decadalErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

// Load fetches the three datasets concurrently, waits for all of them and, if
// every fetch succeeded, renders the charts and moves to Ready. Any failure
// moves to Error with a single notice and no charts.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.loadCalled {
		s.mu.Unlock()
		return ErrAlreadyLoaded
	}
	s.loadCalled = true
	s.mu.Unlock()

	start := time.Now()
	logger := reqctx.Logger(ctx, s.logger).With(zap.String("session_id", s.ID))

	var res fetchResult
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		res.annual, res.annualErr = s.client.GetAnnual(ctx)
	}()
	go func() {
		defer wg.Done()
		res.trends, res.trendsErr = s.client.GetTrends(ctx)
	}()
	go func() {
		defer wg.Done()
		res.decadal, res.decadalErr = s.client.GetDecades(ctx)
	}()
	wg.Wait()

	if err := res.firstErr(); err != nil {
		return s.fail(logger, start, err)
	}

	ds := models.Dataset{
		Annual:      res.annual,
		Trends:      res.trends,
		Decadal:     res.decadal,
		Fingerprint: fingerprint(res.annual),
	}
	minYear, maxYear, ok := ds.YearBounds()
	if !ok {
		return s.fail(logger, start, fmt.Errorf("%w: annual series is empty", client.ErrSchemaMismatch))
	}
	selected := DefaultRange(minYear, maxYear, s.opts.DefaultRangeYears)

	annual, err := s.renderer.RenderAnnual(ds.Annual)
	if err != nil {
		return s.fail(logger, start, err)
	}
	for _, note := range annual.Spec.Notes {
		logger.Warn("annual chart degraded", zap.String("note", note))
	}
	decadal, err := s.renderer.RenderDecadal(ds.Decadal)
	if err != nil {
		annual.Release()
		return s.fail(logger, start, err)
	}
	custom, err := s.renderCustom(ctx, logger, &ds, selected)
	if err != nil {
		annual.Release()
		decadal.Release()
		return s.fail(logger, start, err)
	}

	years := make([]int, 0, maxYear-minYear+1)
	for y := minYear; y <= maxYear; y++ {
		years = append(years, y)
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		annual.Release()
		decadal.Release()
		custom.Release()
		return ErrDisposed
	}
	s.dataset = &ds
	s.years = years
	s.selected = selected
	s.summary = NewSummary(ds.Trends)
	s.annual.Replace(annual)
	s.decadal.Replace(decadal)
	s.custom.Replace(custom)
	s.state = StateReady
	s.mu.Unlock()

	observability.DashboardLoadsTotal.WithLabelValues("ready").Inc()
	observability.DashboardLoadDuration.Observe(time.Since(start).Seconds())
	traffic.RecordLoad(true)
	logger.Info("dashboard ready",
		zap.Int("records", len(ds.Annual)),
		zap.Stringer("range", selected),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (s *Session) fail(logger *zap.Logger, start time.Time, err error) error {
	s.mu.Lock()
	s.state = StateError
	s.notice = &Notice{Level: NoticeError, Message: LoadFailureMessage}
	s.mu.Unlock()

	observability.DashboardLoadsTotal.WithLabelValues("error").Inc()
	observability.DashboardLoadDuration.Observe(time.Since(start).Seconds())
	traffic.RecordLoad(false)
	logger.Warn("dashboard load failed",
		zap.Error(err),
		zap.String("category", string(client.CategorizeError(err))),
		zap.Duration("duration", time.Since(start)),
	)
	return fmt.Errorf("%w: %w", ErrLoadFailed, err)
}

// ChangeRange rebuilds the custom-range chart for r. A session that is not
// ready rejects every change with ErrNotReady and keeps its notice. An invalid
// range is rejected with models.ErrInvalidRange and leaves every chart untouched.
// Concurrent changes are last-write-wins: a rebuild that finishes after a
// newer one started is discarded.
func (s *Session) ChangeRange(ctx context.Context, r models.YearRange) error {
	logger := reqctx.Logger(ctx, s.logger).With(zap.String("session_id", s.ID))

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.state != StateReady && s.state != StateUpdating {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotReady, state)
	}
	if err := r.Validate(); err != nil {
		s.notice = &Notice{Level: NoticeWarning, Message: InvalidRangeMessage}
		s.mu.Unlock()
		observability.RangeChangesTotal.WithLabelValues("rejected").Inc()
		logger.Info("range change rejected", zap.Int("start", r.Start), zap.Int("end", r.End))
		return err
	}
	s.generation++
	gen := s.generation
	s.state = StateUpdating
	ds := s.dataset
	s.mu.Unlock()

	c, err := s.renderCustom(ctx, logger, ds, r)

	s.mu.Lock()
	defer s.mu.Unlock()
	current := gen == s.generation
	if current && !s.disposed {
		s.state = StateReady
	}
	if err != nil {
		observability.RangeChangesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("rebuild custom range %s: %w", r, err)
	}
	if !current || s.disposed {
		c.Release()
		observability.RangeChangesTotal.WithLabelValues("superseded").Inc()
		logger.Debug("range change superseded", zap.Stringer("range", r))
		return nil
	}

	s.custom.Replace(c)
	s.selected = r
	observability.RangeChangesTotal.WithLabelValues("applied").Inc()
	logger.Debug("range changed", zap.Stringer("range", r))
	return nil
}

// renderCustom renders the custom-range chart, reusing cached SVG for the same
// dataset and range when a render cache is configured.
func (s *Session) renderCustom(ctx context.Context, logger *zap.Logger, ds *models.Dataset, r models.YearRange) (*chart.Chart, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	spec := s.renderer.CustomRangeSpec(ds.Annual, r)
	if s.cache == nil {
		return s.renderer.Render(chart.KindCustom, spec)
	}

	key := renderCacheKey(s.renderer.Fingerprint(), ds.Fingerprint, r)
	svg, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		observability.RenderCacheLookupsTotal.WithLabelValues("error").Inc()
		logger.Warn("render cache get failed", zap.String("key", key), zap.Error(err))
	case ok:
		observability.RenderCacheLookupsTotal.WithLabelValues("hit").Inc()
		return chart.NewChart(chart.KindCustom, spec, svg), nil
	default:
		observability.RenderCacheLookupsTotal.WithLabelValues("miss").Inc()
	}

	c, err := s.renderer.Render(chart.KindCustom, spec)
	if err != nil {
		return nil, err
	}
	rendered, _ := c.SVG()
	if err := s.cache.Set(ctx, key, rendered, s.opts.CacheTTL); err != nil {
		logger.Warn("render cache set failed", zap.String("key", key), zap.Error(err))
	}
	return c, nil
}

// renderCacheKey scopes a cached SVG to the renderer options, the payload and
// the range, so instances with different chart settings never share output.
func renderCacheKey(rendererFP, dataFP string, r models.YearRange) string {
	return "range:" + rendererFP + ":" + dataFP + ":" + r.String()
}

// fingerprint hashes the annual series so cached renders are never shared
// between different payloads.
func fingerprint(records []models.AnnualRecord) string {
	d := xxhash.New()
	for _, rec := range records {
		ma := "-"
		if rec.MovingAvg5yr != nil {
			ma = strconv.FormatFloat(*rec.MovingAvg5yr, 'g', -1, 64)
		}
		fmt.Fprintf(d, "%d:%s:%s;", rec.Year, strconv.FormatFloat(rec.Anomaly, 'g', -1, 64), ma)
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

// DismissNotice clears the notice. It reports whether one was shown.
func (s *Session) DismissNotice() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	had := s.notice != nil
	s.notice = nil
	return had
}

// Dispose releases every chart. The session is unusable afterwards. Safe to
// call more than once.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposed = true
	s.annual.Release()
	s.decadal.Release()
	s.custom.Release()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ChartSVG returns the rendered bytes of the chart currently in the kind's region.
func (s *Session) ChartSVG(kind chart.Kind) ([]byte, error) {
	slot := s.slot(kind)
	if slot == nil {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrChartUnavailable, kind)
	}
	svg, ok, err := slot.SVG()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChartUnavailable, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChartUnavailable, kind)
	}
	return svg, nil
}

// Chart returns the chart currently in the kind's region, or nil.
func (s *Session) Chart(kind chart.Kind) *chart.Chart {
	if slot := s.slot(kind); slot != nil {
		return slot.Current()
	}
	return nil
}

func (s *Session) slot(kind chart.Kind) *chart.Slot {
	switch kind {
	case chart.KindAnnual:
		return &s.annual
	case chart.KindDecadal:
		return &s.decadal
	case chart.KindCustom:
		return &s.custom
	}
	return nil
}

// View is a point-in-time copy of what the page shows.
type View struct {
	ID       string
	State    State
	Years    []int
	Selected models.YearRange
	Summary  Summary
	Notice   *Notice
	Charts   map[chart.Kind]ChartInfo
}

// ChartInfo describes a published chart for the page.
type ChartInfo struct {
	ID       string
	Title    string
	Subtitle string
	Notes    []string
}

// View returns a snapshot of the session for rendering.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:       s.ID,
		State:    s.state,
		Years:    append([]int(nil), s.years...),
		Selected: s.selected,
		Summary:  s.summary,
		Charts:   make(map[chart.Kind]ChartInfo, len(chart.Kinds)),
	}
	if s.notice != nil {
		n := *s.notice
		v.Notice = &n
	}
	for _, kind := range chart.Kinds {
		if c := s.slot(kind).Current(); c != nil {
			v.Charts[kind] = ChartInfo{ID: c.ID, Title: c.Spec.Title, Subtitle: c.Spec.Subtitle, Notes: c.Spec.Notes}
		}
	}
	return v
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccess = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}
