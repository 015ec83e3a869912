package dashboard

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/weatherdeck/weatherdeck/internal/api"
	"github.com/weatherdeck/weatherdeck/internal/geoloc"
	"github.com/weatherdeck/weatherdeck/internal/models"
	"github.com/weatherdeck/weatherdeck/internal/observability"
)

// Loading tracks the four independent per-source loading flags. A source with
// Loading false and no data failed (or was never requested); one source's
// failure never blocks the others.
type Loading struct {
	Weather     bool
	Forecast    bool
	Attractions bool
	News        bool
}

// Any reports whether any source is still in flight.
func (l Loading) Any() bool {
	return l.Weather || l.Forecast || l.Attractions || l.News
}

// View is the transient aggregated state for the selected city. It is rebuilt
// from scratch on every selection change and never merges data across cities.
type View struct {
	City        *models.City
	Weather     *models.CurrentWeather
	Forecast    []models.ForecastDay
	Attractions []models.Attraction
	News        []models.NewsArticle
	Loading     Loading
}

// Workflow fans a city selection out to the four backend sources and
// reconciles results as they arrive out of order. The generation counter is
// the cancellation mechanism: every selection change bumps it, and a
// completion whose generation no longer matches is dropped, so a stale city's
// late responses can never leak into the current view.
type Workflow struct {
	client *api.Client
	logger *zap.Logger
	radius int
	stride int

	mu       sync.Mutex
	gen      uint64
	view     View
	wg       *sync.WaitGroup
	onChange func(View)
}

// Options configures a Workflow.
type Options struct {
	Client            *api.Client
	Logger            *zap.Logger
	AttractionsRadius int // meters; <= 0 uses 1000
	ForecastStride    int // series steps per sampled day; <= 0 uses 8 (3h * 8 = 24h)
	// OnChange, when set, fires after every committed view change with a
	// snapshot. Runs on the committing goroutine.
	OnChange func(View)
}

// New creates an idle Workflow with nothing selected.
func New(opts Options) *Workflow {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.AttractionsRadius <= 0 {
		opts.AttractionsRadius = 1000
	}
	if opts.ForecastStride <= 0 {
		opts.ForecastStride = 8
	}
	return &Workflow{
		client:   opts.Client,
		logger:   opts.Logger,
		radius:   opts.AttractionsRadius,
		stride:   opts.ForecastStride,
		onChange: opts.OnChange,
	}
}

// Select makes city the current selection and launches the four source
// requests concurrently. Any still-running requests for a previous selection
// keep running but their results are discarded on arrival.
func (w *Workflow) Select(ctx context.Context, city models.City) {
	w.mu.Lock()
	w.gen++
	gen := w.gen
	w.view = View{
		City:    &city,
		Loading: Loading{Weather: true, Forecast: true, Attractions: true, News: true},
	}
	wg := &sync.WaitGroup{}
	wg.Add(4)
	w.wg = wg
	snap := w.view
	w.mu.Unlock()

	w.notify(snap)
	w.logger.Info("city selected",
		zap.String("name", city.Name),
		zap.String("lat", city.Lat),
		zap.String("lng", city.Lng))

	go func() {
		defer wg.Done()
		weather, err := w.client.CurrentWeather(ctx, city.Lat, city.Lng)
		w.commit(gen, "weather", err, func(v *View) {
			v.Loading.Weather = false
			if err == nil {
				v.Weather = &weather
			}
		})
	}()

	go func() {
		defer wg.Done()
		series, err := w.client.Forecast(ctx, city.Lat, city.Lng)
		days := DownsampleDaily(series, w.stride)
		w.commit(gen, "forecast", err, func(v *View) {
			v.Loading.Forecast = false
			if err == nil {
				v.Forecast = days
			}
		})
	}()

	go func() {
		defer wg.Done()
		attractions, err := w.client.NearbyAttractions(ctx, city.Lat, city.Lng, w.radius)
		w.commit(gen, "attractions", err, func(v *View) {
			v.Loading.Attractions = false
			if err == nil {
				v.Attractions = attractions
			}
		})
	}()

	go func() {
		defer wg.Done()
		news, err := w.client.LocalNews(ctx, city.CountryName)
		w.commit(gen, "news", err, func(v *View) {
			v.Loading.News = false
			if err == nil {
				v.News = news
			}
		})
	}()
}

// SelectFromLocation derives the first selection from the device location.
// It only fires when nothing is selected yet (an explicit pick always wins),
// and any failure is a non-fatal advisory, not a selection.
func (w *Workflow) SelectFromLocation(ctx context.Context, locator geoloc.Locator) error {
	w.mu.Lock()
	selected := w.view.City != nil
	w.mu.Unlock()
	if selected {
		return nil
	}

	lat, lng, err := locator.Current(ctx)
	if err != nil {
		return fmt.Errorf("determine current location: %w", err)
	}
	city, err := w.client.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		return fmt.Errorf("determine city from location: %w", err)
	}

	// Re-check: a search pick may have landed while we were geocoding.
	w.mu.Lock()
	selected = w.view.City != nil
	w.mu.Unlock()
	if selected {
		return nil
	}
	w.Select(ctx, city)
	return nil
}

// ClearSelection drops the current selection and idles the workflow. In-flight
// requests for the cleared city settle into nothing.
func (w *Workflow) ClearSelection() {
	w.mu.Lock()
	w.gen++
	w.view = View{}
	w.wg = nil
	snap := w.view
	w.mu.Unlock()
	w.notify(snap)
}

// Selected returns the currently selected city, if any.
func (w *Workflow) Selected() *models.City {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view.City
}

// Snapshot returns a copy of the current aggregated view.
func (w *Workflow) Snapshot() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view
}

// Settle blocks until the requests launched by the most recent Select have
// finished, or ctx is done. Requests superseded by a newer Select are not
// waited for.
func (w *Workflow) Settle(ctx context.Context) error {
	w.mu.Lock()
	wg := w.wg
	w.mu.Unlock()
	if wg == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// commit applies a source result to the view iff the triggering selection is
// still current. Failures degrade that source to empty and are logged, never
// surfaced as fatal.
func (w *Workflow) commit(gen uint64, source string, err error, apply func(*View)) {
	if err != nil {
		observability.AggregationFailuresTotal.WithLabelValues(source).Inc()
		w.logger.Warn("source failed, degrading to empty",
			zap.String("source", source),
			zap.Error(err))
	}

	w.mu.Lock()
	if gen != w.gen {
		w.mu.Unlock()
		observability.StaleCommitsDroppedTotal.Inc()
		w.logger.Debug("dropping stale result", zap.String("source", source))
		return
	}
	apply(&w.view)
	snap := w.view
	w.mu.Unlock()

	w.notify(snap)
}

func (w *Workflow) notify(v View) {
	if w.onChange != nil {
		w.onChange(v)
	}
}
