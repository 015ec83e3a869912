package dashboard

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/weatherdeck/weatherdeck/internal/api"
	"github.com/weatherdeck/weatherdeck/internal/geoloc"
	"github.com/weatherdeck/weatherdeck/internal/models"
	"github.com/weatherdeck/weatherdeck/internal/testhelpers"
)

var (
	berlin = models.City{Name: "Berlin", CountryName: "Germany", Lat: "52.52", Lng: "13.405"}
	paris  = models.City{Name: "Paris", CountryName: "France", Lat: "48.8566", Lng: "2.3522"}
)

func newWorkflow(t *testing.T, backend *testhelpers.Backend, opts Options) *Workflow {
	t.Helper()
	client, err := api.New(api.Options{
		BaseURL:     backend.URL(),
		Marker:      testhelpers.DefaultMarker,
		Credentials: api.NewCredentials(""),
	})
	if err != nil {
		t.Fatalf("api.New() error = %v", err)
	}
	opts.Client = client
	return New(opts)
}

func settle(t *testing.T, w *Workflow) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Settle(ctx); err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
}

func TestWorkflow_Select_FansOutToAllSources(t *testing.T) {
	backend := testhelpers.NewBackend()
	t.Cleanup(backend.Close)
	backend.OverrideJSON("GET", "/weather/forecast", http.StatusOK, map[string]any{
		"list": []map[string]any{
			{"dt": 1700000000, "main": map[string]any{"temp": 5.0}},
		},
	})
	w := newWorkflow(t, backend, Options{})

	ctx := context.Background()
	w.Select(ctx, berlin)
	settle(t, w)

	view := w.Snapshot()
	if view.City == nil || view.City.Name != "Berlin" {
		t.Fatalf("view.City = %v, want Berlin", view.City)
	}
	if view.Loading.Any() {
		t.Errorf("Loading = %+v, want all settled", view.Loading)
	}
	if view.Weather == nil || view.Weather.Name != "Testville" {
		t.Errorf("Weather = %v, want populated", view.Weather)
	}
	if len(view.Forecast) != 1 {
		t.Errorf("Forecast len = %d, want 1", len(view.Forecast))
	}
	for _, path := range []string{"/weather/current", "/weather/forecast", "/other/attractions/nearby", "/other/news/headlines"} {
		if backend.Hits(path) != 1 {
			t.Errorf("hits(%s) = %d, want 1", path, backend.Hits(path))
		}
	}
}

func TestWorkflow_Select_EmitsLoadingViewFirst(t *testing.T) {
	backend := testhelpers.NewBackend()
	t.Cleanup(backend.Close)

	var mu sync.Mutex
	var first *View
	w := newWorkflow(t, backend, Options{OnChange: func(v View) {
		mu.Lock()
		if first == nil {
			first = &v
		}
		mu.Unlock()
	}})

	w.Select(context.Background(), berlin)
	settle(t, w)

	mu.Lock()
	defer mu.Unlock()
	if first == nil {
		t.Fatal("no view change observed")
	}
	want := Loading{Weather: true, Forecast: true, Attractions: true, News: true}
	if first.Loading != want {
		t.Errorf("first Loading = %+v, want all in flight", first.Loading)
	}
	if first.Weather != nil || first.Forecast != nil {
		t.Error("first view carries data, want empty placeholders")
	}
}

func TestWorkflow_Select_SourceFailureDoesNotBlockOthers(t *testing.T) {
	backend := testhelpers.NewBackend()
	t.Cleanup(backend.Close)
	backend.OverrideJSON("GET", "/weather/current", http.StatusInternalServerError, map[string]any{
		"status": false, "message": "upstream weather provider down",
	})
	w := newWorkflow(t, backend, Options{})

	w.Select(context.Background(), berlin)
	settle(t, w)

	view := w.Snapshot()
	if view.Weather != nil {
		t.Errorf("Weather = %v, want nil after failure", view.Weather)
	}
	if view.Loading.Weather {
		t.Error("Loading.Weather still true; failed source must settle")
	}
	if view.Loading.Any() {
		t.Errorf("Loading = %+v, want all settled", view.Loading)
	}
	// The other sources completed normally.
	if backend.Hits("/other/news/headlines") != 1 {
		t.Errorf("news hits = %d, want 1", backend.Hits("/other/news/headlines"))
	}
}

func TestWorkflow_Select_StaleResultsNeverLeak(t *testing.T) {
	backend := testhelpers.NewBackend()
	t.Cleanup(backend.Close)

	release := make(chan struct{})
	served := make(chan struct{})
	backend.Override("GET", "/weather/current", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("lat") == berlin.Lat {
			// Hold Berlin's weather until after Paris supersedes it.
			<-release
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"name":"Berlin","main":{"temp":1}}`))
			close(served)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"Paris","main":{"temp":15}}`))
	})

	var mu sync.Mutex
	changes := 0
	w := newWorkflow(t, backend, Options{OnChange: func(View) {
		mu.Lock()
		changes++
		mu.Unlock()
	}})
	ctx := context.Background()

	w.Select(ctx, berlin)
	w.Select(ctx, paris)
	settle(t, w)

	if got := w.Snapshot().Weather; got == nil || got.Name != "Paris" {
		t.Fatalf("Weather = %v, want Paris before release", got)
	}
	mu.Lock()
	settled := changes
	mu.Unlock()

	close(release)
	<-served
	time.Sleep(100 * time.Millisecond)

	view := w.Snapshot()
	if view.Weather == nil || view.Weather.Name != "Paris" {
		t.Errorf("Weather = %v, want Paris; stale Berlin result leaked", view.Weather)
	}
	mu.Lock()
	defer mu.Unlock()
	if changes != settled {
		t.Errorf("view changed %d times after release, want 0", changes-settled)
	}
}

func TestWorkflow_SelectFromLocation_FirstSelectionOnly(t *testing.T) {
	backend := testhelpers.NewBackend()
	t.Cleanup(backend.Close)
	w := newWorkflow(t, backend, Options{})
	ctx := context.Background()

	locator := geoloc.StaticLocator{Lat: "52.52", Lng: "13.405"}
	if err := w.SelectFromLocation(ctx, locator); err != nil {
		t.Fatalf("SelectFromLocation() error = %v", err)
	}
	settle(t, w)

	sel := w.Selected()
	if sel == nil || sel.Name != "Testville" {
		t.Fatalf("Selected() = %v, want reverse-geocoded Testville", sel)
	}

	// An existing selection always wins; no geocode request goes out.
	before := backend.Hits("/cities/reverse-geocode")
	if err := w.SelectFromLocation(ctx, locator); err != nil {
		t.Fatalf("SelectFromLocation() error = %v", err)
	}
	if backend.Hits("/cities/reverse-geocode") != before {
		t.Error("reverse geocode fired despite existing selection")
	}
	if w.Selected().Name != "Testville" {
		t.Errorf("Selected() = %v, want unchanged", w.Selected())
	}
}

func TestWorkflow_SelectFromLocation_UnavailableIsAdvisory(t *testing.T) {
	backend := testhelpers.NewBackend()
	t.Cleanup(backend.Close)
	w := newWorkflow(t, backend, Options{})

	err := w.SelectFromLocation(context.Background(), geoloc.Disabled{})
	if err == nil {
		t.Fatal("SelectFromLocation() expected error for disabled locator")
	}
	if w.Selected() != nil {
		t.Errorf("Selected() = %v, want nil; failure must not select", w.Selected())
	}
}

func TestWorkflow_ClearSelection(t *testing.T) {
	backend := testhelpers.NewBackend()
	t.Cleanup(backend.Close)
	w := newWorkflow(t, backend, Options{})
	ctx := context.Background()

	w.Select(ctx, berlin)
	settle(t, w)
	w.ClearSelection()

	view := w.Snapshot()
	if view.City != nil || view.Weather != nil || view.Loading.Any() {
		t.Errorf("view after clear = %+v, want idle empty view", view)
	}
	if w.Selected() != nil {
		t.Errorf("Selected() = %v, want nil", w.Selected())
	}
}

func TestWorkflow_Settle_NothingSelected(t *testing.T) {
	backend := testhelpers.NewBackend()
	t.Cleanup(backend.Close)
	w := newWorkflow(t, backend, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Settle(ctx); err != nil {
		t.Errorf("Settle() on idle workflow error = %v, want nil", err)
	}
}

func TestWorkflow_Reselect_RebuildsViewFromScratch(t *testing.T) {
	backend := testhelpers.NewBackend()
	t.Cleanup(backend.Close)
	backend.OverrideJSON("GET", "/weather/forecast", http.StatusOK, map[string]any{
		"list": []map[string]any{
			{"dt": 1700000000, "main": map[string]any{"temp": 5.0}},
		},
	})
	w := newWorkflow(t, backend, Options{})
	ctx := context.Background()

	w.Select(ctx, berlin)
	settle(t, w)
	if len(w.Snapshot().Forecast) != 1 {
		t.Fatalf("Forecast len = %d, want 1", len(w.Snapshot().Forecast))
	}

	// Paris's forecast fails; Berlin's data must not survive into Paris's view.
	backend.OverrideJSON("GET", "/weather/forecast", http.StatusInternalServerError, map[string]any{
		"status": false, "message": "forecast down",
	})
	w.Select(ctx, paris)
	settle(t, w)

	view := w.Snapshot()
	if view.City.Name != "Paris" {
		t.Fatalf("City = %v, want Paris", view.City)
	}
	if view.Forecast != nil {
		t.Errorf("Forecast = %v, want nil; previous city's data leaked", view.Forecast)
	}
}
