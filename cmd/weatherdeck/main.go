package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/weatherdeck/weatherdeck/internal/api"
	"github.com/weatherdeck/weatherdeck/internal/circuitbreaker"
	"github.com/weatherdeck/weatherdeck/internal/config"
	"github.com/weatherdeck/weatherdeck/internal/dashboard"
	"github.com/weatherdeck/weatherdeck/internal/geoloc"
	"github.com/weatherdeck/weatherdeck/internal/models"
	"github.com/weatherdeck/weatherdeck/internal/observability"
	"github.com/weatherdeck/weatherdeck/internal/ops"
	"github.com/weatherdeck/weatherdeck/internal/respcache"
	"github.com/weatherdeck/weatherdeck/internal/saved"
	"github.com/weatherdeck/weatherdeck/internal/session"
	"github.com/weatherdeck/weatherdeck/internal/validation"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var cache respcache.Cache
	var memcacheCloser *respcache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := respcache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.CacheTTL)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cache = mc
		logger.Info("response cache: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cache = respcache.NewInMemoryCache(cfg.CacheMaxEntries)
		logger.Info("response cache: in_memory", zap.Int("max_entries", cfg.CacheMaxEntries))
	}

	var breaker *circuitbreaker.Breaker
	if cfg.BreakerEnabled {
		breaker = circuitbreaker.New(circuitbreaker.Settings{
			FailureThreshold: cfg.BreakerFailureThreshold,
			SuccessThreshold: cfg.BreakerSuccessThreshold,
			Cooldown:         cfg.BreakerTimeout,
			OnStateChange: func(from, to circuitbreaker.State) {
				logger.Warn("circuit breaker state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}

	var creds *api.Credentials
	if cfg.AuthMode == config.AuthModeBearer {
		creds = api.NewCredentials(cfg.CredentialsFile)
	}

	client, err := api.New(api.Options{
		BaseURL:     cfg.BackendURL,
		Mode:        cfg.AuthMode,
		Marker:      cfg.AuthErrorMarker,
		Timeout:     cfg.RequestTimeout,
		Credentials: creds,
		Cache:       cache,
		Limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		Breaker:     breaker,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("api client", zap.Error(err))
	}

	// Session manager registers its auth-error teardown here, before any
	// request can fire.
	sessions := session.NewManager(client, logger)

	workflow := dashboard.New(dashboard.Options{
		Client:            client,
		Logger:            logger,
		AttractionsRadius: cfg.AttractionsRadius,
		ForecastStride:    cfg.ForecastStride,
	})
	pager := saved.NewPager(client, logger, cfg.SavedPageLimit)
	pager.OnRemoved(clearSelectionOnRemove(workflow))

	var opsServer *ops.Server
	if cfg.MetricsListenAddr != "" {
		opsServer = ops.NewServer(cfg.MetricsListenAddr, logger, ops.Health{
			StartTime: time.Now(),
			Session:   func() string { return sessions.Current().State.String() },
			Breaker:   func() string { return client.BreakerState().String() },
		})
		go opsServer.Start()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions.Bootstrap(ctx)
	reportSession(sessions.Current())

	var locator geoloc.Locator = geoloc.Disabled{}
	if cfg.GeolocationEnabled {
		locator = geoloc.StaticLocator{Lat: cfg.GeolocationLat, Lng: cfg.GeolocationLng}
	}
	if err := workflow.SelectFromLocation(ctx, locator); err != nil {
		if !errors.Is(err, geoloc.ErrUnavailable) {
			fmt.Printf("note: %v\n", err)
		}
	}

	app := &app{
		cfg:      cfg,
		client:   client,
		sessions: sessions,
		workflow: workflow,
		pager:    pager,
		locator:  locator,
	}
	app.loop(ctx)

	if opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("ops server shutdown", zap.Error(err))
		}
	}
	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// app holds the wired components for the command loop.
type app struct {
	cfg      *config.Config
	client   *api.Client
	sessions *session.Manager
	workflow *dashboard.Workflow
	pager    *saved.Pager
	locator  geoloc.Locator

	results []models.City // last search results, for "select N"
}

func (a *app) loop(ctx context.Context) {
	fmt.Println("weatherdeck: type 'help' for commands")
	scanner := bufio.NewScanner(os.Stdin)
	lines := make(chan string)
	go func() {
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := a.dispatch(ctx, line); quit {
				return
			}
		}
	}
}

// dispatch runs one command line. Returns true on quit.
func (a *app) dispatch(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		printHelp()
	case "login":
		a.cmdLogin(ctx, args)
	case "register":
		a.cmdRegister(ctx, args)
	case "logout":
		a.sessions.Logout(ctx)
		reportSession(a.sessions.Current())
	case "whoami":
		reportSession(a.sessions.Current())
	case "search":
		a.cmdSearch(ctx, strings.Join(args, " "))
	case "select":
		a.cmdSelect(ctx, args)
	case "show":
		a.cmdShow(ctx)
	case "save":
		a.cmdSave(ctx)
	case "saved":
		a.cmdSaved(ctx)
	case "page":
		a.cmdPage(ctx, args)
	case "pick":
		a.cmdPick(ctx, args)
	case "remove":
		a.cmdRemove(ctx, args)
	case "locate":
		a.cmdLocate(ctx)
	case "quit", "exit":
		return true
	default:
		fmt.Printf("unknown command %q, type 'help'\n", cmd)
	}
	return false
}

func (a *app) cmdLogin(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: login <email> <password>")
		return
	}
	email, err := validation.ValidateEmail(args[0])
	if err != nil {
		fmt.Println(err)
		return
	}
	if err := a.sessions.Login(ctx, email, args[1]); err != nil {
		fmt.Printf("login failed: %v\n", err)
		return
	}
	reportSession(a.sessions.Current())
	if err := a.pager.Refresh(ctx); err != nil {
		fmt.Printf("saved cities: %v\n", err)
	}
}

func (a *app) cmdRegister(ctx context.Context, args []string) {
	if len(args) != 5 {
		fmt.Println("usage: register <firstname> <lastname> <username> <email> <password>")
		return
	}
	req := api.RegisterRequest{Password: args[4]}
	var err error
	if req.Firstname, err = validation.ValidateName(args[0]); err != nil {
		fmt.Println(err)
		return
	}
	if req.Lastname, err = validation.ValidateName(args[1]); err != nil {
		fmt.Println(err)
		return
	}
	if req.Username, err = validation.ValidateName(args[2]); err != nil {
		fmt.Println(err)
		return
	}
	if req.Email, err = validation.ValidateEmail(args[3]); err != nil {
		fmt.Println(err)
		return
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		fmt.Println(err)
		return
	}
	if err := a.sessions.Register(ctx, req); err != nil {
		fmt.Printf("register failed: %v\n", err)
		return
	}
	fmt.Println("account created, log in with 'login <email> <password>'")
}

func (a *app) cmdSearch(ctx context.Context, query string) {
	q, err := validation.ValidateCityQuery(query)
	if err != nil {
		fmt.Println(err)
		return
	}
	cities, err := a.client.SearchCities(ctx, q)
	if err != nil {
		fmt.Printf("search failed: %v\n", err)
		return
	}
	a.results = cities
	if len(cities) == 0 {
		fmt.Println("no matches")
		return
	}
	for i, c := range cities {
		fmt.Printf("%2d. %s\n", i+1, cityLabel(c))
	}
	fmt.Println("pick one with 'select <n>'")
}

func (a *app) cmdSelect(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: select <n>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(a.results) {
		fmt.Printf("pick a number between 1 and %d (run 'search' first)\n", len(a.results))
		return
	}
	a.workflow.Select(ctx, a.results[n-1])
	a.cmdShow(ctx)
}

func (a *app) cmdShow(ctx context.Context) {
	if a.workflow.Selected() == nil {
		fmt.Println("nothing selected, use 'search' then 'select <n>'")
		return
	}
	settleCtx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout+time.Second)
	defer cancel()
	_ = a.workflow.Settle(settleCtx)
	render(a.workflow.Snapshot())
}

func (a *app) cmdSave(ctx context.Context) {
	sel := a.workflow.Selected()
	if sel == nil {
		fmt.Println("nothing selected")
		return
	}
	if err := a.pager.Add(ctx, *sel); err != nil {
		fmt.Printf("save failed: %v\n", err)
		return
	}
	fmt.Printf("saved %s\n", sel.Name)
}

func (a *app) cmdSaved(ctx context.Context) {
	if err := a.pager.Refresh(ctx); err != nil {
		fmt.Printf("saved cities: %v\n", err)
		return
	}
	items := a.pager.Items()
	page, totalPages := a.pager.Page()
	if len(items) == 0 {
		fmt.Println("no saved cities")
		return
	}
	for i, c := range items {
		fmt.Printf("%2d. [%s] %s\n", i+1, c.ID, cityLabel(c))
	}
	fmt.Printf("page %d/%d, 'pick <n>' to select, 'page <n>' to navigate, 'remove <id>' to delete\n", page, totalPages)
}

func (a *app) cmdPage(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: page <n>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Println("usage: page <n>")
		return
	}
	if err := a.pager.SetPage(ctx, n); err != nil {
		fmt.Printf("page load failed: %v\n", err)
		return
	}
	a.cmdSaved(ctx)
}

// cmdPick selects the n-th saved city on the current page. Unlike search
// results, saved cities carry server IDs, so removing a picked city later
// clears the selection.
func (a *app) cmdPick(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: pick <n>")
		return
	}
	items := a.pager.Items()
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(items) {
		fmt.Printf("pick a number between 1 and %d (run 'saved' first)\n", len(items))
		return
	}
	a.workflow.Select(ctx, items[n-1])
	a.cmdShow(ctx)
}

func (a *app) cmdRemove(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: remove <id>")
		return
	}
	if err := a.pager.Remove(ctx, args[0]); err != nil {
		fmt.Printf("remove failed: %v\n", err)
	}
}

func (a *app) cmdLocate(ctx context.Context) {
	// Re-derive the selection from the configured location. An existing
	// selection blocks location-derived picks, so drop it first.
	a.workflow.ClearSelection()
	if err := a.workflow.SelectFromLocation(ctx, a.locator); err != nil {
		fmt.Printf("locate failed: %v\n", err)
		return
	}
	a.cmdShow(ctx)
}

// clearSelectionOnRemove builds the pager removal hook: deleting the saved
// city that is currently selected clears the dashboard selection, so stale
// data for a city the user just discarded never lingers on screen.
func clearSelectionOnRemove(w *dashboard.Workflow) func(id string) {
	return func(id string) {
		if sel := w.Selected(); sel != nil && sel.ID == id {
			w.ClearSelection()
			fmt.Println("selection cleared (city removed from saved list)")
		}
	}
}

func reportSession(s session.Snapshot) {
	switch s.State {
	case session.StateAuthenticated:
		fmt.Printf("logged in as %s <%s>\n", s.User.Username, s.User.Email)
	case session.StateAnonymous:
		fmt.Println("not logged in")
	default:
		fmt.Println("session: loading")
	}
}

func render(v dashboard.View) {
	fmt.Printf("== %s ==\n", cityLabel(*v.City))

	switch {
	case v.Loading.Weather:
		fmt.Println("weather: loading...")
	case v.Weather == nil:
		fmt.Println("weather: no data available")
	default:
		w := v.Weather
		desc := ""
		if len(w.Weather) > 0 {
			desc = w.Weather[0].Description
		}
		fmt.Printf("weather: %.1f°C (feels %.1f°C), %s, humidity %d%%, wind %.1f m/s\n",
			w.Main.Temp, w.Main.FeelsLike, desc, w.Main.Humidity, w.Wind.Speed)
	}

	switch {
	case v.Loading.Forecast:
		fmt.Println("forecast: loading...")
	case len(v.Forecast) == 0:
		fmt.Println("forecast: no data available")
	default:
		fmt.Println("forecast:")
		for _, d := range v.Forecast {
			desc := ""
			if len(d.Weather) > 0 {
				desc = d.Weather[0].Main
			}
			fmt.Printf("  %s  %.1f°C  %s\n", time.Unix(d.Dt, 0).Format("Mon Jan 2"), d.Temp.Day, desc)
		}
	}

	switch {
	case v.Loading.Attractions:
		fmt.Println("attractions: loading...")
	case len(v.Attractions) == 0:
		fmt.Println("attractions: no data available")
	default:
		fmt.Println("attractions:")
		for _, at := range v.Attractions {
			name := at.Properties.Name
			if name == "" {
				name = "(unnamed)"
			}
			fmt.Printf("  %s (%.0f m)\n", name, at.Properties.Dist)
		}
	}

	switch {
	case v.Loading.News:
		fmt.Println("news: loading...")
	case len(v.News) == 0:
		fmt.Println("news: no articles available")
	default:
		fmt.Println("news:")
		for _, n := range v.News {
			fmt.Printf("  %s (%s)\n", n.Title, n.Source.Name)
		}
	}
}

func cityLabel(c models.City) string {
	parts := []string{c.Name}
	if c.AdminName1 != "" {
		parts = append(parts, c.AdminName1)
	}
	if c.CountryName != "" {
		parts = append(parts, c.CountryName)
	}
	return strings.Join(parts, ", ")
}

func printHelp() {
	fmt.Print(`commands:
  login <email> <password>      start a session
  register <first> <last> <user> <email> <password>
  logout                        end the session
  whoami                        show session state
  search <query>                city autocomplete
  select <n>                    select the n-th search result
  show                          show the aggregated view for the selection
  save                          save the selected city
  saved                         list saved cities (current page)
  pick <n>                      select the n-th saved city
  page <n>                      go to saved-cities page n
  remove <id>                   remove a saved city by id
  locate                        select the configured location's city
  quit
`)
}
