package testhelpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"

	"github.com/weatherdeck/weatherdeck/internal/models"
)

// DefaultMarker matches the bearer-mode credential-missing message the real
// backend emits.
const DefaultMarker = "accessToken missing"

// Backend is a scripted dashboard backend for package tests: realistic
// envelope responses, bearer auth enforcement with the marker heuristic, a
// paginated saved-cities store, and per-route overrides for failure and 304
// scenarios.
type Backend struct {
	Server *httptest.Server

	mu        sync.Mutex
	email     string
	password  string
	tokens    TokenPair
	profile   models.UserProfile
	saved     []models.City
	nextID    int
	hits      map[string]int
	overrides map[string]http.HandlerFunc
}

// TokenPair mirrors the login payload.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// NewBackend starts a fake backend accepting a@b.com/secret1 and minting the
// token pair ("tok-access", "tok-refresh"). Close it with Close.
func NewBackend() *Backend {
	b := &Backend{
		email:    "a@b.com",
		password: "secret1",
		tokens:   TokenPair{AccessToken: "tok-access", RefreshToken: "tok-refresh"},
		profile: models.UserProfile{
			ID:        "u1",
			Firstname: "Ada",
			Lastname:  "Lovelace",
			Username:  "ada",
			Email:     "a@b.com",
			CreatedAt: "2024-01-01T00:00:00Z",
			UpdatedAt: "2024-01-01T00:00:00Z",
		},
		nextID:    1,
		hits:      make(map[string]int),
		overrides: make(map[string]http.HandlerFunc),
	}

	router := mux.NewRouter()
	router.HandleFunc("/users/login", b.handleLogin).Methods("POST")
	router.HandleFunc("/users/register", b.handleRegister).Methods("POST")
	router.HandleFunc("/users/logout", b.handleLogout).Methods("POST")
	router.HandleFunc("/users/profile", b.handleProfile).Methods("GET")
	router.HandleFunc("/savedCities", b.handleSavedList).Methods("GET")
	router.HandleFunc("/savedCities", b.handleSavedAdd).Methods("POST")
	router.HandleFunc("/savedCities/{id}", b.handleSavedRemove).Methods("DELETE")
	router.PathPrefix("/").HandlerFunc(b.handleGeneric)

	b.Server = httptest.NewServer(b.countAndOverride(router))
	return b
}

// Close shuts the backend down.
func (b *Backend) Close() { b.Server.Close() }

// URL returns the backend base URL.
func (b *Backend) URL() string { return b.Server.URL }

// Hits returns how many requests have reached path (overrides included).
func (b *Backend) Hits(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

// Override installs a handler for "METHOD path" (e.g. "GET /weather/current"),
// replacing default behavior.
func (b *Backend) Override(method, path string, h http.HandlerFunc) {
	b.mu.Lock()
	b.overrides[method+" "+path] = h
	b.mu.Unlock()
}

// OverrideJSON scripts a fixed status/body response for a route.
func (b *Backend) OverrideJSON(method, path string, status int, body any) {
	b.Override(method, path, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, body)
	})
}

// Saved returns a copy of the saved-city store, newest first.
func (b *Backend) Saved() []models.City {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.City, len(b.saved))
	copy(out, b.saved)
	return out
}

// SeedSaved pre-populates the saved store.
func (b *Backend) SeedSaved(cities ...models.City) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range cities {
		c.ID = fmt.Sprintf("sc%d", b.nextID)
		b.nextID++
		b.saved = append([]models.City{c}, b.saved...)
	}
}

func (b *Backend) countAndOverride(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[r.URL.Path]++
		override := b.overrides[r.Method+" "+r.URL.Path]
		b.mu.Unlock()
		if override != nil {
			override(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorized enforces bearer auth: missing header is the marker 400, a wrong
// token is 401.
func (b *Backend) authorized(w http.ResponseWriter, r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":  false,
			"message": DefaultMarker,
		})
		return false
	}
	b.mu.Lock()
	want := "Bearer " + b.tokens.AccessToken
	b.mu.Unlock()
	if auth != want {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"status":  false,
			"message": "invalid access token",
		})
		return false
	}
	return true
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	ok := req.Email == b.email && req.Password == b.password
	tokens := b.tokens
	b.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":  false,
			"message": "Invalid email or password",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": true,
		"data":   tokens,
	})
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	taken := req.Email == b.email
	b.mu.Unlock()

	if taken {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  false,
			"message": "Email already registered",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": true})
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": true})
}

func (b *Backend) handleProfile(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(w, r) {
		return
	}
	b.mu.Lock()
	profile := b.profile
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"status": true,
		"data":   profile,
	})
}

func (b *Backend) handleSavedList(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(w, r) {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	b.mu.Lock()
	total := len(b.saved)
	start := (page - 1) * limit
	end := start + limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	items := make([]models.City, end-start)
	copy(items, b.saved[start:end])
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status": true,
		"data":   items,
		"total":  total,
	})
}

func (b *Backend) handleSavedAdd(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(w, r) {
		return
	}
	var req struct {
		Name        string  `json:"name"`
		CountryName string  `json:"countryName"`
		AdminName1  string  `json:"adminName1"`
		Lat         float64 `json:"lat"`
		Lng         float64 `json:"lng"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":  false,
			"message": "invalid body",
		})
		return
	}

	b.mu.Lock()
	city := models.City{
		ID:          fmt.Sprintf("sc%d", b.nextID),
		Name:        req.Name,
		CountryName: req.CountryName,
		AdminName1:  req.AdminName1,
		Lat:         trimFloat(req.Lat),
		Lng:         trimFloat(req.Lng),
	}
	b.nextID++
	// Newest first, like the real backend orders the list.
	b.saved = append([]models.City{city}, b.saved...)
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status": true,
		"data":   city,
	})
}

func (b *Backend) handleSavedRemove(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(w, r) {
		return
	}
	id := mux.Vars(r)["id"]

	b.mu.Lock()
	found := false
	kept := b.saved[:0]
	for _, c := range b.saved {
		if c.ID == id {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	b.saved = kept
	b.mu.Unlock()

	if !found {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"status":  false,
			"message": "saved city not found",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": true})
}

// handleGeneric answers the data routes with empty-but-valid payloads so
// tests only script the routes they care about.
func (b *Backend) handleGeneric(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/weather/current":
		writeJSON(w, http.StatusOK, map[string]any{
			"name":    "Testville",
			"weather": []map[string]any{{"main": "Clear", "description": "clear sky", "icon": "01d"}},
			"main":    map[string]any{"temp": 20.0, "feels_like": 19.0, "humidity": 50, "pressure": 1013},
			"wind":    map[string]any{"speed": 3.0},
			"sys":     map[string]any{"sunrise": 1700000000, "sunset": 1700040000},
		})
	case r.URL.Path == "/weather/forecast":
		writeJSON(w, http.StatusOK, map[string]any{"list": []any{}})
	case r.URL.Path == "/other/attractions/nearby":
		writeJSON(w, http.StatusOK, map[string]any{
			"status": true,
			"data":   map[string]any{"features": []any{}},
		})
	case r.URL.Path == "/other/news/headlines":
		writeJSON(w, http.StatusOK, map[string]any{
			"status": true,
			"data":   map[string]any{"articles": []any{}},
		})
	case r.URL.Path == "/cities/list":
		writeJSON(w, http.StatusOK, map[string]any{
			"status": true,
			"data":   []any{},
		})
	case r.URL.Path == "/cities/reverse-geocode":
		writeJSON(w, http.StatusOK, map[string]any{
			"status": true,
			"data": models.City{
				Name:        "Testville",
				CountryName: "Testland",
				Lat:         r.URL.Query().Get("lat"),
				Lng:         r.URL.Query().Get("lng"),
			},
		})
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{
			"status":  false,
			"message": "not found",
		})
	}
}

func trimFloat(f float64) string {
	return strings.TrimRight(strings.TrimRight(strconv.FormatFloat(f, 'f', 5, 64), "0"), ".")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
