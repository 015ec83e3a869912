package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/weatherdeck/weatherdeck/internal/models"
)

// envelope is the backend's standard response shape. A falsy status on a 2xx
// transport code is an application-level failure, not a transport error.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Total   int             `json:"total"`
}

// appError converts a falsy envelope into an APIError carrying the backend's
// message.
func (e *envelope) appError() error {
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	return &APIError{StatusCode: http.StatusOK, Message: msg}
}

// TokenPair is the credential pair minted by login. Empty in cookie mode,
// where the backend sets cookies instead.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RegisterRequest is the account-creation payload.
type RegisterRequest struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// SearchCities returns autocomplete candidates for query.
func (c *Client) SearchCities(ctx context.Context, query string) ([]models.City, error) {
	params := url.Values{}
	params.Set("query", query)
	var env envelope
	if err := c.Get(ctx, "/cities/list", params, &env); err != nil {
		return nil, fmt.Errorf("search cities: %w", err)
	}
	if !env.Status {
		return nil, env.appError()
	}
	var cities []models.City
	if err := json.Unmarshal(env.Data, &cities); err != nil {
		return nil, fmt.Errorf("search cities: parse data: %w", err)
	}
	return cities, nil
}

// ReverseGeocode resolves coordinates to a city.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng string) (models.City, error) {
	params := url.Values{}
	params.Set("lat", lat)
	params.Set("lng", lng)
	var env envelope
	if err := c.Get(ctx, "/cities/reverse-geocode", params, &env); err != nil {
		return models.City{}, fmt.Errorf("reverse geocode: %w", err)
	}
	if !env.Status {
		return models.City{}, env.appError()
	}
	var city models.City
	if err := json.Unmarshal(env.Data, &city); err != nil {
		return models.City{}, fmt.Errorf("reverse geocode: parse data: %w", err)
	}
	return city, nil
}

// CurrentWeather returns current conditions by coordinates. This endpoint
// proxies the provider payload directly, no envelope.
func (c *Client) CurrentWeather(ctx context.Context, lat, lon string) (models.CurrentWeather, error) {
	params := url.Values{}
	params.Set("lat", lat)
	params.Set("lon", lon)
	var w models.CurrentWeather
	if err := c.Get(ctx, "/weather/current", params, &w); err != nil {
		return models.CurrentWeather{}, fmt.Errorf("current weather: %w", err)
	}
	return w, nil
}

// Forecast returns the raw 3-hour-step forecast series by coordinates.
func (c *Client) Forecast(ctx context.Context, lat, lon string) ([]models.ForecastItem, error) {
	params := url.Values{}
	params.Set("lat", lat)
	params.Set("lon", lon)
	var resp struct {
		List []models.ForecastItem `json:"list"`
	}
	if err := c.Get(ctx, "/weather/forecast", params, &resp); err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}
	return resp.List, nil
}

// NearbyAttractions returns points of interest around the coordinates.
// radius <= 0 uses the backend-conventional default of 1000 meters.
func (c *Client) NearbyAttractions(ctx context.Context, lat, lon string, radius int) ([]models.Attraction, error) {
	if radius <= 0 {
		radius = 1000
	}
	params := url.Values{}
	params.Set("lat", lat)
	params.Set("lon", lon)
	params.Set("radius", strconv.Itoa(radius))
	var env envelope
	if err := c.Get(ctx, "/other/attractions/nearby", params, &env); err != nil {
		return nil, fmt.Errorf("attractions: %w", err)
	}
	if !env.Status {
		return nil, env.appError()
	}
	var data struct {
		Features []models.Attraction `json:"features"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("attractions: parse data: %w", err)
	}
	return data.Features, nil
}

// LocalNews returns headlines for a country code.
func (c *Client) LocalNews(ctx context.Context, country string) ([]models.NewsArticle, error) {
	params := url.Values{}
	params.Set("country", country)
	var env envelope
	if err := c.Get(ctx, "/other/news/headlines", params, &env); err != nil {
		return nil, fmt.Errorf("news: %w", err)
	}
	if !env.Status {
		return nil, env.appError()
	}
	var data struct {
		Articles []models.NewsArticle `json:"articles"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("news: parse data: %w", err)
	}
	return data.Articles, nil
}

// Login starts a session. In bearer mode the returned pair must be installed
// into the credential store by the caller; in cookie mode the pair is empty.
func (c *Client) Login(ctx context.Context, email, password string) (TokenPair, error) {
	body := map[string]string{"email": email, "password": password}
	var env envelope
	if err := c.Post(ctx, "/users/login", body, &env); err != nil {
		return TokenPair{}, fmt.Errorf("login: %w", err)
	}
	if !env.Status {
		return TokenPair{}, env.appError()
	}
	var pair TokenPair
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &pair); err != nil {
			return TokenPair{}, fmt.Errorf("login: parse data: %w", err)
		}
	}
	return pair, nil
}

// Register creates an account. The backend's message is surfaced verbatim on
// failure so forms can show it.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	var env envelope
	if err := c.Post(ctx, "/users/register", req, &env); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if !env.Status {
		return env.appError()
	}
	return nil
}

// Logout ends the session server-side.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.Post(ctx, "/users/logout", nil, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Profile probes the session and returns the authenticated user. Any failure,
// transport or envelope, comes back as an error; there is no profile without
// a valid session.
func (c *Client) Profile(ctx context.Context) (models.UserProfile, error) {
	var env envelope
	if err := c.Get(ctx, "/users/profile", nil, &env); err != nil {
		return models.UserProfile{}, fmt.Errorf("profile: %w", err)
	}
	if !env.Status {
		return models.UserProfile{}, env.appError()
	}
	var profile models.UserProfile
	if err := json.Unmarshal(env.Data, &profile); err != nil {
		return models.UserProfile{}, fmt.Errorf("profile: parse data: %w", err)
	}
	return profile, nil
}

// SavedCities returns one server-side page of the user's saved cities plus
// the total item count.
func (c *Client) SavedCities(ctx context.Context, page, limit int) ([]models.City, int, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))
	var env envelope
	if err := c.Get(ctx, "/savedCities", params, &env); err != nil {
		return nil, 0, fmt.Errorf("saved cities: %w", err)
	}
	if !env.Status {
		return nil, 0, env.appError()
	}
	var cities []models.City
	if err := json.Unmarshal(env.Data, &cities); err != nil {
		return nil, 0, fmt.Errorf("saved cities: parse data: %w", err)
	}
	return cities, env.Total, nil
}

// AddSavedCity persists a city to the user's list. Coordinates go out as
// numbers, matching what the backend stores.
func (c *Client) AddSavedCity(ctx context.Context, city models.City) error {
	lat, err := strconv.ParseFloat(city.Lat, 64)
	if err != nil {
		return fmt.Errorf("add saved city: invalid lat %q: %w", city.Lat, err)
	}
	lng, err := strconv.ParseFloat(city.Lng, 64)
	if err != nil {
		return fmt.Errorf("add saved city: invalid lng %q: %w", city.Lng, err)
	}
	body := map[string]any{
		"name":        city.Name,
		"countryName": city.CountryName,
		"adminName1":  city.AdminName1,
		"lat":         lat,
		"lng":         lng,
	}
	var env envelope
	if err := c.Post(ctx, "/savedCities", body, &env); err != nil {
		return fmt.Errorf("add saved city: %w", err)
	}
	if !env.Status {
		return env.appError()
	}
	return nil
}

// RemoveSavedCity deletes a saved city by its server-assigned ID.
func (c *Client) RemoveSavedCity(ctx context.Context, id string) error {
	var env envelope
	if err := c.Delete(ctx, "/savedCities/"+url.PathEscape(id), &env); err != nil {
		return fmt.Errorf("remove saved city: %w", err)
	}
	if !env.Status {
		return env.appError()
	}
	return nil
}
