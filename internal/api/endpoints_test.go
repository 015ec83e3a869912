package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/weatherdeck/weatherdeck/internal/models"
	"github.com/weatherdeck/weatherdeck/internal/testhelpers"
)

func newBackendClient(t *testing.T) (*Client, *testhelpers.Backend) {
	t.Helper()
	backend := testhelpers.NewBackend()
	t.Cleanup(backend.Close)
	client := newTestClient(t, backend.URL(), Options{})
	return client, backend
}

func login(t *testing.T, client *Client) {
	t.Helper()
	pair, err := client.Login(context.Background(), "a@b.com", "secret1")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if err := client.Credentials().Set(pair.AccessToken, pair.RefreshToken); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
}

func TestClient_Login_ReturnsTokenPair(t *testing.T) {
	client, _ := newBackendClient(t)

	pair, err := client.Login(context.Background(), "a@b.com", "secret1")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Errorf("Login() pair = %+v, want both tokens", pair)
	}
}

func TestClient_Login_WrongPasswordSurfacesMessage(t *testing.T) {
	client, _ := newBackendClient(t)

	_, err := client.Login(context.Background(), "a@b.com", "wrong")
	if err == nil {
		t.Fatal("Login() expected error, got nil")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Message != "Invalid email or password" {
		t.Errorf("message = %q, want backend text", apiErr.Message)
	}
}

func TestClient_Register_DuplicateEmailIsApplicationError(t *testing.T) {
	client, _ := newBackendClient(t)

	// 2xx transport code, falsy envelope: still an error with the message.
	err := client.Register(context.Background(), RegisterRequest{
		Firstname: "Ada", Lastname: "Lovelace", Username: "ada2",
		Email: "a@b.com", Password: "secret1",
	})
	if err == nil {
		t.Fatal("Register() expected error, got nil")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Message != "Email already registered" {
		t.Errorf("message = %q, want backend text", apiErr.Message)
	}
}

func TestClient_Profile_WithoutCredentials(t *testing.T) {
	client, _ := newBackendClient(t)

	_, err := client.Profile(context.Background())
	if err == nil {
		t.Fatal("Profile() expected error, got nil")
	}
}

func TestClient_Profile_AfterLogin(t *testing.T) {
	client, _ := newBackendClient(t)
	login(t, client)

	profile, err := client.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if profile.Email != "a@b.com" {
		t.Errorf("profile email = %q, want a@b.com", profile.Email)
	}
}

func TestClient_SavedCities_RoundTrip(t *testing.T) {
	client, _ := newBackendClient(t)
	login(t, client)
	ctx := context.Background()

	city := models.City{Name: "Berlin", CountryName: "Germany", Lat: "52.52", Lng: "13.405"}
	if err := client.AddSavedCity(ctx, city); err != nil {
		t.Fatalf("AddSavedCity() error = %v", err)
	}

	items, total, err := client.SavedCities(ctx, 1, 10)
	if err != nil {
		t.Fatalf("SavedCities() error = %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("SavedCities() = %d items, total %d, want 1/1", len(items), total)
	}
	got := items[0]
	if got.Name != "Berlin" || got.Lat != "52.52" || got.Lng != "13.405" {
		t.Errorf("saved city = %+v, want Berlin attributes", got)
	}
	if got.ID == "" {
		t.Error("saved city has no server-assigned ID")
	}

	if err := client.RemoveSavedCity(ctx, got.ID); err != nil {
		t.Fatalf("RemoveSavedCity() error = %v", err)
	}
	items, total, err = client.SavedCities(ctx, 1, 10)
	if err != nil {
		t.Fatalf("SavedCities() error = %v", err)
	}
	if total != 0 || len(items) != 0 {
		t.Errorf("SavedCities() after remove = %d items, total %d, want 0/0", len(items), total)
	}
}

func TestClient_AddSavedCity_InvalidCoordinates(t *testing.T) {
	client, _ := newBackendClient(t)
	login(t, client)

	err := client.AddSavedCity(context.Background(), models.City{
		Name: "Nowhere", CountryName: "X", Lat: "not-a-number", Lng: "0",
	})
	if err == nil {
		t.Fatal("AddSavedCity() expected error for bad lat, got nil")
	}
}

func TestClient_ReverseGeocode(t *testing.T) {
	client, _ := newBackendClient(t)

	city, err := client.ReverseGeocode(context.Background(), "52.52", "13.405")
	if err != nil {
		t.Fatalf("ReverseGeocode() error = %v", err)
	}
	if city.Lat != "52.52" || city.Lng != "13.405" {
		t.Errorf("city coords = (%s, %s), want echoed coords", city.Lat, city.Lng)
	}
}

func TestClient_NearbyAttractions_DefaultRadius(t *testing.T) {
	backend := testhelpers.NewBackend()
	t.Cleanup(backend.Close)
	var gotRadius string
	backend.Override("GET", "/other/attractions/nearby", func(w http.ResponseWriter, r *http.Request) {
		gotRadius = r.URL.Query().Get("radius")
		w.Write([]byte(`{"status":true,"data":{"features":[]}}`))
	})
	client := newTestClient(t, backend.URL(), Options{})

	if _, err := client.NearbyAttractions(context.Background(), "52.52", "13.405", 0); err != nil {
		t.Fatalf("NearbyAttractions() error = %v", err)
	}
	if gotRadius != "1000" {
		t.Errorf("radius param = %q, want default 1000", gotRadius)
	}
}
