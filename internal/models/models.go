package models

// City identifies a location. ID is set only for saved (server-persisted) cities;
// search results and reverse-geocode results carry no ID. Lat/Lng stay strings to
// round-trip the backend's representation exactly.
type City struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	CountryName string `json:"countryName"`
	AdminName1  string `json:"adminName1,omitempty"`
	Lat         string `json:"lat"`
	Lng         string `json:"lng"`
}

// SameLocation reports whether two cities refer to the same place for
// selection purposes. Saved and searched copies of a city differ in ID, so
// identity here is the (name, lat, lng) tuple.
func (c City) SameLocation(o City) bool {
	return c.Name == o.Name && c.Lat == o.Lat && c.Lng == o.Lng
}

// UserProfile is the authenticated user as returned by /users/profile.
type UserProfile struct {
	ID        string `json:"id"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// WeatherCondition is one entry of the OpenWeather-style weather array.
type WeatherCondition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// CurrentWeather is the /weather/current payload.
type CurrentWeather struct {
	Name    string             `json:"name"`
	Weather []WeatherCondition `json:"weather"`
	Main    struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
		Pressure  int     `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Sys struct {
		Sunrise int64 `json:"sunrise"`
		Sunset  int64 `json:"sunset"`
	} `json:"sys"`
}

// ForecastItem is one 3-hour step of the raw /weather/forecast series.
type ForecastItem struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Weather []WeatherCondition `json:"weather"`
}

// ForecastDay is one downsampled day handed to the aggregated view.
type ForecastDay struct {
	Dt   int64 `json:"dt"`
	Temp struct {
		Day   float64 `json:"day"`
		Night float64 `json:"night"`
	} `json:"temp"`
	Weather []WeatherCondition `json:"weather"`
}

// Attraction is one point of interest from /other/attractions/nearby.
type Attraction struct {
	ID         string `json:"id"`
	Properties struct {
		Name  string  `json:"name"`
		Dist  float64 `json:"dist"`
		Rate  float64 `json:"rate"`
		Kinds string  `json:"kinds"`
	} `json:"properties"`
}

// NewsArticle is one headline from /other/news/headlines.
type NewsArticle struct {
	Title       string `json:"title"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
	PublishedAt string `json:"publishedAt"`
	Description string `json:"description"`
	URL         string `json:"url"`
}
