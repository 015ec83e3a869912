package dashboard

import "github.com/weatherdeck/weatherdeck/internal/models"

// DownsampleDaily reduces the backend's 3-hour forecast series to one
// representative entry per day by fixed-stride sampling: with the standard
// 8 steps per day the first entry of each day is kept. Deterministic for a
// given series, which is all the view needs.
func DownsampleDaily(series []models.ForecastItem, stride int) []models.ForecastDay {
	if stride <= 0 {
		stride = 8
	}
	if len(series) == 0 {
		return nil
	}

	days := make([]models.ForecastDay, 0, (len(series)+stride-1)/stride)
	for i := 0; i < len(series); i += stride {
		item := series[i]
		day := models.ForecastDay{
			Dt:      item.Dt,
			Weather: item.Weather,
		}
		// The raw series has no separate day/night temps; the sampled
		// step's temperature stands in for both.
		day.Temp.Day = item.Main.Temp
		day.Temp.Night = item.Main.Temp
		days = append(days, day)
	}
	return days
}
