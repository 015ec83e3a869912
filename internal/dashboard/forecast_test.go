package dashboard

import (
	"testing"

	"github.com/weatherdeck/weatherdeck/internal/models"
)

func series(n int) []models.ForecastItem {
	items := make([]models.ForecastItem, n)
	for i := range items {
		items[i].Dt = int64(1700000000 + i*10800)
		items[i].Main.Temp = float64(i)
		items[i].Weather = []models.WeatherCondition{{Main: "Clear"}}
	}
	return items
}

func TestDownsampleDaily(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		stride  int
		wantLen int
		wantDts []int64
	}{
		{name: "five full days", n: 40, stride: 8, wantLen: 5},
		{name: "partial last day still sampled", n: 20, stride: 8, wantLen: 3},
		{name: "single item", n: 1, stride: 8, wantLen: 1},
		{name: "stride larger than series", n: 3, stride: 8, wantLen: 1},
		{name: "zero stride falls back to default", n: 16, stride: 0, wantLen: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DownsampleDaily(series(tt.n), tt.stride)
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
			stride := tt.stride
			if stride <= 0 {
				stride = 8
			}
			for i, day := range got {
				src := series(tt.n)[i*stride]
				if day.Dt != src.Dt {
					t.Errorf("day[%d].Dt = %d, want %d", i, day.Dt, src.Dt)
				}
				if day.Temp.Day != src.Main.Temp || day.Temp.Night != src.Main.Temp {
					t.Errorf("day[%d] temps = %v/%v, want %v for both", i, day.Temp.Day, day.Temp.Night, src.Main.Temp)
				}
			}
		})
	}
}

func TestDownsampleDaily_EmptySeries(t *testing.T) {
	if got := DownsampleDaily(nil, 8); got != nil {
		t.Errorf("DownsampleDaily(nil) = %v, want nil", got)
	}
}
