package sample

import "time"

// Summaries are the forecast descriptions, coldest first.
var Summaries = [...]string{
	"Freezing", "Bracing", "Chilly", "Cool", "Mild", "Warm", "Balmy", "Hot", "Sweltering", "Scorching",
}

// Temperature bounds in Celsius, max exclusive.
const (
	MinTemperatureC = -20
	MaxTemperatureC = 55
	ForecastDays    = 5
)

type WeatherForecast struct {
	Date         time.Time `json:"date"`
	TemperatureC int       `json:"temperatureC"`
	TemperatureF int       `json:"temperatureF"`
	Summary      string    `json:"summary"`
}

// FahrenheitFromCelsius truncates toward zero, as the forecast has always done.
func FahrenheitFromCelsius(c int) int {
	return 32 + int(float64(c)/0.5556)
}

// Forecasts returns ForecastDays forecasts starting the day after now.
func Forecasts(rng *Rand, now time.Time) []WeatherForecast {
	out := make([]WeatherForecast, 0, ForecastDays)
	for day := 1; day <= ForecastDays; day++ {
		c := rng.IntRange(MinTemperatureC, MaxTemperatureC)
		out = append(out, WeatherForecast{
			Date:         now.AddDate(0, 0, day),
			TemperatureC: c,
			TemperatureF: FahrenheitFromCelsius(c),
			Summary:      Summaries[rng.IntN(len(Summaries))],
		})
	}
	return out
}
