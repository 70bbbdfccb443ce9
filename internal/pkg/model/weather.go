package model

import "time"

// WeatherData is one hour of observed or forecast weather.
type WeatherData struct {
	Time           time.Time `json:"time"`
	Temperature    float64   `json:"temperature"`
	CloudCover     float64   `json:"cloud_cover"`
	SolarRadiation float64   `json:"solar_radiation"`
	WindSpeed      float64   `json:"wind_speed"`
	Precipitation  float64   `json:"precipitation"`
}

type WeatherType string

const (
	WeatherSunny  WeatherType = "sunny"
	WeatherWindy  WeatherType = "windy"
	WeatherCloudy WeatherType = "cloudy"
	WeatherMixed  WeatherType = "mixed"
)

// WeatherForecast aggregates one day of hourly weather.
type WeatherForecast struct {
	Date                time.Time     `json:"date"`
	Hourly              []WeatherData `json:"hourly"`
	AvgTemperature      float64       `json:"avg_temperature"`
	AvgCloudCover       float64       `json:"avg_cloud_cover"`
	TotalSolarRadiation float64       `json:"total_solar_radiation"`
	AvgWindSpeed        float64       `json:"avg_wind_speed"`
	WeatherType         WeatherType   `json:"weather_type"`
}

// ClassifyWeather derives the dominant weather type from daily cloud cover (%) and wind speed (m/s).
func ClassifyWeather(avgCloudCover, avgWindSpeed float64) WeatherType {
	switch {
	case avgCloudCover < 30 && avgWindSpeed < 6:
		return WeatherSunny
	case avgWindSpeed >= 8:
		return WeatherWindy
	case avgCloudCover >= 70:
		return WeatherCloudy
	default:
		return WeatherMixed
	}
}

// HourPrediction is a weather adjusted price estimate for one hour of a day, in CZK/MWh.
type HourPrediction struct {
	Hour  int     `json:"hour"`
	Price float64 `json:"price"`
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
}
