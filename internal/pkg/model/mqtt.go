package model

import "time"

type RegisterDevice struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

// RegisterMessage is the Home Assistant MQTT discovery payload for one sensor.
type RegisterMessage struct {
	Tilda             string         `json:"~"`
	Name              string         `json:"name"`
	ID                string         `json:"unique_id"`
	StateTopic        string         `json:"state_topic"`
	UnitOfMeasurement string         `json:"unit_of_measurement,omitempty"`
	ValueTemplate     string         `json:"value_template"`
	Device            RegisterDevice `json:"device"`
}

// Sensor is a single published value.
type Sensor struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Value string `json:"value"`
	Unit  string `json:"unit"`
}

// PriceSnapshot is the current interval price with its historical classification.
type PriceSnapshot struct {
	Time       time.Time `json:"time"`
	TimeFrom   time.Time `json:"time_from"`
	TimeTo     time.Time `json:"time_to"`
	PriceCZK   float64   `json:"price_czk"`
	PriceEUR   float64   `json:"price_eur"`
	Level      string    `json:"level"`
	LevelColor string    `json:"level_color"`
}
