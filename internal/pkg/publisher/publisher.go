// Package publisher fans the current price out to every registered sink.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// DeviceName is the device the price sensors are grouped under.
const DeviceName = "OTE Spot CZ"

var errAlreadyRegistered = errors.New("publisher already registered")

type publisher interface {
	// Write publishes sensor states to the sink.
	Write(ctx context.Context, device string, sensors []model.Sensor) error
	RegisterSensor(device string, sensor model.Sensor) error
}

type Registry struct {
	mu         sync.RWMutex
	publishers map[string]publisher
	// last published value per sensor slug
	sensors sync.Map
	logger  *zap.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		publishers: make(map[string]publisher),
		logger:     zap.L(),
	}
}

func (r *Registry) RegisterPublisher(name string, p publisher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.publishers[name]; ok {
		return errAlreadyRegistered
	}
	r.publishers[name] = p
	return nil
}

func newSensor(name, value, unit string) model.Sensor {
	return model.Sensor{Name: name, Slug: slug.Make(name), Value: value, Unit: unit}
}

// Sensors converts a snapshot into the published sensors.
func Sensors(snap model.PriceSnapshot) []model.Sensor {
	return []model.Sensor{
		newSensor("Spot price CZK", fmt.Sprintf("%.2f", snap.PriceCZK), "CZK/MWh"),
		newSensor("Spot price EUR", fmt.Sprintf("%.2f", snap.PriceEUR), "EUR/MWh"),
		newSensor("Price level", snap.Level, ""),
	}
}

// PublishSnapshot writes the sensors whose value changed since the last call to every publisher.
// A failing publisher is logged and skipped.
func (r *Registry) PublishSnapshot(ctx context.Context, snap model.PriceSnapshot) int {
	changed := make([]model.Sensor, 0, 3)
	for _, s := range Sensors(snap) {
		if r.shouldUpdate(s.Slug, s.Value) {
			changed = append(changed, s)
		}
	}
	if len(changed) == 0 {
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, p := range r.publishers {
		if err := r.register(p, changed); err != nil {
			r.logger.Error("failed to register sensors", zap.Error(err), zap.String("publisher", name))
			continue
		}
		if err := p.Write(ctx, DeviceName, changed); err != nil {
			r.logger.Error("failed to publish data", zap.Error(err), zap.String("publisher", name))
			continue
		}
		r.logger.Debug("updated sensors", zap.Int("count", len(changed)), zap.String("publisher", name))
	}
	return len(changed)
}

func (r *Registry) register(p publisher, sensors []model.Sensor) error {
	for _, s := range sensors {
		if err := p.RegisterSensor(DeviceName, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) shouldUpdate(sensorSlug, newValue string) bool {
	oldValue, exists := r.sensors.Load(sensorSlug)
	if exists && strings.EqualFold(newValue, oldValue.(string)) {
		return false
	}
	if !exists {
		r.logger.Info("configured sensor", zap.String("sensor", sensorSlug), zap.String("value", newValue))
	}
	r.sensors.Store(sensorSlug, newValue)
	return true
}
