package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/gosimple/slug"
)

const discoveryPrefix = "homeassistant/sensor"

// sensorTopic is the base topic of one sensor of a device.
func sensorTopic(device, sensorSlug string) string {
	return fmt.Sprintf("%s/%s/%s", discoveryPrefix, slug.Make(device), sensorSlug)
}

// Write publishes the state of every sensor of device.
func (s *service) Write(ctx context.Context, device string, sensors []model.Sensor) error {
	for _, sensor := range sensors {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.publishState(device, sensor); err != nil {
			return err
		}
	}
	return nil
}

// RegisterSensor announces a sensor through a retained discovery config, once per process.
func (s *service) RegisterSensor(device string, sensor model.Sensor) error {
	base := sensorTopic(device, sensor.Slug)
	if _, exists := s.configured.Load(base); exists {
		return nil
	}

	payload, err := json.Marshal(registerMessage(device, sensor))
	if err != nil {
		return err
	}
	token := s.client.Publish(base+"/config", 1, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("register %s: %w", base, errConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return err
	}
	s.configured.Store(base, struct{}{})
	return nil
}

func (s *service) publishState(device string, sensor model.Sensor) error {
	payload := map[string]string{"value": sensor.Value}
	if sensor.Unit != "" {
		payload["unit_of_measurement"] = sensor.Unit
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	token := s.client.Publish(sensorTopic(device, sensor.Slug)+"/state", 0, false, data)
	if token.WaitTimeout(publishTimeout) {
		return token.Error()
	}
	return nil
}

func registerMessage(device string, sensor model.Sensor) model.RegisterMessage {
	deviceSlug := slug.Make(device)
	return model.RegisterMessage{
		Tilda:             sensorTopic(device, sensor.Slug),
		Name:              sensor.Name,
		ID:                fmt.Sprintf("%s_%s", deviceSlug, sensor.Slug),
		StateTopic:        "~/state",
		UnitOfMeasurement: sensor.Unit,
		ValueTemplate:     "{{ value_json.value }}",
		Device: model.RegisterDevice{
			Name:         device,
			Identifiers:  []string{deviceSlug},
			Model:        "Day-ahead spot price",
			Manufacturer: "OTE",
		},
	}
}
