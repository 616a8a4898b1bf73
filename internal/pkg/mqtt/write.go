package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"github.com/anicoll/irrigation-controller/internal/pkg/model"
)

func (s *service) Write(ctx context.Context, points []model.Point) error {
	for _, p := range points {
		for field, value := range p.Fields {
			if err := s.PublishData(p.Tags, field, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func identifier(tags model.Tags) string {
	return strings.ReplaceAll(slug.Make(fmt.Sprintf("%s %s", tags.Name, tags.ID)), "-", "_")
}

func stateTopic(tags model.Tags, field string) string {
	return fmt.Sprintf("%s/%s/%s/state", discoveryPrefix, identifier(tags), field)
}

func (s *service) RegisterDevice(ctx context.Context, tags model.Tags, field string) error {
	key := identifier(tags) + "/" + field
	s.mu.Lock()
	_, exists := s.configuredDevices[key]
	s.mu.Unlock()
	if exists {
		return nil
	}

	registerMessage := defaultRegisterMsg(tags, field)
	topic := fmt.Sprintf("%s/%s/%s/config", discoveryPrefix, identifier(tags), field)

	payload, err := json.Marshal(registerMessage)
	if err != nil {
		return err
	}
	token := s.client.Publish(topic, 1, true, payload)
	if res := token.WaitTimeout(time.Second * 5); !res {
		return fmt.Errorf("timed out registering %s", key)
	}
	if err := token.Error(); err != nil {
		return err
	}
	s.mu.Lock()
	s.configuredDevices[key] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *service) PublishData(tags model.Tags, field string, value float64) error {
	payload := map[string]string{
		"value": formatValue(field, value),
	}
	if unit, ok := model.FieldUnits[field]; ok && unit != model.UnitNone {
		payload["unit_of_measurement"] = string(unit)
	}

	publishData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	token := s.client.Publish(stateTopic(tags, field), 0, false, publishData)
	if res := token.WaitTimeout(time.Second * 10); !res {
		return fmt.Errorf("timed out publishing %s", field)
	}
	return token.Error()
}

func formatValue(field string, value float64) string {
	if slices.Contains(model.BinaryFields, field) {
		if value != 0 {
			return "ON"
		}
		return "OFF"
	}
	return fmt.Sprintf("%.4f", value)
}

func defaultRegisterMsg(tags model.Tags, field string) model.RegisterMessage {
	id := identifier(tags)
	unit := ""
	if u, ok := model.FieldUnits[field]; ok {
		unit = string(u)
	}

	return model.RegisterMessage{
		Tilda:             fmt.Sprintf("%s/%s/%s", discoveryPrefix, id, field),
		Name:              fmt.Sprintf("%s %s", tags.Name, field),
		ID:                strings.ToLower(id + "_" + field),
		StateTopic:        "~/state",
		ValueTemplate:     "{{ value_json.value }}",
		UnitOfMeasurement: unit,
		Device: model.RegisterDevice{
			Name:         tags.Name,
			Identifiers:  []string{id},
			Model:        tags.ID.String(),
			Manufacturer: "Phidgets",
		},
	}
}
