package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/hvostenko/yaclimate/yandex"
)

// Autoconfig is the Home Assistant MQTT discovery payload, using the
// abbreviated keys HA documents for sensor entities.
type Autoconfig struct {
	DeviceClass       string           `json:"dev_cla,omitempty"`
	UnitOfMeasurement string           `json:"unit_of_meas,omitempty"`
	Name              string           `json:"name"`
	StatusTopic       string           `json:"stat_t"`
	AvailabilityTopic string           `json:"avty_t"`
	UniqueID          string           `json:"uniq_id"`
	StateClass        string           `json:"stat_cla,omitempty"`
	ValueTemplate     string           `json:"val_tpl"`
	Device            AutoconfigDevice `json:"dev"`
}

type AutoconfigDevice struct {
	IDs  string `json:"ids"`
	Name string `json:"name"`
}

// sensorSpec describes one HA sensor entity derived from a climate reading.
type sensorSpec struct {
	instance    string
	suffix      string
	deviceClass string
	unit        string
	stateClass  string
	jsonField   string
}

var sensorSpecs = []sensorSpec{
	{yandex.InstanceTemperature, "Temperature", "temperature", "°C", "measurement", "temperature"},
	{yandex.InstanceHumidity, "Humidity", "humidity", "%", "measurement", "humidity"},
	{yandex.InstanceCO2, "CO2", "carbon_dioxide", "ppm", "measurement", "co2"},
}

var lastUpdatedSpec = sensorSpec{
	instance:    "last_updated",
	suffix:      "Last Updated",
	deviceClass: "timestamp",
	jsonField:   "last_updated",
}

// Topics derives the per-device topic layout from the configured prefixes.
type Topics struct {
	DiscoveryPrefix string
	TopicPrefix     string
}

func (t Topics) State(deviceID string) string {
	return fmt.Sprintf("%s/%s/state", t.TopicPrefix, deviceID)
}

func (t Topics) Availability(deviceID string) string {
	return fmt.Sprintf("%s/%s/availability", t.TopicPrefix, deviceID)
}

func (t Topics) Config(deviceID, instance string) string {
	return fmt.Sprintf("%s/sensor/%s_%s/config", t.DiscoveryPrefix, deviceID, instance)
}

// discoveryPayloads builds one retained autoconfig message per sensor entity
// of a device.
func discoveryPayloads(topics Topics, reading yandex.Reading, includeLastUpdated bool) (map[string][]byte, error) {
	specs := sensorSpecs
	if includeLastUpdated {
		specs = append(append([]sensorSpec{}, sensorSpecs...), lastUpdatedSpec)
	}

	payloads := make(map[string][]byte, len(specs))
	for _, spec := range specs {
		cfg := Autoconfig{
			DeviceClass:       spec.deviceClass,
			UnitOfMeasurement: spec.unit,
			Name:              fmt.Sprintf("%s %s", reading.Label(), spec.suffix),
			StatusTopic:       topics.State(reading.DeviceID),
			AvailabilityTopic: topics.Availability(reading.DeviceID),
			UniqueID:          fmt.Sprintf("%s_%s", reading.DeviceID, spec.instance),
			StateClass:        spec.stateClass,
			ValueTemplate:     fmt.Sprintf("{{ value_json.%s }}", spec.jsonField),
			Device: AutoconfigDevice{
				IDs:  reading.DeviceID,
				Name: reading.Label(),
			},
		}

		data, err := json.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshal autoconfig for %s: %w", cfg.UniqueID, err)
		}
		payloads[topics.Config(reading.DeviceID, spec.instance)] = data
	}
	return payloads, nil
}
