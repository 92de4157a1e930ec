package yandex

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Property instances exposed by a climate module.
const (
	InstanceTemperature = "temperature"
	InstanceHumidity    = "humidity"
	InstanceCO2         = "co2_level"
)

// The vendor ships modules named with this placeholder; rename them to
// something recognizable, matching the vendor app's own labeling.
const (
	genericDeviceName = "умное устройство"
	fallbackName      = "Климатическая станция"
)

// Reading is the mapped climate state of one device for one poll cycle.
// Most recent successful poll wins; there is no history here.
type Reading struct {
	DeviceID    string     `json:"device_id"`
	Name        string     `json:"name"`
	Room        string     `json:"room,omitempty"`
	Temperature *float64   `json:"temperature,omitempty"`
	Humidity    *float64   `json:"humidity,omitempty"`
	CO2         *float64   `json:"co2,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// Label is the display label used across sinks:
// "<name> <room> (<id tail>)" when the room is known.
func (r Reading) Label() string {
	tail := r.DeviceID
	if len(tail) > 5 {
		tail = tail[len(tail)-5:]
	}
	if r.Room != "" {
		return fmt.Sprintf("%s %s (%s)", r.Name, r.Room, tail)
	}
	return fmt.Sprintf("%s (%s)", r.Name, tail)
}

// IsClimateModule reports whether the device exposes all three climate
// instances. The strict match avoids false positives on devices that happen
// to report a lone temperature.
func IsClimateModule(d Device) bool {
	instances := make(map[string]bool, len(d.Properties))
	for _, p := range d.Properties {
		if p.State != nil && p.State.Instance != "" {
			instances[p.State.Instance] = true
		}
	}
	return instances[InstanceTemperature] && instances[InstanceHumidity] && instances[InstanceCO2]
}

// NewReading maps a device payload into a Reading. Temperature and humidity
// are rounded to one decimal, CO2 to a whole ppm. LastUpdated is the newest
// of the properties' last_updated stamps.
func NewReading(d Device, roomName string) Reading {
	r := Reading{
		DeviceID: d.ID,
		Name:     NormalizeDeviceName(d.Name),
		Room:     roomName,
	}

	for _, p := range d.Properties {
		if p.State == nil {
			continue
		}
		value, ok := numericValue(p.State.Value)
		if !ok {
			continue
		}
		switch p.State.Instance {
		case InstanceTemperature:
			v := round1(value)
			r.Temperature = &v
		case InstanceHumidity:
			v := round1(value)
			r.Humidity = &v
		case InstanceCO2:
			v := math.Round(value)
			r.CO2 = &v
		}
	}

	if ts := lastUpdatedMax(d.Properties); ts != nil {
		r.LastUpdated = ts
	}
	return r
}

// NormalizeDeviceName replaces the vendor's placeholder device name.
func NormalizeDeviceName(name string) string {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, genericDeviceName) {
		return fallbackName
	}
	return name
}

func lastUpdatedMax(properties []Property) *time.Time {
	var max float64
	found := false
	for _, p := range properties {
		if p.LastUpdated == nil {
			continue
		}
		if !found || *p.LastUpdated > max {
			max = *p.LastUpdated
			found = true
		}
	}
	if !found {
		return nil
	}
	sec, frac := math.Modf(max)
	ts := time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
	return &ts
}

func numericValue(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case json.Number:
		f, err := value.Float64()
		return f, err == nil
	case int:
		return float64(value), true
	default:
		return 0, false
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
