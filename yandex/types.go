package yandex

// UserInfo is the payload of GET /user/info.
type UserInfo struct {
	Status  string   `json:"status"`
	Devices []Device `json:"devices"`
	Rooms   []Room   `json:"rooms"`
}

// Room groups devices in the Yandex home topology.
type Room struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Devices []string `json:"devices"`
}

// Device is a Yandex IoT device with its reported properties.
type Device struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Room       string     `json:"room"`
	Type       string     `json:"type"`
	Properties []Property `json:"properties"`
}

// Property is a single reported capability (e.g. a float sensor value).
type Property struct {
	Type        string              `json:"type"`
	Retrievable bool                `json:"retrievable"`
	Parameters  PropertyParameters  `json:"parameters"`
	State       *PropertyState      `json:"state"`
	LastUpdated *float64            `json:"last_updated"`
}

type PropertyParameters struct {
	Instance string `json:"instance"`
	Unit     string `json:"unit"`
}

type PropertyState struct {
	Instance string `json:"instance"`
	Value    any    `json:"value"`
}

// DeviceIDs returns all device IDs visible in the user info, deduplicated
// preserving order. The REST API has no dedicated list-devices endpoint, so
// IDs come from the flat device list plus each room's device array.
func (u UserInfo) DeviceIDs() []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(u.Devices))
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, d := range u.Devices {
		add(d.ID)
	}
	for _, r := range u.Rooms {
		for _, id := range r.Devices {
			add(id)
		}
	}
	return out
}

// RoomNames maps room ID to display name.
func (u UserInfo) RoomNames() map[string]string {
	names := make(map[string]string, len(u.Rooms))
	for _, r := range u.Rooms {
		if r.ID != "" {
			names[r.ID] = r.Name
		}
	}
	return names
}
