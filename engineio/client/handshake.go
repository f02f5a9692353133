package client

import "encoding/json"

// Handshake is the data carried by the server's first OPEN packet.
type Handshake struct {
	SessionID    string
	PingInterval int64
	PingTimeout  int64
	Upgrades     []string
}

// parseHandshake decodes and validates the OPEN packet payload. Every field
// is required; unlike the historical `getTypeForValue`-as-`isValid` check
// (which throws on a malformed payload), this reports failure through its
// boolean return so a bad handshake becomes an ordinary terminal ERROR
// instead of crashing the session.
func parseHandshake(text string) (Handshake, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Handshake{}, false
	}

	sid, ok := raw["sid"].(string)
	if !ok || sid == "" {
		return Handshake{}, false
	}

	pingInterval, ok := asNumber(raw["pingInterval"])
	if !ok {
		return Handshake{}, false
	}

	pingTimeout, ok := asNumber(raw["pingTimeout"])
	if !ok {
		return Handshake{}, false
	}

	rawUpgrades, ok := raw["upgrades"].([]any)
	if !ok {
		return Handshake{}, false
	}
	upgrades := make([]string, 0, len(rawUpgrades))
	for _, u := range rawUpgrades {
		s, ok := u.(string)
		if !ok {
			return Handshake{}, false
		}
		upgrades = append(upgrades, s)
	}

	return Handshake{
		SessionID:    sid,
		PingInterval: int64(pingInterval),
		PingTimeout:  int64(pingTimeout),
		Upgrades:     upgrades,
	}, true
}

// asNumber reports whether v decoded as a JSON number, without panicking on
// any other shape.
func asNumber(v any) (float64, bool) {
	n, ok := v.(float64)
	return n, ok
}
