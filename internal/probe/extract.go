package probe

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FieldPaths names the dot-notation JSON paths read from the info endpoint.
type FieldPaths struct {
	Hostname   string
	Players    string
	MaxPlayers string
}

// DefaultFieldPaths matches the FiveM dynamic.json layout.
var DefaultFieldPaths = FieldPaths{
	Hostname:   "hostname",
	Players:    "clients",
	MaxPlayers: "sv_maxclients",
}

func (p FieldPaths) withDefaults() FieldPaths {
	if p.Hostname == "" {
		p.Hostname = DefaultFieldPaths.Hostname
	}
	if p.Players == "" {
		p.Players = DefaultFieldPaths.Players
	}
	if p.MaxPlayers == "" {
		p.MaxPlayers = DefaultFieldPaths.MaxPlayers
	}
	return p
}

// serverInfo is what the info endpoint yields after extraction.
type serverInfo struct {
	hostname   string
	players    int
	maxPlayers int
	hasPlayers bool
}

// parseInfo decodes an info document. It fails only when body is not a
// JSON object; missing fields are left zero.
func parseInfo(body []byte, paths FieldPaths) (serverInfo, bool) {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return serverInfo{}, false
	}

	info := serverInfo{hostname: stripColorCodes(extractJSONPath(data, splitPath(paths.Hostname)))}
	if n, ok := atoi(extractJSONPath(data, splitPath(paths.Players))); ok {
		info.players = n
		info.hasPlayers = true
	}
	if n, ok := atoi(extractJSONPath(data, splitPath(paths.MaxPlayers))); ok {
		info.maxPlayers = n
	}
	return info, true
}

// parsePlayers decodes a player list document (a JSON array).
func parsePlayers(body []byte) (int, bool) {
	var players []json.RawMessage
	if err := json.Unmarshal(body, &players); err != nil {
		return 0, false
	}
	return len(players), true
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// extractJSONPath walks a JSON structure using dot notation parts and
// returns the leaf as a string, or "" when the path does not resolve.
func extractJSONPath(data any, parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	current := data

	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = obj[part]
		if !ok {
			return ""
		}
	}

	switch v := current.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func atoi(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return int(f), true
}

// stripColorCodes removes FiveM ^0-^9 color markers from a hostname.
func stripColorCodes(s string) string {
	if !strings.Contains(s, "^") {
		return strings.TrimSpace(s)
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '^' && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9' {
			i++
			continue
		}
		b.WriteByte(s[i])
	}
	return strings.TrimSpace(b.String())
}
