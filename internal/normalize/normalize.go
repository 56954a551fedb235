// Package normalize maps vendor status and event vocabularies onto the
// canonical sets used by the rest of pulsewatch.
//
// Every function in this package is pure. Unknown or empty input is reported
// through the boolean return value and must be treated by callers as "no
// opinion", never as offline.
package normalize

import "strings"

// Status is the canonical lifecycle status of a monitored server.
type Status string

const (
	StatusOnline     Status = "online"
	StatusOffline    Status = "offline"
	StatusStarting   Status = "starting"
	StatusStopping   Status = "stopping"
	StatusRestarting Status = "restarting"
	StatusUnknown    Status = "unknown"
)

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}

// Event is the canonical lifecycle event reported by a sidecar or a push.
type Event string

const (
	EventStarting         Event = "starting"
	EventStarted          Event = "started"
	EventStopping         Event = "stopping"
	EventStopped          Event = "stopped"
	EventCrashed          Event = "crashed"
	EventScheduledRestart Event = "scheduled_restart"
)

// String implements fmt.Stringer.
func (e Event) String() string {
	return string(e)
}

// eventAliases is keyed by the folded form of the raw vocabulary (see fold).
var eventAliases = map[string]Event{
	"starting":         EventStarting,
	"serverstarting":   EventStarting,
	"resourcestarting": EventStarting,
	"booting":          EventStarting,

	"started":         EventStarted,
	"start":           EventStarted,
	"serverstarted":   EventStarted,
	"resourcestarted": EventStarted,
	"resourcestart":   EventStarted,
	"ready":           EventStarted,

	"stopping":           EventStopping,
	"serverstopping":     EventStopping,
	"servershuttingdown": EventStopping,
	"shuttingdown":       EventStopping,
	"resourcestopping":   EventStopping,

	"stopped":         EventStopped,
	"stop":            EventStopped,
	"serverstopped":   EventStopped,
	"resourcestop":    EventStopped,
	"resourcestopped": EventStopped,

	"crashed":       EventCrashed,
	"crash":         EventCrashed,
	"servercrashed": EventCrashed,
	"servercrash":   EventCrashed,

	"scheduledrestart":       EventScheduledRestart,
	"restartscheduled":       EventScheduledRestart,
	"serverscheduledrestart": EventScheduledRestart,
}

var statusAliases = map[string]Status{
	"online":  StatusOnline,
	"up":      StatusOnline,
	"running": StatusOnline,
	"started": StatusOnline,
	"alive":   StatusOnline,

	"offline": StatusOffline,
	"down":    StatusOffline,
	"stopped": StatusOffline,
	"crashed": StatusOffline,
	"dead":    StatusOffline,

	"starting": StatusStarting,
	"booting":  StatusStarting,

	"stopping":     StatusStopping,
	"shuttingdown": StatusStopping,

	"restarting": StatusRestarting,
	"rebooting":  StatusRestarting,

	"unknown": StatusUnknown,
}

// NormalizeEvent maps a vendor event name such as "resourceStarted",
// "serverShuttingDown" or "scheduled_restart" onto a canonical [Event].
//
// Matching ignores case and the separators '_', '-', '.', ':' and spaces.
// It returns false for empty or unrecognized input.
func NormalizeEvent(raw string) (Event, bool) {
	key := fold(raw)
	if key == "" {
		return "", false
	}
	ev, ok := eventAliases[key]
	return ev, ok
}

// NormalizeStatus maps a vendor status string onto a canonical [Status].
//
// Matching is case-insensitive. Unrecognized strings return false rather
// than a guessed default.
func NormalizeStatus(raw string) (Status, bool) {
	key := fold(raw)
	if key == "" {
		return "", false
	}
	st, ok := statusAliases[key]
	return st, ok
}

// StatusForEvent returns the status an entity is in after ev has happened.
func StatusForEvent(ev Event) Status {
	switch ev {
	case EventStarting:
		return StatusStarting
	case EventStarted:
		return StatusOnline
	case EventStopping:
		return StatusStopping
	case EventStopped, EventCrashed:
		return StatusOffline
	case EventScheduledRestart:
		return StatusRestarting
	default:
		return StatusUnknown
	}
}

// fold lowercases s and strips separators so "Server_Started" and
// "serverStarted" share a key.
func fold(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch r {
		case '_', '-', '.', ':', ' ':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
