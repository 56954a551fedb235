package notify

import "github.com/jpalmerr/pulsewatch/internal/normalize"

// Kind classifies a notification.
type Kind string

const (
	KindOnline           Kind = "online"
	KindOffline          Kind = "offline"
	KindStarting         Kind = "starting"
	KindStarted          Kind = "started"
	KindStopping         Kind = "stopping"
	KindStopped          Kind = "stopped"
	KindCrashed          Kind = "crashed"
	KindScheduledRestart Kind = "scheduled_restart"
	KindRestarting       Kind = "restarting"
	KindCrashInferred    Kind = "crash_inferred"
	KindAnomaly          Kind = "anomaly"
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// Escalates reports whether the kind is also sent as a direct alert.
func (k Kind) Escalates() bool {
	switch k {
	case KindOffline, KindCrashed, KindCrashInferred:
		return true
	default:
		return false
	}
}

// Title is the short headline used for the kind.
func (k Kind) Title() string {
	switch k {
	case KindOnline:
		return "Server online"
	case KindOffline:
		return "Server offline"
	case KindStarting:
		return "Server starting"
	case KindStarted:
		return "Server started"
	case KindStopping:
		return "Server stopping"
	case KindStopped:
		return "Server stopped"
	case KindCrashed:
		return "Server crashed"
	case KindScheduledRestart:
		return "Scheduled restart"
	case KindRestarting:
		return "Server restarting"
	case KindCrashInferred:
		return "Server crash suspected"
	case KindAnomaly:
		return "Status feed anomaly"
	default:
		return "Server status"
	}
}

// Color is the embed accent color for the kind.
func (k Kind) Color() int {
	switch k {
	case KindOnline, KindStarted:
		return 0x2ecc71
	case KindOffline, KindStopped:
		return 0xe74c3c
	case KindCrashed, KindCrashInferred:
		return 0x992d22
	case KindStarting:
		return 0xf1c40f
	case KindStopping, KindAnomaly:
		return 0xe67e22
	case KindScheduledRestart, KindRestarting:
		return 0x3498db
	default:
		return 0x95a5a6
	}
}

// KindForEvent returns the notification kind announcing ev.
func KindForEvent(ev normalize.Event) Kind {
	switch ev {
	case normalize.EventStarting:
		return KindStarting
	case normalize.EventStarted:
		return KindStarted
	case normalize.EventStopping:
		return KindStopping
	case normalize.EventStopped:
		return KindStopped
	case normalize.EventCrashed:
		return KindCrashed
	case normalize.EventScheduledRestart:
		return KindScheduledRestart
	default:
		return ""
	}
}

// KindForStatus returns the transition kind announcing st, or "" for
// unknown.
func KindForStatus(st normalize.Status) Kind {
	switch st {
	case normalize.StatusOnline:
		return KindOnline
	case normalize.StatusOffline:
		return KindOffline
	case normalize.StatusStarting:
		return KindStarting
	case normalize.StatusStopping:
		return KindStopping
	case normalize.StatusRestarting:
		return KindRestarting
	default:
		return ""
	}
}
