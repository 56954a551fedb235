package normalize

import "testing"

func TestNormalizeEvent(t *testing.T) {
	tests := []struct {
		raw    string
		want   Event
		wantOK bool
	}{
		{"resourceStarted", EventStarted, true},
		{"resourceStop", EventStopped, true},
		{"serverStarting", EventStarting, true},
		{"SERVER_STOPPING", EventStopping, true},
		{"serverShuttingDown", EventStopping, true},
		{"crashed", EventCrashed, true},
		{"scheduled_restart", EventScheduledRestart, true},
		{"scheduledRestart", EventScheduledRestart, true},
		{"  started  ", EventStarted, true},
		{"", "", false},
		{"   ", "", false},
		{"playerJoining", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := NormalizeEvent(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("NormalizeEvent(%q) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("NormalizeEvent(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw    string
		want   Status
		wantOK bool
	}{
		{"up", StatusOnline, true},
		{"Running", StatusOnline, true},
		{"started", StatusOnline, true},
		{"DOWN", StatusOffline, true},
		{"stopped", StatusOffline, true},
		{"crashed", StatusOffline, true},
		{"starting", StatusStarting, true},
		{"shutting_down", StatusStopping, true},
		{"restarting", StatusRestarting, true},
		{"unknown", StatusUnknown, true},
		{"degraded", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := NormalizeStatus(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("NormalizeStatus(%q) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("NormalizeStatus(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestStatusForEvent(t *testing.T) {
	tests := map[Event]Status{
		EventStarting:         StatusStarting,
		EventStarted:          StatusOnline,
		EventStopping:         StatusStopping,
		EventStopped:          StatusOffline,
		EventCrashed:          StatusOffline,
		EventScheduledRestart: StatusRestarting,
		Event("bogus"):        StatusUnknown,
	}
	for ev, want := range tests {
		if got := StatusForEvent(ev); got != want {
			t.Errorf("StatusForEvent(%q) = %q, want %q", ev, got, want)
		}
	}
}
