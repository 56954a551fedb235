package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/pulsewatch/internal/normalize"
)

// gameServer serves FiveM-style info and player endpoints.
func gameServer(t *testing.T, info, players string, code int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/dynamic.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(info))
	})
	mux.HandleFunc("/players.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(players))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProbe_PollStatus(t *testing.T) {
	t.Run("online", func(t *testing.T) {
		srv := gameServer(t, `{"hostname":"^1Los ^7Santos","clients":3,"sv_maxclients":"48"}`, `[{"id":1},{"id":2}]`, http.StatusOK)
		p := New(Config{PollURLA: srv.URL + "/dynamic.json", PollURLB: srv.URL + "/players.json"})
		defer p.Close()

		obs := p.PollStatus(context.Background())
		if obs.Status != normalize.StatusOnline {
			t.Fatalf("Status = %q, want online", obs.Status)
		}
		if !obs.InfoOK || !obs.PlayersOK {
			t.Errorf("InfoOK=%v PlayersOK=%v, want both true", obs.InfoOK, obs.PlayersOK)
		}
		if obs.Hostname != "Los Santos" {
			t.Errorf("Hostname = %q, want %q", obs.Hostname, "Los Santos")
		}
		// the player list wins over the info counter
		if obs.Players != 2 {
			t.Errorf("Players = %d, want 2", obs.Players)
		}
		if obs.MaxPlayers != 48 {
			t.Errorf("MaxPlayers = %d, want 48", obs.MaxPlayers)
		}
		if !p.IsConnected() {
			t.Error("IsConnected() = false after successful poll")
		}
	})

	t.Run("offline when unreachable", func(t *testing.T) {
		srv := gameServer(t, "{}", "[]", http.StatusOK)
		url := srv.URL
		srv.Close()

		p := New(Config{PollURLA: url + "/dynamic.json", Timeout: time.Second})
		obs := p.PollStatus(context.Background())
		if obs.Status != normalize.StatusOffline {
			t.Errorf("Status = %q, want offline", obs.Status)
		}
		if p.IsConnected() {
			t.Error("IsConnected() = true after failed poll")
		}
	})

	t.Run("offline when both endpoints answer non-2xx", func(t *testing.T) {
		for _, code := range []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusNotFound} {
			srv := gameServer(t, "{}", "[]", code)
			p := New(Config{PollURLA: srv.URL + "/dynamic.json", PollURLB: srv.URL + "/players.json"})
			obs := p.PollStatus(context.Background())
			if obs.Status != normalize.StatusOffline {
				t.Errorf("HTTP %d: Status = %q, want offline", code, obs.Status)
			}
			if obs.InfoOK || obs.PlayersOK {
				t.Errorf("HTTP %d: InfoOK=%v PlayersOK=%v, want both false", code, obs.InfoOK, obs.PlayersOK)
			}
			if p.IsConnected() {
				t.Errorf("HTTP %d: IsConnected() = true", code)
			}
		}
	})

	t.Run("unknown when 2xx body is undecodable", func(t *testing.T) {
		srv := gameServer(t, "<html>maintenance</html>", "nope", http.StatusOK)
		p := New(Config{PollURLA: srv.URL + "/dynamic.json", PollURLB: srv.URL + "/players.json"})
		obs := p.PollStatus(context.Background())
		if obs.Status != normalize.StatusUnknown {
			t.Errorf("Status = %q, want unknown", obs.Status)
		}
	})

	t.Run("unknown when one endpoint answers 2xx garbage and the other fails", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/dynamic.json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		})
		mux.HandleFunc("/players.json", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		p := New(Config{PollURLA: srv.URL + "/dynamic.json", PollURLB: srv.URL + "/players.json"})
		if obs := p.PollStatus(context.Background()); obs.Status != normalize.StatusUnknown {
			t.Errorf("Status = %q, want unknown", obs.Status)
		}
	})

	t.Run("no poll probe", func(t *testing.T) {
		p := New(Config{SidecarURL: "/tmp/x"})
		if p.HasPollProbe() {
			t.Fatal("HasPollProbe() = true without URLs")
		}
		if obs := p.PollStatus(context.Background()); obs.Status != normalize.StatusUnknown {
			t.Errorf("Status = %q, want unknown", obs.Status)
		}
	})
}

func writeSidecar(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "status.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write sidecar: %v", err)
	}
	return path
}

func TestProbe_ReadSidecarStatus(t *testing.T) {
	dir := t.TempDir()
	path := writeSidecar(t, dir, `{"state":"running","event":{"type":"serverStarted","data":{"by":"txAdmin"}},"updated_at":"2026-05-01T10:00:00Z"}`)

	for _, src := range []string{path, "file://" + path} {
		p := New(Config{SidecarURL: src})
		st, err := p.ReadSidecarStatus(context.Background())
		if err != nil {
			t.Fatalf("ReadSidecarStatus(%s) error = %v", src, err)
		}
		if st.State != "running" || st.Event.Type != "serverStarted" {
			t.Errorf("unexpected status %+v", st)
		}
		if st.UpdatedAt != "2026-05-01T10:00:00Z" {
			t.Errorf("UpdatedAt = %q", st.UpdatedAt)
		}
		if rs := p.LastReadStatus(); rs.Err != nil || rs.Attempts != 1 {
			t.Errorf("LastReadStatus() = %+v, want success on first attempt", rs)
		}
		if !p.IsConnected() {
			t.Error("IsConnected() = false after successful sidecar read")
		}
	}
}

func TestProbe_ReadSidecarStatus_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"state":"stopped","updated_at":1767225600}`))
	}))
	defer srv.Close()

	p := New(Config{SidecarURL: srv.URL})
	st, err := p.ReadSidecarStatus(context.Background())
	if err != nil {
		t.Fatalf("ReadSidecarStatus() error = %v", err)
	}
	if st.UpdatedAt != "1767225600" {
		t.Errorf("UpdatedAt = %q, want raw unix seconds", st.UpdatedAt)
	}
	if got := p.EventTypeOf(st); got != "stopped" {
		t.Errorf("EventTypeOf() = %q, want state fallback %q", got, "stopped")
	}
}

func TestProbe_ReadSidecarStatus_RetriesExhausted(t *testing.T) {
	p := New(Config{
		SidecarURL:        filepath.Join(t.TempDir(), "missing.json"),
		SidecarRetries:    3,
		SidecarRetryDelay: -1,
	})

	st, err := p.ReadSidecarStatus(context.Background())
	if st != nil {
		t.Fatalf("expected nil status, got %+v", st)
	}
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("error = %v, want ErrRetriesExhausted", err)
	}

	rs := p.LastReadStatus()
	if !rs.RetriesExhausted() {
		t.Error("RetriesExhausted() = false")
	}
	if rs.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", rs.Attempts)
	}
	if !strings.Contains(rs.Reason(), "after 3 attempts") {
		t.Errorf("Reason() = %q", rs.Reason())
	}
	if p.IsConnected() {
		t.Error("IsConnected() = true after failed read")
	}
}

func TestProbe_ReadSidecarStatus_Malformed(t *testing.T) {
	path := writeSidecar(t, t.TempDir(), `{"state":`)
	p := New(Config{SidecarURL: path, SidecarRetryDelay: -1})

	_, err := p.ReadSidecarStatus(context.Background())
	if !errors.Is(err, ErrMalformedSidecar) {
		t.Fatalf("error = %v, want ErrMalformedSidecar", err)
	}
	if p.LastReadStatus().RetriesExhausted() {
		t.Error("malformed blob must not count as an exhausted retry budget")
	}
}

func TestProbe_ReadSidecarStatus_Stale(t *testing.T) {
	path := writeSidecar(t, t.TempDir(), `{"state":"running","updated_at":"2026-05-01T10:00:00Z"}`)
	now := time.Date(2026, 5, 1, 10, 10, 0, 0, time.UTC)
	p := New(Config{SidecarURL: path, StaleAfter: 5 * time.Minute}, WithClock(func() time.Time { return now }))

	_, err := p.ReadSidecarStatus(context.Background())
	if !errors.Is(err, ErrStaleSidecar) {
		t.Fatalf("error = %v, want ErrStaleSidecar", err)
	}
}

func TestProbe_ReadSidecarStatus_NotConfigured(t *testing.T) {
	p := New(Config{PollURLA: "http://127.0.0.1:1/dynamic.json"})
	if p.HasSidecar() {
		t.Fatal("HasSidecar() = true without URL")
	}
	if _, err := p.ReadSidecarStatus(context.Background()); !errors.Is(err, ErrNoSidecar) {
		t.Errorf("error = %v, want ErrNoSidecar", err)
	}
}

func TestProbe_ShouldAnnounce(t *testing.T) {
	p := New(Config{SidecarURL: "/unused"})

	started := &SidecarStatus{Event: SidecarEvent{Type: "serverStarted"}, UpdatedAt: "1"}
	if p.ShouldAnnounce(started) {
		t.Error("first status should only prime the debounce")
	}
	if p.ShouldAnnounce(started) {
		t.Error("repeated identical status should not be announced")
	}

	stopping := &SidecarStatus{Event: SidecarEvent{Type: "serverShuttingDown"}, UpdatedAt: "2"}
	if !p.ShouldAnnounce(stopping) {
		t.Error("new event should be announced")
	}
	if p.ShouldAnnounce(stopping) {
		t.Error("same event read twice should be announced once")
	}

	restarted := &SidecarStatus{Event: SidecarEvent{Type: "serverStarted"}, UpdatedAt: "3"}
	if !p.ShouldAnnounce(restarted) {
		t.Error("same event type with a new timestamp should be announced")
	}

	if p.ShouldAnnounce(nil) {
		t.Error("nil status should never be announced")
	}
}

func TestProbe_FormatMessage(t *testing.T) {
	p := New(Config{Name: "Main City"})

	tests := []struct {
		obs  Observation
		want string
	}{
		{Observation{Status: normalize.StatusOnline, Hostname: "LS", Players: 4, MaxPlayers: 32}, "🟢 LS is online (4/32 players)"},
		{Observation{Status: normalize.StatusOnline, Players: 4}, "🟢 Main City is online (4 players)"},
		{Observation{Status: normalize.StatusOffline}, "🔴 Main City is offline"},
		{Observation{Status: normalize.StatusUnknown}, "⚪ Main City status is unknown"},
	}
	for _, tt := range tests {
		if got := p.FormatMessage(tt.obs); got != tt.want {
			t.Errorf("FormatMessage(%+v) = %q, want %q", tt.obs, got, tt.want)
		}
	}
}

func TestStripColorCodes(t *testing.T) {
	tests := map[string]string{
		"^1Red ^7White":  "Red White",
		"plain":          "plain",
		"  ^^5caret  ":   "^caret",
		"trailing^":      "trailing^",
	}
	for in, want := range tests {
		if got := stripColorCodes(in); got != want {
			t.Errorf("stripColorCodes(%q) = %q, want %q", in, got, want)
		}
	}
}
