package push

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/pulsewatch/internal/normalize"
	"github.com/jpalmerr/pulsewatch/internal/notify"
	"github.com/jpalmerr/pulsewatch/internal/panel"
	"github.com/jpalmerr/pulsewatch/internal/probe"
	"github.com/jpalmerr/pulsewatch/internal/probe/probetest"
	"github.com/jpalmerr/pulsewatch/internal/registry"
	"github.com/jpalmerr/pulsewatch/internal/settings"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingSink counts channel sends and panel edits.
type countingSink struct {
	*notify.LogSink

	mu    sync.Mutex
	sends int
	edits int

	// editHook, when set, runs at the start of every Edit.
	editHook func()
}

func (c *countingSink) Send(ctx context.Context, channelID string, msg notify.Outgoing) (notify.Message, error) {
	c.mu.Lock()
	c.sends++
	c.mu.Unlock()
	return c.LogSink.Send(ctx, channelID, msg)
}

func (c *countingSink) Edit(ctx context.Context, msg notify.Message, embed notify.Embed) (notify.Message, error) {
	c.mu.Lock()
	hook := c.editHook
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	c.mu.Lock()
	c.edits++
	c.mu.Unlock()
	return c.LogSink.Edit(ctx, msg, embed)
}

func (c *countingSink) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sends, c.edits
}

type fixture struct {
	ingestor *Ingestor
	registry *registry.Registry
	renderer *panel.Renderer
	notes    *countingSink
	panels   *countingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := settings.NewMemoryStore(
		settings.Settings{ID: "main", Name: "Main City", NotifyChannelID: "chan-1"},
		settings.Settings{ID: "muted", PollURLA: "http://x"},
	)
	reg := registry.New(func(registry.Config) probe.Adapter { return &probetest.Fake{} })
	t.Cleanup(reg.Close)

	f := &fixture{
		registry: reg,
		notes:    &countingSink{LogSink: notify.NewLogSink(testLogger())},
		panels:   &countingSink{LogSink: notify.NewLogSink(testLogger())},
	}
	dispatcher := notify.NewDispatcher(f.notes, notify.WithLogger(testLogger()))
	f.renderer = panel.NewRenderer(f.panels, store)
	f.ingestor = NewIngestor(store, reg, dispatcher, f.renderer, testLogger())
	return f
}

func (f *fixture) notifications() int {
	n, _ := f.notes.counts()
	return n
}

func assertSent(t *testing.T, res Result, want ...string) {
	t.Helper()
	if !res.OK {
		t.Fatalf("HandlePush() rejected: %s", res.Error)
	}
	if strings.Join(res.Sent, ",") != strings.Join(want, ",") {
		t.Fatalf("Sent = %v, want %v", res.Sent, want)
	}
}

func TestIngestor_EventIdempotency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := Payload{EntityID: "main", Event: "resourceStarted", EventID: "evt-1"}

	assertSent(t, f.ingestor.HandlePush(ctx, p), "started")

	e, _ := f.registry.Get("main")
	if e.Push.LastStatus != normalize.StatusOnline {
		t.Errorf("push LastStatus = %q, want online", e.Push.LastStatus)
	}
	if e.Push.LastEventID != "evt-1" {
		t.Errorf("LastEventID = %q, want evt-1", e.Push.LastEventID)
	}

	assertSent(t, f.ingestor.HandlePush(ctx, p))
	if f.notifications() != 1 {
		t.Errorf("notifications = %d, want 1", f.notifications())
	}
}

func TestIngestor_DuplicateEventStillConsidersStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assertSent(t, f.ingestor.HandlePush(ctx, Payload{EntityID: "main", Event: "serverStarted", EventID: "e1"}), "started")
	assertSent(t, f.ingestor.HandlePush(ctx, Payload{EntityID: "main", Event: "serverStarted", EventID: "e1", Status: "stopped"}), "offline")
}

func TestIngestor_EventSuppressesStatusNotification(t *testing.T) {
	f := newFixture(t)
	res := f.ingestor.HandlePush(context.Background(), Payload{EntityID: "main", Event: "serverStopped", EventID: "e9", Status: "down"})
	assertSent(t, res, "stopped")
}

func TestIngestor_StatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	steps := []struct {
		status string
		want   []string
	}{
		{"down", []string{"offline"}},
		{"DOWN", nil},
		{"degraded", nil},
		{"running", []string{"online"}},
		{"up", nil},
		{"restarting", []string{"restarting"}},
	}
	for _, step := range steps {
		res := f.ingestor.HandlePush(ctx, Payload{EntityID: "main", Status: step.status})
		assertSent(t, res, step.want...)
	}
}

func TestIngestor_TxAdminEventAlias(t *testing.T) {
	f := newFixture(t)
	res := f.ingestor.HandlePush(context.Background(), Payload{EntityID: "main", TxAdminEvent: "scheduledRestart"})
	assertSent(t, res, "scheduled_restart")
}

func TestIngestor_UnknownEventIsIgnored(t *testing.T) {
	f := newFixture(t)
	res := f.ingestor.HandlePush(context.Background(), Payload{EntityID: "main", Event: "playerJoining", EventID: "x"})
	assertSent(t, res)

	e, _ := f.registry.Get("main")
	if e.Push.LastEventID != "" {
		t.Error("unrecognized event must not consume the event id")
	}
}

func TestIngestor_Rejections(t *testing.T) {
	players := -1
	tests := []struct {
		name string
		p    Payload
		want string
	}{
		{"missing entity", Payload{Event: "started"}, ErrCodeEntityRequired},
		{"blank entity", Payload{EntityID: "   "}, ErrCodeEntityRequired},
		{"unknown entity", Payload{EntityID: "ghost", Status: "up"}, ErrCodeChannelNotConfigured},
		{"no channel", Payload{EntityID: "muted", Status: "up"}, ErrCodeChannelNotConfigured},
		{"negative players", Payload{EntityID: "main", Players: &players}, ErrCodeInvalidPayload},
		{"oversized hostname", Payload{EntityID: "main", Hostname: strings.Repeat("x", 300)}, ErrCodeInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res := f.ingestor.HandlePush(context.Background(), tt.p)
			if res.OK || res.Error != tt.want {
				t.Errorf("HandlePush() = %+v, want error %s", res, tt.want)
			}
			if res.Sent == nil {
				t.Error("Sent should be an empty list, not nil")
			}
			if len(f.registry.List()) != 0 {
				t.Error("rejected push must not create state")
			}
			if f.notifications() != 0 {
				t.Error("rejected push must not notify")
			}
		})
	}
}

func TestIngestor_ForcesPanelRender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	players, max := 7, 64
	p := Payload{EntityID: "main", Status: "online", Players: &players, MaxPlayers: &max, Hostname: "LS"}

	f.ingestor.HandlePush(ctx, p)
	f.ingestor.HandlePush(ctx, p)

	sends, edits := f.panels.counts()
	if sends != 1 || edits != 1 {
		t.Errorf("panel sends=%d edits=%d, want 1 and 1", sends, edits)
	}

	e, _ := f.registry.Get("main")
	e.Panel.Lock()
	defer e.Panel.Unlock()
	if e.Panel.Fields.Players != 7 || e.Panel.Fields.MaxPlayers != 64 || e.Panel.Fields.Status != normalize.StatusOnline {
		t.Errorf("panel fields = %+v", e.Panel.Fields)
	}
}

func TestIngestor_NotBlockedByPollLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingestor.HandlePush(ctx, Payload{EntityID: "main", Status: "up"})

	e, _ := f.registry.Get("main")
	e.LockPoll()
	defer e.UnlockPoll()

	done := make(chan Result, 1)
	go func() { done <- f.ingestor.HandlePush(ctx, Payload{EntityID: "main", Status: "down"}) }()

	select {
	case res := <-done:
		assertSent(t, res, "offline")
	case <-time.After(2 * time.Second):
		t.Fatal("push blocked by the poll lock")
	}
}

func TestIngestor_NotBlockedBySlowPanelWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingestor.HandlePush(ctx, Payload{EntityID: "main", Status: "up"})
	e, _ := f.registry.Get("main")

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.panels.mu.Lock()
	f.panels.editHook = func() {
		once.Do(func() {
			close(entered)
			<-release
		})
	}
	f.panels.mu.Unlock()

	// a poll-path render stuck in the sink
	pollDone := make(chan error, 1)
	go func() {
		_, err := f.renderer.Render(ctx, e, panel.Update{Hostname: "Los Santos"}, false)
		pollDone <- err
	}()
	<-entered

	done := make(chan Result, 1)
	go func() { done <- f.ingestor.HandlePush(ctx, Payload{EntityID: "main", Status: "down"}) }()

	select {
	case res := <-done:
		assertSent(t, res, "offline")
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("push blocked by an in-flight panel write")
	}

	close(release)
	if err := <-pollDone; err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	// the in-flight writer flushes the push's values
	if _, edits := f.panels.counts(); edits != 2 {
		t.Errorf("panel edits = %d, want 2", edits)
	}
	e.Panel.Lock()
	defer e.Panel.Unlock()
	if e.Panel.Fields.Status != normalize.StatusOffline || e.Panel.Fields.Hostname != "Los Santos" {
		t.Errorf("panel fields = %+v, want offline with hostname kept", e.Panel.Fields)
	}
	if e.Panel.Signature != panel.Signature(e.Panel.Fields) {
		t.Error("stored signature should match the newest fields")
	}
	if e.Panel.InFlight || e.Panel.Dirty {
		t.Error("write state should be cleared")
	}
}

func TestIngestor_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.ingestor.HandlePush(ctx, Payload{EntityID: "main", Event: "crashed", EventID: "boom"})
		}()
	}
	wg.Wait()

	if f.notifications() != 1 {
		t.Errorf("notifications = %d, want 1", f.notifications())
	}
}
