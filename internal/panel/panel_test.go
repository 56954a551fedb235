package panel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/pulsewatch/internal/normalize"
	"github.com/jpalmerr/pulsewatch/internal/notify"
	"github.com/jpalmerr/pulsewatch/internal/probe"
	"github.com/jpalmerr/pulsewatch/internal/probe/probetest"
	"github.com/jpalmerr/pulsewatch/internal/registry"
	"github.com/jpalmerr/pulsewatch/internal/settings"
	"github.com/jpalmerr/pulsewatch/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingSink wraps a LogSink, counts writes and injects failures.
type countingSink struct {
	*notify.LogSink

	mu       sync.Mutex
	sends    int
	edits    int
	fetchErr error
	editErr  error
	sendErr  error
}

func newCountingSink() *countingSink {
	return &countingSink{LogSink: notify.NewLogSink(testLogger())}
}

func (s *countingSink) Send(ctx context.Context, channelID string, msg notify.Outgoing) (notify.Message, error) {
	s.mu.Lock()
	err := s.sendErr
	s.mu.Unlock()
	if err != nil {
		return notify.Message{}, err
	}
	s.mu.Lock()
	s.sends++
	s.mu.Unlock()
	return s.LogSink.Send(ctx, channelID, msg)
}

func (s *countingSink) FetchMessage(ctx context.Context, channelID, messageID string) (notify.Message, error) {
	s.mu.Lock()
	err := s.fetchErr
	s.mu.Unlock()
	if err != nil {
		return notify.Message{}, err
	}
	return s.LogSink.FetchMessage(ctx, channelID, messageID)
}

func (s *countingSink) Edit(ctx context.Context, msg notify.Message, embed notify.Embed) (notify.Message, error) {
	s.mu.Lock()
	err := s.editErr
	s.mu.Unlock()
	if err != nil {
		return notify.Message{}, err
	}
	s.mu.Lock()
	s.edits++
	s.mu.Unlock()
	return s.LogSink.Edit(ctx, msg, embed)
}

func (s *countingSink) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sends + s.edits
}

func newEntity(t *testing.T, panelID string) (*registry.TrackedEntity, *settings.MemoryStore) {
	t.Helper()
	reg := registry.New(func(registry.Config) probe.Adapter { return &probetest.Fake{Poll: true} })
	t.Cleanup(reg.Close)

	st := settings.Settings{ID: "main", Name: "Main City", PollURLA: "a", NotifyChannelID: "chan-1", PanelMessageID: panelID}
	e, err := reg.GetOrCreate(st.TrackingConfig())
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	return e, settings.NewMemoryStore(st)
}

func intp(n int) *int { return &n }

func online(players int) Update {
	return Update{Observation: &probe.Observation{Status: normalize.StatusOnline, InfoOK: true, Players: players, MaxPlayers: 32, Hostname: "LS"}}
}

func TestRenderer_CreatesAndPersists(t *testing.T) {
	e, settingsStore := newEntity(t, "")
	sink := newCountingSink()
	snapshots := store.NewMemoryStore()
	r := NewRenderer(sink, settingsStore, WithSnapshots(snapshots), WithLogger(testLogger()))

	wrote, err := r.Render(context.Background(), e, online(3), false)
	if err != nil || !wrote {
		t.Fatalf("Render() = %v, %v; want write", wrote, err)
	}
	if sink.sends != 1 {
		t.Errorf("sends = %d, want 1", sink.sends)
	}

	stored, _ := settingsStore.Get(context.Background(), "main")
	if stored.PanelMessageID == "" || stored.PanelMessageID != e.Panel.MessageID {
		t.Errorf("persisted id = %q, entity id = %q", stored.PanelMessageID, e.Panel.MessageID)
	}

	snaps := snapshots.GetAll()
	if len(snaps) != 1 || snaps[0].Status != "online" || snaps[0].Players != 3 || snaps[0].Name != "Main City" {
		t.Errorf("snapshots = %+v", snaps)
	}
}

func TestRenderer_SkipsUnchangedSignature(t *testing.T) {
	e, settingsStore := newEntity(t, "")
	sink := newCountingSink()
	r := NewRenderer(sink, settingsStore)
	ctx := context.Background()

	_, _ = r.Render(ctx, e, online(3), false)
	wrote, err := r.Render(ctx, e, online(3), false)
	if err != nil || wrote {
		t.Fatalf("Render() = %v, %v; want skip", wrote, err)
	}

	// empty update falls back to prior values
	wrote, _ = r.Render(ctx, e, Update{}, false)
	if wrote {
		t.Error("empty update should not write")
	}

	wrote, _ = r.Render(ctx, e, online(3), true)
	if !wrote {
		t.Error("forced render should write")
	}
	if sink.sends != 1 || sink.edits != 1 {
		t.Errorf("sends=%d edits=%d, want 1 and 1", sink.sends, sink.edits)
	}
}

func TestRenderer_EditsExistingMessage(t *testing.T) {
	e, settingsStore := newEntity(t, "")
	sink := newCountingSink()
	r := NewRenderer(sink, settingsStore)
	ctx := context.Background()

	_, _ = r.Render(ctx, e, online(3), false)
	first := e.Panel.MessageID
	_, _ = r.Render(ctx, e, online(4), false)

	if e.Panel.MessageID != first {
		t.Errorf("message id changed from %s to %s", first, e.Panel.MessageID)
	}
	if sink.edits != 1 {
		t.Errorf("edits = %d, want 1", sink.edits)
	}
	msg, _ := sink.FetchMessage(ctx, "chan-1", first)
	if msg.Embed == nil || msg.Embed.Fields[1].Value != "4/32" {
		t.Errorf("panel embed = %+v", msg.Embed)
	}
}

func TestRenderer_RecreatesMissingMessage(t *testing.T) {
	e, settingsStore := newEntity(t, "deleted-by-a-moderator")
	sink := newCountingSink()
	r := NewRenderer(sink, settingsStore)

	wrote, err := r.Render(context.Background(), e, online(1), false)
	if err != nil || !wrote {
		t.Fatalf("Render() = %v, %v", wrote, err)
	}
	if e.Panel.MessageID == "deleted-by-a-moderator" {
		t.Error("missing message should be replaced")
	}
	stored, _ := settingsStore.Get(context.Background(), "main")
	if stored.PanelMessageID != e.Panel.MessageID {
		t.Errorf("persisted id = %q, want %q", stored.PanelMessageID, e.Panel.MessageID)
	}
}

func TestRenderer_FailedWriteKeepsSignature(t *testing.T) {
	e, settingsStore := newEntity(t, "")
	sink := newCountingSink()
	r := NewRenderer(sink, settingsStore)
	ctx := context.Background()

	_, _ = r.Render(ctx, e, online(1), false)
	sig := e.Panel.Signature

	sink.editErr = errors.New("500 internal error")
	wrote, err := r.Render(ctx, e, online(2), false)
	if err == nil || wrote {
		t.Fatalf("Render() = %v, %v; want failure", wrote, err)
	}
	if e.Panel.Signature != sig {
		t.Error("signature must not move without a write")
	}

	sink.editErr = nil
	sink.fetchErr = errors.New("rate limited")
	if _, err := r.Render(ctx, e, online(2), false); err == nil {
		t.Fatal("fetch failure should be reported")
	}
	if e.Panel.Signature != sig || sink.sends != 1 {
		t.Error("fetch failure must neither write nor create a second panel")
	}

	sink.fetchErr = nil
	wrote, err = r.Render(ctx, e, online(2), false)
	if err != nil || !wrote {
		t.Fatalf("retry Render() = %v, %v; want write", wrote, err)
	}
	if e.Panel.Signature == sig {
		t.Error("signature should move after the retried write")
	}
}

func TestRenderer_WriteCountBound(t *testing.T) {
	e, settingsStore := newEntity(t, "")
	sink := newCountingSink()
	r := NewRenderer(sink, settingsStore)
	ctx := context.Background()

	updates := []struct {
		u     Update
		force bool
	}{
		{online(1), false},
		{online(1), false},
		{online(2), false},
		{online(2), true},
		{Update{EventType: "serverStarted", EventUpdatedAt: "1"}, false},
		{Update{EventType: "serverStarted", EventUpdatedAt: "1"}, false},
		{Update{Observation: &probe.Observation{Status: normalize.StatusUnknown}}, false},
		{Update{Observation: &probe.Observation{Status: normalize.StatusOffline}}, false},
		{Update{Observation: &probe.Observation{Status: normalize.StatusOffline}}, false},
	}

	changed, forced := 0, 0
	prev := ""
	for _, step := range updates {
		next := Signature(Merge(e.Panel.Fields, step.u))
		if next != prev {
			changed++
		}
		if step.force {
			forced++
		}
		prev = next
		if _, err := r.Render(ctx, e, step.u, step.force); err != nil {
			t.Fatalf("Render() error = %v", err)
		}
	}

	if sink.writes() > changed+forced {
		t.Errorf("writes = %d, want <= %d", sink.writes(), changed+forced)
	}
	if sink.writes() != 5 {
		t.Errorf("writes = %d, want 5", sink.writes())
	}
}

func TestRenderer_ConcurrentRendersCreateOnePanel(t *testing.T) {
	e, settingsStore := newEntity(t, "")
	sink := newCountingSink()
	r := NewRenderer(sink, settingsStore)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(players int) {
			defer wg.Done()
			if _, err := r.Render(ctx, e, online(players), players%2 == 0); err != nil {
				t.Errorf("Render() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	sink.mu.Lock()
	sends := sink.sends
	sink.mu.Unlock()
	if sends != 1 {
		t.Errorf("sends = %d, want a single panel message", sends)
	}

	e.Panel.Lock()
	defer e.Panel.Unlock()
	if e.Panel.Signature != Signature(e.Panel.Fields) {
		t.Error("last write should carry the newest fields")
	}
	if e.Panel.InFlight || e.Panel.Dirty {
		t.Error("write state should be cleared once renders return")
	}
	stored, err := settingsStore.Get(ctx, "main")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.PanelMessageID == "" || stored.PanelMessageID != e.Panel.MessageID {
		t.Errorf("persisted id = %q, panel id = %q", stored.PanelMessageID, e.Panel.MessageID)
	}
}

func TestMerge(t *testing.T) {
	prior := registry.PanelFields{Status: normalize.StatusOnline, Players: 5, MaxPlayers: 32, Hostname: "LS"}

	got := Merge(prior, Update{EventType: "serverStopping", EventUpdatedAt: "t2", TxState: "stopping"})
	if got.Players != 5 || got.Hostname != "LS" || got.EventType != "serverStopping" {
		t.Errorf("event-only update lost prior values: %+v", got)
	}

	got = Merge(prior, Update{Observation: &probe.Observation{Status: normalize.StatusOffline}})
	if got.Status != normalize.StatusOffline || got.Players != 0 || got.MaxPlayers != 32 {
		t.Errorf("offline merge = %+v", got)
	}

	got = Merge(prior, Update{Observation: &probe.Observation{Status: normalize.StatusUnknown}})
	if got != prior {
		t.Errorf("unknown observation changed fields: %+v", got)
	}

	got = Merge(prior, Update{Status: normalize.StatusRestarting, Players: intp(0), MaxPlayers: intp(64), Hostname: "New"})
	if got.Status != normalize.StatusRestarting || got.Players != 0 || got.MaxPlayers != 64 || got.Hostname != "New" {
		t.Errorf("push merge = %+v", got)
	}
}

func TestSignature(t *testing.T) {
	a := registry.PanelFields{Players: 1, Hostname: "x"}
	b := registry.PanelFields{Players: 1, Hostname: "x"}
	if Signature(a) != Signature(b) {
		t.Error("equal fields must give equal signatures")
	}
	b.Hostname = "y"
	if Signature(a) == Signature(b) {
		t.Error("different fields must give different signatures")
	}
	// field boundaries matter
	c := registry.PanelFields{EventType: "ab", EventUpdatedAt: "c"}
	d := registry.PanelFields{EventType: "a", EventUpdatedAt: "bc"}
	if Signature(c) == Signature(d) {
		t.Error("signature must keep field boundaries")
	}
}

func TestRenderer_Timestamp(t *testing.T) {
	e, settingsStore := newEntity(t, "")
	sink := newCountingSink()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	snapshots := store.NewMemoryStore()
	r := NewRenderer(sink, settingsStore, WithClock(func() time.Time { return at }), WithSnapshots(snapshots))

	_, _ = r.Render(context.Background(), e, online(1), false)
	if got := snapshots.GetAll()[0].UpdatedAt; !got.Equal(at) {
		t.Errorf("UpdatedAt = %v, want %v", got, at)
	}
}
