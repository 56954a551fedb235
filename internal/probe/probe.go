package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jpalmerr/pulsewatch/internal/normalize"
)

const (
	defaultTimeout           = 5 * time.Second
	defaultSidecarRetries    = 3
	defaultSidecarRetryDelay = 500 * time.Millisecond
)

// Config describes where a [Probe] looks for one server.
type Config struct {
	// Name is used by FormatMessage when the server reports no hostname.
	Name string

	// PollURLA is the server info endpoint (e.g. FiveM dynamic.json).
	PollURLA string

	// PollURLB is the player list endpoint (e.g. FiveM players.json).
	PollURLB string

	// SidecarURL is a file path, file:// URL or http(s) URL of the sidecar blob.
	SidecarURL string

	Headers map[string]string
	Timeout time.Duration

	// SidecarRetries is the per-read retry budget. Defaults to 3.
	SidecarRetries int

	// SidecarRetryDelay is the pause between attempts. Defaults to 500ms;
	// a negative value disables the pause.
	SidecarRetryDelay time.Duration

	// StaleAfter flags a sidecar blob whose updated_at is older than this.
	// Zero disables the check.
	StaleAfter time.Duration

	Fields FieldPaths
}

// Option configures a [Probe].
type Option func(*Probe)

// WithClient shares an HTTP client between probes. The probe does not close
// a shared client.
func WithClient(c *Client) Option {
	return func(p *Probe) {
		if c != nil {
			p.client = c
			p.ownsClient = false
		}
	}
}

// WithClock overrides time.Now, for staleness checks in tests.
func WithClock(now func() time.Time) Option {
	return func(p *Probe) {
		if now != nil {
			p.now = now
		}
	}
}

// Probe is the reference [Adapter]: HTTP polling of the server plus a
// file or HTTP sidecar read.
type Probe struct {
	cfg        Config
	client     *Client
	ownsClient bool
	now        func() time.Time

	mu            sync.Mutex
	lastRead      ReadStatus
	connected     bool
	primed        bool
	lastAnnounced string
}

var _ Adapter = (*Probe)(nil)

// New creates a [Probe] from cfg, filling defaults.
func New(cfg Config, opts ...Option) *Probe {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.SidecarRetries <= 0 {
		cfg.SidecarRetries = defaultSidecarRetries
	}
	if cfg.SidecarRetryDelay < 0 {
		cfg.SidecarRetryDelay = 0
	} else if cfg.SidecarRetryDelay == 0 {
		cfg.SidecarRetryDelay = defaultSidecarRetryDelay
	}
	cfg.Fields = cfg.Fields.withDefaults()

	p := &Probe{
		cfg:        cfg,
		client:     NewClient(),
		ownsClient: true,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HasPollProbe implements [StatusPoller].
func (p *Probe) HasPollProbe() bool {
	return p.cfg.PollURLA != "" || p.cfg.PollURLB != ""
}

// HasSidecar implements [SidecarReader].
func (p *Probe) HasSidecar() bool {
	return p.cfg.SidecarURL != ""
}

// PollStatus implements [StatusPoller].
//
// The server is online when either endpoint decodes, offline when every
// endpoint failed at the transport level or answered non-2xx, and unknown
// when a 2xx body arrived but could not be interpreted.
func (p *Probe) PollStatus(ctx context.Context) Observation {
	obs := Observation{Status: normalize.StatusUnknown, CheckedAt: p.now()}
	if !p.HasPollProbe() {
		return obs
	}

	// answered is set by any 2xx reply, decodable or not
	answered := false

	if p.cfg.PollURLA != "" {
		resp := p.client.Fetch(ctx, p.cfg.PollURLA, p.cfg.Headers, p.cfg.Timeout)
		if resp.OK() {
			answered = true
			if info, ok := parseInfo(resp.Body, p.cfg.Fields); ok {
				obs.InfoOK = true
				obs.Hostname = info.hostname
				obs.MaxPlayers = info.maxPlayers
				if info.hasPlayers {
					obs.Players = info.players
				}
			}
		}
	}

	if p.cfg.PollURLB != "" {
		resp := p.client.Fetch(ctx, p.cfg.PollURLB, p.cfg.Headers, p.cfg.Timeout)
		if resp.OK() {
			answered = true
			if n, ok := parsePlayers(resp.Body); ok {
				obs.PlayersOK = true
				obs.Players = n
			}
		}
	}

	switch {
	case obs.InfoOK || obs.PlayersOK:
		obs.Status = normalize.StatusOnline
	case !answered:
		obs.Status = normalize.StatusOffline
	}

	p.mu.Lock()
	p.connected = obs.Status == normalize.StatusOnline
	p.mu.Unlock()

	return obs
}

// ReadSidecarStatus implements [SidecarReader].
//
// Transport failures are retried up to the configured budget; when every
// attempt fails the returned error wraps [ErrRetriesExhausted]. Decoding and
// staleness failures are not retried.
func (p *Probe) ReadSidecarStatus(ctx context.Context) (*SidecarStatus, error) {
	if !p.HasSidecar() {
		return nil, p.recordRead(ErrNoSidecar, 0)
	}

	var (
		data    []byte
		lastErr error
		attempt int
	)
	for attempt = 1; attempt <= p.cfg.SidecarRetries; attempt++ {
		data, lastErr = p.readSidecarRaw(ctx)
		if lastErr == nil {
			break
		}
		if attempt == p.cfg.SidecarRetries || ctx.Err() != nil {
			break
		}
		if err := sleepContext(ctx, p.cfg.SidecarRetryDelay); err != nil {
			break
		}
	}

	if lastErr != nil {
		return nil, p.recordRead(fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempt, lastErr), attempt)
	}

	st, updatedAt, err := decodeSidecar(data)
	if err != nil {
		return nil, p.recordRead(err, attempt)
	}

	if p.cfg.StaleAfter > 0 && !updatedAt.IsZero() {
		if age := p.now().Sub(updatedAt); age > p.cfg.StaleAfter {
			return nil, p.recordRead(fmt.Errorf("%w: last update %s ago", ErrStaleSidecar, age.Round(time.Second)), attempt)
		}
	}

	p.recordRead(nil, attempt)
	return st, nil
}

// LastReadStatus implements [SidecarReader].
func (p *Probe) LastReadStatus() ReadStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRead
}

// IsConnected implements [SidecarReader].
func (p *Probe) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// ShouldAnnounce implements [Classifier]. The first status seen only primes
// the debounce so a restart of pulsewatch does not repeat an old event.
func (p *Probe) ShouldAnnounce(st *SidecarStatus) bool {
	if st == nil {
		return false
	}
	eventType := p.EventTypeOf(st)
	key := eventType + "|" + st.UpdatedAt

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.primed {
		p.primed = true
		p.lastAnnounced = key
		return false
	}
	if key == p.lastAnnounced {
		return false
	}
	p.lastAnnounced = key
	return eventType != ""
}

// EventTypeOf implements [Classifier].
func (p *Probe) EventTypeOf(st *SidecarStatus) string {
	if st == nil {
		return ""
	}
	if st.Event.Type != "" {
		return st.Event.Type
	}
	return st.State
}

// FormatMessage implements [Classifier].
func (p *Probe) FormatMessage(obs Observation) string {
	name := obs.Hostname
	if name == "" {
		name = p.cfg.Name
	}
	if name == "" {
		name = "Server"
	}

	switch obs.Status {
	case normalize.StatusOnline:
		if obs.MaxPlayers > 0 {
			return fmt.Sprintf("🟢 %s is online (%d/%d players)", name, obs.Players, obs.MaxPlayers)
		}
		return fmt.Sprintf("🟢 %s is online (%d players)", name, obs.Players)
	case normalize.StatusOffline:
		return fmt.Sprintf("🔴 %s is offline", name)
	default:
		return fmt.Sprintf("⚪ %s status is %s", name, obs.Status)
	}
}

// Close implements [Adapter].
func (p *Probe) Close() error {
	if p.ownsClient {
		p.client.Close()
	}
	return nil
}

func (p *Probe) recordRead(err error, attempts int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastRead = ReadStatus{Err: err, Attempts: attempts, At: p.now()}
	if !p.HasPollProbe() {
		p.connected = err == nil
	}
	return err
}

func (p *Probe) readSidecarRaw(ctx context.Context) ([]byte, error) {
	src := p.cfg.SidecarURL
	u, err := url.Parse(src)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		resp := p.client.Fetch(ctx, src, p.cfg.Headers, p.cfg.Timeout)
		if resp.Error != nil {
			return nil, resp.Error
		}
		if !resp.OK() {
			return nil, fmt.Errorf("sidecar returned HTTP %d", resp.StatusCode)
		}
		return resp.Body, nil
	}

	path := src
	if err == nil && u.Scheme == "file" {
		path = u.Path
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sidecar file: %w", err)
	}
	return data, nil
}

// decodeSidecar accepts updated_at as an RFC 3339 string or a unix
// timestamp in seconds or milliseconds.
func decodeSidecar(data []byte) (*SidecarStatus, time.Time, error) {
	var raw struct {
		State     string          `json:"state"`
		Event     SidecarEvent    `json:"event"`
		UpdatedAt json.RawMessage `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrMalformedSidecar, err)
	}

	st := &SidecarStatus{State: raw.State, Event: raw.Event}
	var updatedAt time.Time

	text := strings.TrimSpace(string(raw.UpdatedAt))
	switch {
	case text == "" || text == "null":
	case strings.HasPrefix(text, `"`):
		var s string
		if err := json.Unmarshal(raw.UpdatedAt, &s); err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: updated_at: %v", ErrMalformedSidecar, err)
		}
		st.UpdatedAt = s
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			updatedAt = t
		}
	default:
		n, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: updated_at: %v", ErrMalformedSidecar, err)
		}
		st.UpdatedAt = text
		updatedAt = unixTime(n)
	}

	return st, updatedAt, nil
}

func unixTime(n float64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(int64(n))
	}
	return time.Unix(int64(n), 0)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
