// Package probetest provides a scripted [probe.Adapter] for tests.
package probetest

import (
	"context"
	"sync"

	"github.com/jpalmerr/pulsewatch/internal/normalize"
	"github.com/jpalmerr/pulsewatch/internal/probe"
)

// SidecarResult is one scripted answer of [Fake.ReadSidecarStatus].
type SidecarResult struct {
	Status *probe.SidecarStatus
	Err    error
}

// Fake is a probe.Adapter whose answers are queued by the test.
//
// When a queue runs dry the last answer is repeated. Fake announces every
// sidecar status whose event type differs from the previously seen one,
// unless Announce is set.
type Fake struct {
	Poll    bool
	Sidecar bool

	// Announce overrides the default debounce when non-nil.
	Announce func(*probe.SidecarStatus) bool

	// PollPanic makes PollStatus panic with this value.
	PollPanic any

	mu           sync.Mutex
	observations []probe.Observation
	sidecar      []SidecarResult
	lastRead     probe.ReadStatus
	lastType     string
	connected    bool
	polls        int
	reads        int
	closed       int
}

var _ probe.Adapter = (*Fake)(nil)

// QueueObservation appends poll answers.
func (f *Fake) QueueObservation(obs ...probe.Observation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observations = append(f.observations, obs...)
}

// QueueStatus appends poll answers carrying only a status.
func (f *Fake) QueueStatus(statuses ...normalize.Status) {
	for _, st := range statuses {
		f.QueueObservation(probe.Observation{Status: st, InfoOK: st == normalize.StatusOnline})
	}
}

// QueueSidecar appends sidecar answers.
func (f *Fake) QueueSidecar(results ...SidecarResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sidecar = append(f.sidecar, results...)
}

func (f *Fake) HasPollProbe() bool { return f.Poll }

func (f *Fake) HasSidecar() bool { return f.Sidecar }

func (f *Fake) PollStatus(ctx context.Context) probe.Observation {
	if f.PollPanic != nil {
		panic(f.PollPanic)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	obs := probe.Observation{Status: normalize.StatusUnknown}
	if len(f.observations) > 0 {
		obs = f.observations[0]
		if len(f.observations) > 1 {
			f.observations = f.observations[1:]
		}
	}
	f.connected = obs.Status == normalize.StatusOnline
	return obs
}

func (f *Fake) ReadSidecarStatus(ctx context.Context) (*probe.SidecarStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	res := SidecarResult{Err: probe.ErrNoSidecar}
	if len(f.sidecar) > 0 {
		res = f.sidecar[0]
		if len(f.sidecar) > 1 {
			f.sidecar = f.sidecar[1:]
		}
	}
	f.lastRead = probe.ReadStatus{Err: res.Err, Attempts: 1}
	if !f.Poll {
		f.connected = res.Err == nil
	}
	return res.Status, res.Err
}

func (f *Fake) LastReadStatus() probe.ReadStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRead
}

func (f *Fake) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *Fake) ShouldAnnounce(st *probe.SidecarStatus) bool {
	if f.Announce != nil {
		return f.Announce(st)
	}
	if st == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.EventTypeOf(st)
	if t == f.lastType {
		return false
	}
	f.lastType = t
	return true
}

func (f *Fake) EventTypeOf(st *probe.SidecarStatus) string {
	if st == nil {
		return ""
	}
	if st.Event.Type != "" {
		return st.Event.Type
	}
	return st.State
}

func (f *Fake) FormatMessage(obs probe.Observation) string {
	return "server is " + obs.Status.String()
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// Polls returns how many times PollStatus ran.
func (f *Fake) Polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

// Reads returns how many times ReadSidecarStatus ran.
func (f *Fake) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// Closed returns how many times Close ran.
func (f *Fake) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
