package push

import (
	"context"
	"encoding/json"
	"testing"
)

// recordingHandler captures payloads and answers with a fixed result.
type recordingHandler struct {
	got []Payload
}

func (h *recordingHandler) HandlePush(ctx context.Context, p Payload) Result {
	h.got = append(h.got, p)
	return Result{OK: true, Sent: []string{"started"}}
}

func TestNATSSubscriber_HandleMessage(t *testing.T) {
	h := &recordingHandler{}
	s := NewNATSSubscriber(NATSConfig{Subject: "pulsewatch.push"}, h, testLogger())

	out := s.handleMessage(context.Background(), []byte(`{"entity_id":"main","event":"resourceStarted","updated_at":1767225600,"players":3}`))

	var res Result
	if err := json.Unmarshal(out, &res); err != nil {
		t.Fatalf("reply is not JSON: %v", err)
	}
	if !res.OK || len(res.Sent) != 1 {
		t.Errorf("reply = %+v", res)
	}
	if len(h.got) != 1 {
		t.Fatalf("handler called %d times, want 1", len(h.got))
	}
	p := h.got[0]
	if p.EntityID != "main" || p.UpdatedAt != "1767225600" || p.Players == nil || *p.Players != 3 {
		t.Errorf("decoded payload = %+v", p)
	}
}

func TestNATSSubscriber_MalformedMessage(t *testing.T) {
	h := &recordingHandler{}
	s := NewNATSSubscriber(NATSConfig{}, h, nil)

	var res Result
	if err := json.Unmarshal(s.handleMessage(context.Background(), []byte(`{"entity_id":`)), &res); err != nil {
		t.Fatalf("reply is not JSON: %v", err)
	}
	if res.OK || res.Error != ErrCodeInvalidPayload {
		t.Errorf("reply = %+v, want invalid_payload", res)
	}
	if len(h.got) != 0 {
		t.Error("malformed message must not reach the handler")
	}
}

func TestNATSSubscriber_StopWithoutStart(t *testing.T) {
	s := NewNATSSubscriber(NATSConfig{}, &recordingHandler{}, nil)
	s.Stop()
	s.Stop()
}

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	tests := map[string]Timestamp{
		`"2026-05-01T10:00:00Z"`: "2026-05-01T10:00:00Z",
		`1767225600`:             "1767225600",
		`1767225600123`:          "1767225600123",
		`null`:                   "",
	}
	for in, want := range tests {
		var ts Timestamp
		if err := json.Unmarshal([]byte(in), &ts); err != nil {
			t.Errorf("Unmarshal(%s) error = %v", in, err)
			continue
		}
		if ts != want {
			t.Errorf("Unmarshal(%s) = %q, want %q", in, ts, want)
		}
	}

	var ts Timestamp
	if err := json.Unmarshal([]byte(`true`), &ts); err == nil {
		t.Error("expected error for boolean updated_at")
	}
}
