package telephony

import (
	"testing"
	"time"
)

func TestDecodeEvent_StateChange(t *testing.T) {
	raw := `{"type":"ChannelStateChange","timestamp":"2026-03-01T10:00:05.123+0000",
"channel":{"id":"1700000000.42","state":"Ringing","channelvars":{"DIALER_LEAD_ID":"9"}}}`

	ev, err := DecodeEvent([]byte(raw))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ev.Type != EventStateChanged || ev.ChannelID != "1700000000.42" || ev.State != "Ringing" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Variables[VarLeadID] != "9" {
		t.Fatalf("expected channel vars")
	}
	want := time.Date(2026, 3, 1, 10, 0, 5, 123e6, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Fatalf("expected %s, got %s", want, ev.Timestamp)
	}
}

func TestDecodeEvent_Destroyed(t *testing.T) {
	raw := `{"type":"ChannelDestroyed","cause":17,"cause_txt":"User busy","channel":{"id":"c1","state":"Busy"}}`
	ev, err := DecodeEvent([]byte(raw))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ev.Type != EventDestroyed || ev.Cause != 17 || ev.CauseText != "User busy" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Fatalf("expected timestamp default")
	}
}

func TestDecodeEvent_UnknownAndInvalid(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"StasisStart","channel":{"id":"c1"}}`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ev.Type != EventUnrecognized || ev.Raw != "StasisStart" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if _, err := DecodeEvent([]byte(`{}`)); err == nil {
		t.Fatalf("expected error for missing type")
	}
	if _, err := DecodeEvent([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

func TestDiffChannels(t *testing.T) {
	now := time.Now().UTC()
	prev := map[string]Channel{
		"a": {ID: "a", State: "Ring"},
		"b": {ID: "b", State: "Up"},
		"d": {ID: "d", State: "Ringing"},
		"e": {ID: "e", State: "Busy"},
	}
	cur := map[string]Channel{
		"a": {ID: "a", State: "Up"},
		"c": {ID: "c", State: "Down"},
	}
	evs := diffChannels(prev, cur, now)

	got := map[string]CallEvent{}
	for _, ev := range evs {
		got[ev.ChannelID] = ev
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 events, got %d", len(evs))
	}
	if got["a"].Type != EventStateChanged || got["a"].State != "Up" {
		t.Fatalf("unexpected event for a: %+v", got["a"])
	}
	if got["b"].Type != EventDestroyed || got["b"].Cause != 16 {
		t.Fatalf("unexpected event for b: %+v", got["b"])
	}
	if got["c"].Type != EventStateChanged {
		t.Fatalf("unexpected event for c: %+v", got["c"])
	}
	// Vanished before answer: no answer, not normal clearing.
	if got["d"].Type != EventDestroyed || got["d"].Cause != 19 {
		t.Fatalf("unexpected event for d: %+v", got["d"])
	}
	if got["e"].Type != EventDestroyed || got["e"].Cause != 17 {
		t.Fatalf("unexpected event for e: %+v", got["e"])
	}
}

func TestParseEventBody(t *testing.T) {
	ev, err := ParseEventBody([]byte(`{"type":"Destroyed","channel_id":"c9","cause":19}`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ev.Type != EventDestroyed || ev.ChannelID != "c9" || ev.Cause != 19 {
		t.Fatalf("unexpected event: %+v", ev)
	}

	ev, err = ParseEventBody([]byte(`{"type":"ChannelStateChange","channel":{"id":"c1","state":"Up"}}`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ev.Type != EventStateChanged || ev.State != "Up" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}
