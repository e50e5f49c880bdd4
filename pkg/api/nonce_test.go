package api_test

import (
	"errors"
	"testing"

	"github.com/LLIEPJIOK/room-relay/pkg/api"
)

func TestNonce_NextResetsCounterWhenTimeAdvances(t *testing.T) {
	n := api.Nonce{Counter: 41, Timestamp: 100}

	next := n.Next(101)
	if next.Counter != 0 {
		t.Errorf("expected counter reset to 0, got %d", next.Counter)
	}

	if next.Timestamp != 101 {
		t.Errorf("expected timestamp 101, got %d", next.Timestamp)
	}
}

func TestNonce_NextIncrementsCounterAtSameTime(t *testing.T) {
	n := api.Nonce{Counter: 41, Timestamp: 100}

	next := n.Next(100)
	if next.Counter != 42 {
		t.Errorf("expected counter 42, got %d", next.Counter)
	}

	if next.Timestamp != 100 {
		t.Errorf("expected timestamp 100, got %d", next.Timestamp)
	}
}

func TestNonce_Ordering(t *testing.T) {
	a := api.Nonce{Counter: 5, Timestamp: 100}
	b := api.Nonce{Counter: 0, Timestamp: 101}
	c := api.Nonce{Counter: 6, Timestamp: 100}

	if a.Compare(b) >= 0 {
		t.Error("later timestamp must order after any counter")
	}

	if a.Compare(c) >= 0 {
		t.Error("same timestamp must order by counter")
	}

	if a.Compare(a) != 0 {
		t.Error("nonce must compare equal to itself")
	}
}

func TestNonce_RoundTrip(t *testing.T) {
	n := api.Nonce{Counter: 7, Timestamp: 1700000000}

	parsed, err := api.ParseNonce(n.String())
	if err != nil {
		t.Fatalf("failed to parse rendered nonce: %v", err)
	}

	if parsed != n {
		t.Errorf("round trip mismatch: %v != %v", parsed, n)
	}
}

func TestParseNonce_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", api.ErrNonceMissingCounter},
		{"no timestamp", "12", api.ErrNonceMissingTimestamp},
		{"non-numeric counter", "x_100", api.ErrNonceBadCounter},
		{"non-numeric timestamp", "1_y", api.ErrNonceBadTimestamp},
		{"extra segments", "1_2_3", api.ErrNonceExtraSegments},
		{"negative counter", "-1_100", api.ErrNonceBadCounter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := api.ParseNonce(tt.input)
			if !errors.Is(err, tt.want) {
				t.Errorf("ParseNonce(%q) = %v, want %v", tt.input, err, tt.want)
			}
		})
	}
}

func TestNonce_JSONIsString(t *testing.T) {
	n := api.Nonce{Counter: 3, Timestamp: 50}

	data, err := n.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	if string(data) != `"3_50"` {
		t.Errorf(`expected "3_50", got %s`, data)
	}

	var back api.Nonce
	if err := back.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if back != n {
		t.Errorf("round trip mismatch: %v != %v", back, n)
	}
}
