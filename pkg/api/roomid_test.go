package api_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/LLIEPJIOK/room-relay/pkg/api"
)

func TestRoomID_RenderKnownValues(t *testing.T) {
	tests := []struct {
		value uint64
		want  string
	}{
		{0, "AAAAAA"},
		{1, "AAAAAB"},
		{25, "AAAAAZ"},
		{26, "AAAABA"},
		{api.RoomIDSpace - 1, "ZZZZZZ"},
	}

	for _, tt := range tests {
		id, err := api.NewRoomID(tt.value)
		if err != nil {
			t.Fatalf("NewRoomID(%d) failed: %v", tt.value, err)
		}

		if got := id.String(); got != tt.want {
			t.Errorf("NewRoomID(%d) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestRoomID_ParseRenderRoundTrip(t *testing.T) {
	for _, s := range []string{"AAAAAA", "KIRAQT", "ZZZZZZ", "QWERTY"} {
		id, err := api.ParseRoomID(s)
		if err != nil {
			t.Fatalf("ParseRoomID(%q) failed: %v", s, err)
		}

		if got := id.String(); got != s {
			t.Errorf("render(parse(%q)) = %q", s, got)
		}
	}
}

func TestRoomID_ParseAcceptsLowercase(t *testing.T) {
	id, err := api.ParseRoomID("abcdef")
	if err != nil {
		t.Fatalf("ParseRoomID failed: %v", err)
	}

	if got := id.String(); got != "ABCDEF" {
		t.Errorf("expected canonical ABCDEF, got %q", got)
	}
}

func TestRoomID_ParseRejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"too short", "ABCDE", api.ErrRoomIDTooShort},
		{"too long", "ABCDEFG", api.ErrRoomIDTooLong},
		{"digit", "ABC1EF", api.ErrRoomIDBadChar},
		{"space", "ABC EF", api.ErrRoomIDBadChar},
		{"empty", "", api.ErrRoomIDTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := api.ParseRoomID(tt.input)
			if !errors.Is(err, tt.want) {
				t.Errorf("ParseRoomID(%q) = %v, want %v", tt.input, err, tt.want)
			}
		})
	}
}

func TestNewRoomID_RejectsOutOfRange(t *testing.T) {
	if _, err := api.NewRoomID(api.RoomIDSpace); !errors.Is(err, api.ErrRoomIDRange) {
		t.Errorf("NewRoomID(26^6) = %v, want %v", err, api.ErrRoomIDRange)
	}

	if _, err := api.NewRoomID(api.RoomIDSpace + 1); !errors.Is(err, api.ErrRoomIDRange) {
		t.Errorf("NewRoomID(26^6+1) = %v, want %v", err, api.ErrRoomIDRange)
	}
}

func TestRandomRoomID_InRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		id, err := api.RandomRoomID(rand.Reader)
		if err != nil {
			t.Fatalf("RandomRoomID failed: %v", err)
		}

		if id.Int() >= api.RoomIDSpace {
			t.Fatalf("random room id %d out of range", id.Int())
		}
	}
}

func TestRandomRoomID_EntropyFailure(t *testing.T) {
	if _, err := api.RandomRoomID(bytes.NewReader(nil)); err == nil {
		t.Error("expected error from empty entropy source")
	}
}
