package peerapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/LLIEPJIOK/room-relay/pkg/api"
	"github.com/LLIEPJIOK/room-relay/pkg/relay/peerapi"
)

func TestCheckNonceIsUsed(t *testing.T) {
	key, err := api.GenerateSigningKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	peer := key.Identity()

	var gotPath string
	var gotBody map[string]json.RawMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()

		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("bad request body: %v", err)
		}

		w.Write([]byte("true"))
	}))
	t.Cleanup(srv.Close)

	client := peerapi.New(peerapi.Config{BaseURL: srv.URL})

	used, err := client.CheckNonceIsUsed(context.Background(), peer, api.Nonce{Counter: 3, Timestamp: 99})
	if err != nil {
		t.Fatalf("check nonce: %v", err)
	}

	if !used {
		t.Error("expected true reply")
	}

	// Личность содержит символы, требующие экранирования в пути.
	want := "/peers/" + url.PathEscape(peer.String())
	if gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}

	if string(gotBody["message_type"]) != `"check_nonce_is_used"` {
		t.Errorf("unexpected discriminator: %v", gotBody)
	}

	if string(gotBody["nonce"]) != `"3_99"` {
		t.Errorf("nonce must travel as string, got %s", gotBody["nonce"])
	}
}

func TestCheckNonceIsUsed_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := peerapi.New(peerapi.Config{BaseURL: srv.URL})

	key, err := api.GenerateSigningKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	_, err = client.CheckNonceIsUsed(context.Background(), key.Identity(), api.Nonce{})
	if err == nil || !strings.Contains(err.Error(), "unexpected status") {
		t.Errorf("expected status error, got %v", err)
	}
}
