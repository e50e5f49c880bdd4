package api_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/LLIEPJIOK/room-relay/pkg/api"
)

func TestEncodeClientMessage_Ping(t *testing.T) {
	data, err := api.EncodeClientMessage(api.Ping{})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	if string(data) != `{"message_type":"ping"}` {
		t.Errorf("unexpected ping wire form: %s", data)
	}

	msg, err := api.ParseClientMessage(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if _, ok := msg.(api.Ping); !ok {
		t.Errorf("expected Ping, got %T", msg)
	}
}

func TestClientMessage_SignedCallRoundTrip(t *testing.T) {
	key := newTestKey(t)
	signed := signTestCall(t, key, 12, 1700000000)

	data, err := api.EncodeClientMessage(api.NewSignedCallMessage(signed))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	if !strings.Contains(string(data), `"message_type":"signed_method_call"`) {
		t.Errorf("missing discriminator: %s", data)
	}

	msg, err := api.ParseClientMessage(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	call, ok := msg.(api.SignedCallMessage)
	if !ok {
		t.Fatalf("expected SignedCallMessage, got %T", msg)
	}

	if call.Call.Full == nil {
		t.Fatal("expected full call after round trip")
	}

	if call.Call.Full.CallID != 12 {
		t.Errorf("call id mismatch: %d", call.Call.Full.CallID)
	}

	if err := call.Call.Full.ValidateSignature(); err != nil {
		t.Errorf("signature must survive the envelope: %v", err)
	}
}

func TestParseClientMessage_UnknownType(t *testing.T) {
	_, err := api.ParseClientMessage([]byte(`{"message_type":"teapot"}`))
	if !errors.Is(err, api.ErrUnknownMessageType) {
		t.Errorf("expected ErrUnknownMessageType, got %v", err)
	}
}

func TestServerMessage_PongAndInfo(t *testing.T) {
	data, err := api.EncodeServerMessage(api.Pong{})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	if string(data) != `{"message_type":"pong"}` {
		t.Errorf("unexpected pong wire form: %s", data)
	}

	data, err = api.EncodeServerMessage(api.Info{Text: "hello"})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	if string(data) != `{"message_type":"info","message_content":"hello"}` {
		t.Errorf("unexpected info wire form: %s", data)
	}

	msg, err := api.ParseServerMessage(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	info, ok := msg.(api.Info)
	if !ok || info.Text != "hello" {
		t.Errorf("expected Info{hello}, got %#v", msg)
	}
}

func TestServerMessage_SuccessReturnRoundTrip(t *testing.T) {
	room := mustRoomID(t, "KIRAAA")

	ret, err := api.NewSuccessReturn(3, api.CreateRoomSuccess{RoomID: room})
	if err != nil {
		t.Fatalf("build return failed: %v", err)
	}

	data, err := api.EncodeServerMessage(ret)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	for _, want := range []string{`"return_type":"success"`, `"call_id":3`, `"room_id":"KIRAAA"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("wire form misses %s: %s", want, data)
		}
	}

	msg, err := api.ParseServerMessage(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	back, ok := msg.(api.MethodCallReturn)
	if !ok {
		t.Fatalf("expected MethodCallReturn, got %T", msg)
	}

	if !back.IsSuccess() {
		t.Fatal("expected success return")
	}

	var success api.CreateRoomSuccess
	if err := json.Unmarshal(back.Success, &success); err != nil {
		t.Fatalf("decode success payload: %v", err)
	}

	if success.RoomID != room {
		t.Errorf("room id mismatch: %v", success.RoomID)
	}
}

func TestServerMessage_ErrorReturnCarriesDefaultMessage(t *testing.T) {
	ret := api.NewErrorReturn(8, api.ErrorInvalidSignature.WithDefaultMessage())

	data, err := api.EncodeServerMessage(ret)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	for _, want := range []string{`"return_type":"error"`, `"error_id":"invalid_signature"`, "was not signed correctly"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("wire form misses %s: %s", want, data)
		}
	}

	msg, err := api.ParseServerMessage(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	back, ok := msg.(api.MethodCallReturn)
	if !ok {
		t.Fatalf("expected MethodCallReturn, got %T", msg)
	}

	if back.IsSuccess() || back.Err.ErrorID != api.ErrorInvalidSignature {
		t.Errorf("unexpected return: %#v", back)
	}
}

func TestServerMessage_SubscriptionDataRoundTrip(t *testing.T) {
	key := newTestKey(t)

	sub := api.SubscriptionData{
		SubscriptionID: 4,
		RoomID:         mustRoomID(t, "ABCDEF"),
		SenderID:       key.Identity(),
		Nonce:          api.Nonce{Counter: 1, Timestamp: 99},
		Data:           json.RawMessage(`{"cipher_type":"plain","plain_text":"hi"}`),
	}

	data, err := api.EncodeServerMessage(sub)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	msg, err := api.ParseServerMessage(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	back, ok := msg.(api.SubscriptionData)
	if !ok {
		t.Fatalf("expected SubscriptionData, got %T", msg)
	}

	if back.SubscriptionID != 4 || back.RoomID != sub.RoomID || !back.SenderID.Equal(sub.SenderID) {
		t.Errorf("subscription data mismatch: %#v", back)
	}

	if string(back.Data) != string(sub.Data) {
		t.Error("opaque payload must pass through untouched")
	}
}

func TestIdentity_ParseErrors(t *testing.T) {
	if _, err := api.ParseIdentity("!!!"); !errors.Is(err, api.ErrKeyBadBase64) {
		t.Errorf("expected ErrKeyBadBase64, got %v", err)
	}

	// 33 валидных base64-байта, но не точка кривой.
	bogus := strings.Repeat("A", 44)
	if _, err := api.ParseIdentity(bogus); !errors.Is(err, api.ErrKeyBadPoint) {
		t.Errorf("expected ErrKeyBadPoint, got %v", err)
	}
}

func TestSignature_ParseErrors(t *testing.T) {
	if _, err := api.ParseSignature("%%%"); !errors.Is(err, api.ErrSignatureBadBase64) {
		t.Errorf("expected ErrSignatureBadBase64, got %v", err)
	}

	short := "AAAA"
	if _, err := api.ParseSignature(short); !errors.Is(err, api.ErrSignatureBadLength) {
		t.Errorf("expected ErrSignatureBadLength, got %v", err)
	}
}
