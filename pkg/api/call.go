package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	MethodCreateRoom          = "create_room"
	MethodSubscribeToRoom     = "subscribe_to_room"
	MethodUnsubscribeFromRoom = "unsubscribe_from_room"
	MethodAddPrivilegedPeer   = "add_privileged_peer"
	MethodGetRoomDataHistory  = "get_room_data_history"
	MethodDeleteData          = "delete_data"
	MethodBroadcastData       = "broadcast_data"
	MethodUnicastData         = "unicast_data"
)

var (
	ErrUnknownMethod   = errors.New("unknown method name")
	ErrMissingCallID   = errors.New("message carries no call id")
	ErrSignedCallUnset = errors.New("signed call content is empty")
)

// MethodCallArgs — закрытое множество вариантов аргументов. Каждый вариант
// знает своё имя метода; диспетчеризация по типу обязана быть исчерпывающей.
type MethodCallArgs interface {
	MethodName() string
}

type CreateRoomArgs struct{}

func (CreateRoomArgs) MethodName() string { return MethodCreateRoom }

type SubscribeToRoomArgs struct {
	RoomID RoomID `json:"room_id"`
}

func (SubscribeToRoomArgs) MethodName() string { return MethodSubscribeToRoom }

type UnsubscribeFromRoomArgs struct {
	SubscriptionID uint64 `json:"subscription_id"`
}

func (UnsubscribeFromRoomArgs) MethodName() string { return MethodUnsubscribeFromRoom }

type AddPrivilegedPeerArgs struct {
	RoomID  RoomID   `json:"room_id"`
	AllowID Identity `json:"allow_id"`
}

func (AddPrivilegedPeerArgs) MethodName() string { return MethodAddPrivilegedPeer }

type GetRoomDataHistoryArgs struct {
	RoomID        RoomID `json:"room_id"`
	FromTimestamp uint64 `json:"from_timestamp"`
}

func (GetRoomDataHistoryArgs) MethodName() string { return MethodGetRoomDataHistory }

type DeleteDataArgs struct {
	RoomID       RoomID   `json:"room_id"`
	DataSenderID Identity `json:"data_sender_id"`
	DataNonce    Nonce    `json:"data_nonce"`
}

func (DeleteDataArgs) MethodName() string { return MethodDeleteData }

// Data остаётся непрозрачным JSON: расшифровка полезной нагрузки —
// забота внешнего слоя, не протокола.
type BroadcastDataArgs struct {
	RoomID       RoomID          `json:"room_id"`
	WriteHistory bool            `json:"write_history"`
	Data         json.RawMessage `json:"data"`
}

func (BroadcastDataArgs) MethodName() string { return MethodBroadcastData }

type UnicastDataArgs struct {
	ReceiverID             Identity        `json:"receiver_id"`
	RoomID                 RoomID          `json:"room_id"`
	WriteHistory           bool            `json:"write_history"`
	Data                   json.RawMessage `json:"data"`
	MakeReceiverPrivileged bool            `json:"make_receiver_privileged"`
}

func (UnicastDataArgs) MethodName() string { return MethodUnicastData }

// MethodCallCommonArgs присутствуют в каждом вызове независимо от варианта.
type MethodCallCommonArgs struct {
	CallerID Identity `json:"caller_id"`
	Nonce    Nonce    `json:"nonce"`
}

type MethodCallContent struct {
	Common MethodCallCommonArgs
	Args   MethodCallArgs
}

func NewMethodCallContent(callerID Identity, nonce Nonce, args MethodCallArgs) MethodCallContent {
	return MethodCallContent{
		Common: MethodCallCommonArgs{CallerID: callerID, Nonce: nonce},
		Args:   args,
	}
}

// methodCallWire фиксирует порядок полей канонической сериализации.
type methodCallWire struct {
	CallerID        Identity        `json:"caller_id"`
	Nonce           Nonce           `json:"nonce"`
	MethodName      string          `json:"method_name"`
	MethodArguments json.RawMessage `json:"method_arguments,omitempty"`
}

func (c MethodCallContent) MarshalJSON() ([]byte, error) {
	wire := methodCallWire{
		CallerID:   c.Common.CallerID,
		Nonce:      c.Common.Nonce,
		MethodName: c.Args.MethodName(),
	}

	// У create_room нет аргументов, поле опускается целиком.
	if _, ok := c.Args.(CreateRoomArgs); !ok {
		raw, err := json.Marshal(c.Args)
		if err != nil {
			return nil, fmt.Errorf("marshal method arguments: %w", err)
		}

		wire.MethodArguments = raw
	}

	return json.Marshal(wire)
}

func (c *MethodCallContent) UnmarshalJSON(data []byte) error {
	var wire methodCallWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	args, err := unmarshalArgs(wire.MethodName, wire.MethodArguments)
	if err != nil {
		return err
	}

	c.Common = MethodCallCommonArgs{CallerID: wire.CallerID, Nonce: wire.Nonce}
	c.Args = args

	return nil
}

func unmarshalArgs(methodName string, raw json.RawMessage) (MethodCallArgs, error) {
	if methodName == MethodCreateRoom {
		return CreateRoomArgs{}, nil
	}

	if raw == nil {
		return nil, fmt.Errorf("%s: missing method_arguments", methodName)
	}

	switch methodName {
	case MethodSubscribeToRoom:
		return decodeArgs[SubscribeToRoomArgs](raw)
	case MethodUnsubscribeFromRoom:
		return decodeArgs[UnsubscribeFromRoomArgs](raw)
	case MethodAddPrivilegedPeer:
		return decodeArgs[AddPrivilegedPeerArgs](raw)
	case MethodGetRoomDataHistory:
		return decodeArgs[GetRoomDataHistoryArgs](raw)
	case MethodDeleteData:
		return decodeArgs[DeleteDataArgs](raw)
	case MethodBroadcastData:
		return decodeArgs[BroadcastDataArgs](raw)
	case MethodUnicastData:
		return decodeArgs[UnicastDataArgs](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, methodName)
	}
}

func decodeArgs[T MethodCallArgs](raw json.RawMessage) (MethodCallArgs, error) {
	var args T
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}

	return args, nil
}

// MethodCall хранит канонический JSON рядом с разобранным содержимым.
// На проводе это JSON-строка; при повторной сериализации всегда
// отдаётся сохранённый текст.
type MethodCall struct {
	json string
	Call MethodCallContent
}

func NewMethodCall(content MethodCallContent) (MethodCall, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return MethodCall{}, fmt.Errorf("marshal method call: %w", err)
	}

	return MethodCall{json: string(raw), Call: content}, nil
}

func ParseMethodCall(text string) (MethodCall, error) {
	var content MethodCallContent
	if err := json.Unmarshal([]byte(text), &content); err != nil {
		return MethodCall{}, err
	}

	return MethodCall{json: text, Call: content}, nil
}

// JSON возвращает ровно те байты, над которыми стоит подпись.
func (m MethodCall) JSON() string {
	return m.json
}

func (m MethodCall) MarshalJSON() ([]byte, error) {
	if m.json == "" {
		return nil, ErrSignedCallUnset
	}

	return json.Marshal(m.json)
}

func (m *MethodCall) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("signed call must be a string: %w", err)
	}

	parsed, err := ParseMethodCall(text)
	if err != nil {
		return err
	}

	*m = parsed

	return nil
}

type SignedMethodCall struct {
	CallID     uint64     `json:"call_id"`
	SignedCall MethodCall `json:"signed_call"`
	Signature  Signature  `json:"signature"`
}

// Sign сериализует содержимое в канонический JSON один раз, подписывает
// эти байты и сохраняет строку для последующей побайтовой проверки.
func (c MethodCallContent) Sign(callID uint64, key *SigningKey) (*SignedMethodCall, error) {
	call, err := NewMethodCall(c)
	if err != nil {
		return nil, err
	}

	sig, err := key.Sign([]byte(call.JSON()))
	if err != nil {
		return nil, err
	}

	return &SignedMethodCall{CallID: callID, SignedCall: call, Signature: sig}, nil
}

// ValidateSignature проверяет подпись над сохранённой строкой JSON.
// Разобранная структура никогда не сериализуется заново: семантически
// эквивалентный, но иначе закодированный JSON не должен проходить проверку.
func (s *SignedMethodCall) ValidateSignature() error {
	if s.SignedCall.JSON() == "" {
		return ErrSignedCallUnset
	}

	return s.Signature.Verify(s.SignedCall.Call.Common.CallerID, []byte(s.SignedCall.JSON()))
}

// Freshness — допустимое окно меток времени, обе границы исключительные.
type Freshness struct {
	MaxPastSecs   uint64
	MaxFutureSecs uint64
}

func DefaultFreshness() Freshness {
	return Freshness{MaxPastSecs: 300, MaxFutureSecs: 10}
}

// ValidateTimestamp принимает метки строго внутри (now-past, now+future).
func (s *SignedMethodCall) ValidateTimestamp(now uint64, window Freshness) bool {
	ts := s.SignedCall.Call.Common.Nonce.Timestamp

	// ts > now-past переписано как ts+past > now, чтобы не уйти ниже нуля.
	return ts+window.MaxPastSecs > now && ts < now+window.MaxFutureSecs
}

// SignedMethodCallOrPartial: сообщение, не разобравшееся целиком, но
// сохранившее call_id, деградирует до частичного — сервер сможет вернуть
// коррелированный parse_error вместо молчаливого отбрасывания.
type SignedMethodCallOrPartial struct {
	Full          *SignedMethodCall
	PartialCallID uint64
}

func (p SignedMethodCallOrPartial) MarshalJSON() ([]byte, error) {
	if p.Full != nil {
		return json.Marshal(p.Full)
	}

	return json.Marshal(p.PartialCallID)
}

func (p *SignedMethodCallOrPartial) UnmarshalJSON(data []byte) error {
	var full SignedMethodCall
	if err := json.Unmarshal(data, &full); err == nil && full.SignedCall.JSON() != "" {
		p.Full = &full
		p.PartialCallID = 0

		return nil
	}

	var partial struct {
		CallID *uint64 `json:"call_id"`
	}
	if err := json.Unmarshal(data, &partial); err != nil || partial.CallID == nil {
		return ErrMissingCallID
	}

	p.Full = nil
	p.PartialCallID = *partial.CallID

	return nil
}
