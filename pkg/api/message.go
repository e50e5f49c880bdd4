package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	MessageTypePing             = "ping"
	MessageTypePong             = "pong"
	MessageTypeSignedMethodCall = "signed_method_call"
	MessageTypeMethodCallReturn = "method_call_return"
	MessageTypeSubscriptionData = "subscription_data"
	MessageTypeInfo             = "info"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMissingContent     = errors.New("message content is missing")
)

// envelope — внешний конверт каждого сообщения на проводе.
type envelope struct {
	MessageType    string          `json:"message_type"`
	MessageContent json.RawMessage `json:"message_content,omitempty"`
}

// ClientToServerMessage — закрытое множество входящих сообщений.
type ClientToServerMessage interface {
	clientMessageType() string
}

type Ping struct{}

func (Ping) clientMessageType() string { return MessageTypePing }

// SignedCallMessage оборачивает полный либо частичный подписанный вызов.
type SignedCallMessage struct {
	Call SignedMethodCallOrPartial
}

func (SignedCallMessage) clientMessageType() string { return MessageTypeSignedMethodCall }

func NewSignedCallMessage(call *SignedMethodCall) SignedCallMessage {
	return SignedCallMessage{Call: SignedMethodCallOrPartial{Full: call}}
}

func EncodeClientMessage(m ClientToServerMessage) ([]byte, error) {
	env := envelope{MessageType: m.clientMessageType()}

	if sc, ok := m.(SignedCallMessage); ok {
		raw, err := json.Marshal(sc.Call)
		if err != nil {
			return nil, fmt.Errorf("marshal signed call: %w", err)
		}

		env.MessageContent = raw
	}

	return json.Marshal(env)
}

func ParseClientMessage(data []byte) (ClientToServerMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	switch env.MessageType {
	case MessageTypePing:
		return Ping{}, nil
	case MessageTypeSignedMethodCall:
		if env.MessageContent == nil {
			return nil, ErrMissingContent
		}

		var call SignedMethodCallOrPartial
		if err := json.Unmarshal(env.MessageContent, &call); err != nil {
			return nil, err
		}

		return SignedCallMessage{Call: call}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.MessageType)
	}
}

// ServerToClientMessage — закрытое множество исходящих сообщений.
type ServerToClientMessage interface {
	serverMessageType() string
}

type Pong struct{}

func (Pong) serverMessageType() string { return MessageTypePong }

type Info struct {
	Text string
}

func (Info) serverMessageType() string { return MessageTypeInfo }

func (MethodCallReturn) serverMessageType() string { return MessageTypeMethodCallReturn }

func (SubscriptionData) serverMessageType() string { return MessageTypeSubscriptionData }

// SubscriptionData приходит асинхронно, вне связи с конкретным вызовом,
// но несёт достаточно полей для клиентской дедупликации и внешней
// расшифровки полезной нагрузки.
type SubscriptionData struct {
	SubscriptionID uint64          `json:"subscription_id"`
	RoomID         RoomID          `json:"room_id"`
	SenderID       Identity        `json:"sender_id"`
	Nonce          Nonce           `json:"nonce"`
	Data           json.RawMessage `json:"data"`
}

func EncodeServerMessage(m ServerToClientMessage) ([]byte, error) {
	env := envelope{MessageType: m.serverMessageType()}

	var (
		content any
		has     bool
	)

	switch v := m.(type) {
	case Pong:
	case Info:
		content, has = v.Text, true
	case MethodCallReturn:
		content, has = v, true
	case SubscriptionData:
		content, has = v, true
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessageType, m)
	}

	if has {
		raw, err := json.Marshal(content)
		if err != nil {
			return nil, fmt.Errorf("marshal message content: %w", err)
		}

		env.MessageContent = raw
	}

	return json.Marshal(env)
}

func ParseServerMessage(data []byte) (ServerToClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	switch env.MessageType {
	case MessageTypePong:
		return Pong{}, nil
	case MessageTypeInfo:
		var text string
		if err := json.Unmarshal(env.MessageContent, &text); err != nil {
			return nil, err
		}

		return Info{Text: text}, nil
	case MessageTypeMethodCallReturn:
		var ret MethodCallReturn
		if err := json.Unmarshal(env.MessageContent, &ret); err != nil {
			return nil, err
		}

		return ret, nil
	case MessageTypeSubscriptionData:
		var sub SubscriptionData
		if err := json.Unmarshal(env.MessageContent, &sub); err != nil {
			return nil, err
		}

		return sub, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.MessageType)
	}
}
