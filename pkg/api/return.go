package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	ReturnTypeSuccess = "success"
	ReturnTypeError   = "error"
)

var ErrUnknownReturnType = errors.New("unknown return type")

// ErrorID — закрытое множество кодов ошибок, видимых клиенту.
type ErrorID string

const (
	ErrorInternal         ErrorID = "internal_error"
	ErrorInvalidSignature ErrorID = "invalid_signature"
	ErrorParse            ErrorID = "parse_error"
)

func (id ErrorID) DefaultMessage() string {
	switch id {
	case ErrorInternal:
		return "An unexpected internal error occured."
	case ErrorInvalidSignature:
		return "The request was not signed correctly."
	case ErrorParse:
		return "The request could not be parsed."
	default:
		return ""
	}
}

type MethodCallError struct {
	ErrorID ErrorID `json:"error_id"`
	Message *string `json:"message,omitempty"`
}

func (e *MethodCallError) Error() string {
	if e.Message != nil {
		return string(e.ErrorID) + ": " + *e.Message
	}

	return string(e.ErrorID)
}

func (id ErrorID) WithMessage(message string) *MethodCallError {
	return &MethodCallError{ErrorID: id, Message: &message}
}

func (id ErrorID) WithDefaultMessage() *MethodCallError {
	message := id.DefaultMessage()
	if message == "" {
		return &MethodCallError{ErrorID: id}
	}

	return id.WithMessage(message)
}

// Успешные полезные нагрузки известных методов. Произвольный метод может
// вернуть любое JSON-значение; ack кодируется как null.
type CreateRoomSuccess struct {
	RoomID RoomID `json:"room_id"`
}

type SubscribeSuccess struct {
	SubscriptionID uint64 `json:"subscription_id"`
}

// Ack — возврат без полезной нагрузки.
var Ack = json.RawMessage("null")

// MethodCallReturn — ответ на один вызов, скоррелированный по call_id.
type MethodCallReturn struct {
	CallID  uint64
	Success json.RawMessage  // установлен при return_type == success
	Err     *MethodCallError // установлен при return_type == error
}

func NewSuccessReturn(callID uint64, payload any) (MethodCallReturn, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return MethodCallReturn{}, fmt.Errorf("marshal return payload: %w", err)
	}

	return MethodCallReturn{CallID: callID, Success: raw}, nil
}

func NewErrorReturn(callID uint64, callErr *MethodCallError) MethodCallReturn {
	return MethodCallReturn{CallID: callID, Err: callErr}
}

func (r MethodCallReturn) IsSuccess() bool {
	return r.Err == nil
}

type methodCallReturnWire struct {
	CallID     uint64          `json:"call_id"`
	ReturnType string          `json:"return_type"`
	ReturnData json.RawMessage `json:"return_data,omitempty"`
}

func (r MethodCallReturn) MarshalJSON() ([]byte, error) {
	wire := methodCallReturnWire{CallID: r.CallID}

	if r.Err != nil {
		raw, err := json.Marshal(r.Err)
		if err != nil {
			return nil, fmt.Errorf("marshal return error: %w", err)
		}

		wire.ReturnType = ReturnTypeError
		wire.ReturnData = raw

		return json.Marshal(wire)
	}

	wire.ReturnType = ReturnTypeSuccess
	wire.ReturnData = r.Success

	return json.Marshal(wire)
}

func (r *MethodCallReturn) UnmarshalJSON(data []byte) error {
	var wire methodCallReturnWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	switch wire.ReturnType {
	case ReturnTypeSuccess:
		*r = MethodCallReturn{CallID: wire.CallID, Success: wire.ReturnData}
	case ReturnTypeError:
		var callErr MethodCallError
		if err := json.Unmarshal(wire.ReturnData, &callErr); err != nil {
			return err
		}

		*r = MethodCallReturn{CallID: wire.CallID, Err: &callErr}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownReturnType, wire.ReturnType)
	}

	return nil
}
