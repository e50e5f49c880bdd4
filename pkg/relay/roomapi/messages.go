package roomapi

import (
	"encoding/json"

	"github.com/LLIEPJIOK/room-relay/pkg/api"
)

const (
	toRoomInitialise        = "initialise"
	toRoomAddPrivilegedPeer = "add_privileged_peer"
	toRoomDelete            = "delete"
	toRoomBroadcastData     = "broadcast_data"
	toRoomUnicastData       = "unicast_data"
	toRoomDeleteData        = "delete_data"
	toRoomGetDataHistory    = "get_data_history"

	fromRoomClose          = "close"
	fromRoomData           = "data"
	fromRoomSubscriptionID = "subscription_id"

	subscriptionIDHeaderName = "Subscription-Id"
)

// Команды комнате несут дискриминатор прямо среди полей.
type initialiseMessage struct {
	MessageType   string       `json:"message_type"`
	InitialPeerID api.Identity `json:"initial_peer_id"`
}

type addPrivilegedPeerMessage struct {
	MessageType string       `json:"message_type"`
	AdderID     api.Identity `json:"adder_id"`
	AddedID     api.Identity `json:"added_id"`
}

type deleteMessage struct {
	MessageType string        `json:"message_type"`
	DeleterID   *api.Identity `json:"deleter_id"`
}

type broadcastDataMessage struct {
	MessageType  string          `json:"message_type"`
	Data         json.RawMessage `json:"data"`
	SenderID     api.Identity    `json:"sender_id"`
	Nonce        api.Nonce       `json:"nonce"`
	WriteHistory bool            `json:"write_history"`
}

type unicastDataMessage struct {
	MessageType            string          `json:"message_type"`
	Data                   json.RawMessage `json:"data"`
	SenderID               api.Identity    `json:"sender_id"`
	ReceiverID             api.Identity    `json:"receiver_id"`
	Nonce                  api.Nonce       `json:"nonce"`
	WriteHistory           bool            `json:"write_history"`
	MakeReceiverPrivileged bool            `json:"make_receiver_privileged"`
}

type deleteDataMessage struct {
	MessageType  string       `json:"message_type"`
	DeleterID    api.Identity `json:"deleter_id"`
	DataSenderID api.Identity `json:"data_sender_id"`
	DataNonce    api.Nonce    `json:"data_nonce"`
}

type getDataHistoryMessage struct {
	MessageType   string       `json:"message_type"`
	RequesterID   api.Identity `json:"requester_id"`
	FromTimestamp uint64       `json:"from_timestamp"`
}

// Сообщения от комнаты подписчику идут в конверте message_type +
// message_content.
type fromRoomEnvelope struct {
	MessageType    string          `json:"message_type"`
	MessageContent json.RawMessage `json:"message_content,omitempty"`
}

// RoomEvent — событие, пришедшее подписчику от комнаты.
type RoomEvent interface {
	roomEvent()
}

// RoomClosed означает, что комната закрыла подписку; переподключаться
// бессмысленно.
type RoomClosed struct{}

func (RoomClosed) roomEvent() {}

// RoomData — единица данных, разосланная или адресно отправленная в
// комнате. Payload непрозрачен для инфраструктуры.
type RoomData struct {
	SenderID api.Identity    `json:"sender_id"`
	Nonce    api.Nonce       `json:"nonce"`
	Data     json.RawMessage `json:"data"`
}

func (RoomData) roomEvent() {}

// HistoryEntry — сохранённая единица данных комнаты.
type HistoryEntry struct {
	SenderID  api.Identity    `json:"sender_id"`
	Nonce     api.Nonce       `json:"nonce"`
	Data      json.RawMessage `json:"data"`
	Timestamp uint64          `json:"timestamp"`
}
