package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/LLIEPJIOK/room-relay/pkg/api"
	"github.com/LLIEPJIOK/room-relay/pkg/wsclient"
)

// RoomSubscription — поток данных одной комнаты. Канал Data закрывается
// при отписке или завершении соединения.
type RoomSubscription struct {
	ID     uint64
	RoomID api.RoomID

	client *Client
	events *wsclient.EventsHandle
	data   chan api.SubscriptionData
}

// SubscribeToRoom оформляет подписку и поднимает перекачку данных.
func (c *Client) SubscribeToRoom(ctx context.Context, roomID api.RoomID) (*RoomSubscription, error) {
	ret, err := c.call(ctx, api.SubscribeToRoomArgs{RoomID: roomID})
	if err != nil {
		return nil, err
	}

	if !ret.IsSuccess() {
		return nil, ret.Err
	}

	var success api.SubscribeSuccess
	if err := json.Unmarshal(ret.Success, &success); err != nil {
		return nil, fmt.Errorf("decode subscribe result: %w", err)
	}

	sub := &RoomSubscription{
		ID:     success.SubscriptionID,
		RoomID: roomID,
		client: c,
		events: c.transport.ReceiveEvents(
			wsclient.NewFilter().SubscriptionDataForID(success.SubscriptionID),
		),
		data: make(chan api.SubscriptionData, 64),
	}

	go sub.pump()

	return sub, nil
}

func (s *RoomSubscription) Data() <-chan api.SubscriptionData {
	return s.data
}

func (s *RoomSubscription) pump() {
	defer close(s.data)

	for event := range s.events.Events() {
		msg, ok := event.(wsclient.APIMessage)
		if !ok {
			continue
		}

		data, ok := msg.Message.(api.SubscriptionData)
		if !ok {
			continue
		}

		s.data <- data
	}
}

// Unsubscribe снимает подписку на сервере и останавливает перекачку.
func (s *RoomSubscription) Unsubscribe(ctx context.Context) error {
	defer s.events.Close()

	return s.client.UnsubscribeFromRoom(ctx, s.ID)
}
