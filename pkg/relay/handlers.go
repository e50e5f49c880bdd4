package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/LLIEPJIOK/room-relay/pkg/api"
	"github.com/LLIEPJIOK/room-relay/pkg/relay/roomapi"
)

// historySuccess — полезная нагрузка успешного get_room_data_history.
type historySuccess struct {
	DataHistory []roomapi.HistoryEntry `json:"data_history"`
}

// dispatch исполняет проверенный вызов. Возвращённое значение
// сериализуется в return_data; nil превращается в JSON null (Ack).
// Булевы ответы комнат намеренно не доходят до клиента: наружу уходит
// только Ack, чтобы не раскрывать существование комнат и прав.
func (s *session) dispatch(ctx context.Context, call *api.SignedMethodCall) (any, error) {
	common := call.SignedCall.Call.Common
	rooms := s.server.cfg.Rooms

	switch args := call.SignedCall.Call.Args.(type) {
	case api.CreateRoomArgs:
		return s.createRoom(ctx, common.CallerID)

	case api.SubscribeToRoomArgs:
		return s.subscribeToRoom(ctx, common.CallerID, args.RoomID)

	case api.UnsubscribeFromRoomArgs:
		// Подписка локальна для соединения; незнакомый идентификатор
		// неотличим от уже закрытого.
		if sub := s.removeSubscription(args.SubscriptionID); sub != nil {
			sub.Close()
		}

		return nil, nil

	case api.AddPrivilegedPeerArgs:
		if _, err := rooms.AddPrivilegedPeer(ctx, args.RoomID, common.CallerID, args.AllowID); err != nil {
			return nil, fmt.Errorf("add privileged peer: %w", err)
		}

		return nil, nil

	case api.GetRoomDataHistoryArgs:
		history, err := rooms.GetDataHistory(ctx, args.RoomID, common.CallerID, args.FromTimestamp)
		if err != nil {
			return nil, fmt.Errorf("get data history: %w", err)
		}

		return historySuccess{DataHistory: history}, nil

	case api.DeleteDataArgs:
		if _, err := rooms.DeleteData(ctx, args.RoomID, common.CallerID, args.DataSenderID, args.DataNonce); err != nil {
			return nil, fmt.Errorf("delete data: %w", err)
		}

		return nil, nil

	case api.BroadcastDataArgs:
		_, err := rooms.BroadcastData(ctx, args.RoomID, roomapi.BroadcastRequest{
			SenderID:     common.CallerID,
			Nonce:        common.Nonce,
			Data:         args.Data,
			WriteHistory: args.WriteHistory,
		})
		if err != nil {
			return nil, fmt.Errorf("broadcast data: %w", err)
		}

		return nil, nil

	case api.UnicastDataArgs:
		_, err := rooms.UnicastData(ctx, args.RoomID, roomapi.UnicastRequest{
			SenderID:               common.CallerID,
			ReceiverID:             args.ReceiverID,
			Nonce:                  common.Nonce,
			Data:                   args.Data,
			WriteHistory:           args.WriteHistory,
			MakeReceiverPrivileged: args.MakeReceiverPrivileged,
		})
		if err != nil {
			return nil, fmt.Errorf("unicast data: %w", err)
		}

		return nil, nil

	default:
		return nil, fmt.Errorf("unhandled method %q", call.SignedCall.Call.Args.MethodName())
	}
}

func (s *session) subscribeToRoom(ctx context.Context, caller api.Identity, roomID api.RoomID) (any, error) {
	sub, err := s.server.cfg.Rooms.Subscribe(ctx, roomID, caller)
	if err != nil {
		return nil, fmt.Errorf("subscribe to room: %w", err)
	}

	if !s.addSubscription(sub) {
		sub.Close()
		return nil, fmt.Errorf("session already closed")
	}

	go s.forwardSubscription(sub)

	return api.SubscribeSuccess{SubscriptionID: sub.ID}, nil
}

// forwardSubscription перекачивает данные комнаты в клиентское
// соединение до закрытия любой из сторон.
func (s *session) forwardSubscription(sub *roomapi.Subscription) {
	defer s.removeSubscription(sub.ID)

	for {
		event, err := sub.Next()
		if err != nil {
			s.logger.Debug("room subscription ended",
				slog.Uint64("subscription_id", sub.ID),
				slog.Any("error", err),
			)

			return
		}

		switch v := event.(type) {
		case roomapi.RoomClosed:
			s.logger.Debug("room closed the subscription", slog.Uint64("subscription_id", sub.ID))
			return
		case roomapi.RoomData:
			s.send(api.SubscriptionData{
				SubscriptionID: sub.ID,
				RoomID:         sub.RoomID,
				SenderID:       v.SenderID,
				Nonce:          v.Nonce,
				Data:           v.Data,
			})
		}
	}
}
