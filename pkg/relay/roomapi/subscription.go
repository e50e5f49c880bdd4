package roomapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LLIEPJIOK/room-relay/pkg/api"
)

const subscriptionIDWait = 5 * time.Second

// Subscription — живое WebSocket-соединение с комнатой. Next зовётся из
// одной горутины; Close можно звать откуда угодно.
type Subscription struct {
	ID     uint64
	RoomID api.RoomID

	conn   *websocket.Conn
	logger *slog.Logger

	closeOnce sync.Once
}

// awaitSubscriptionID читает кадры до первого subscription_id.
// Используется только когда заголовок рукопожатия не дошёл.
func (s *Subscription) awaitSubscriptionID() (uint64, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(subscriptionIDWait))
	defer s.conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrNoSubscriptionID, err)
		}

		var env fromRoomEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		if env.MessageType != fromRoomSubscriptionID {
			continue
		}

		var id uint64
		if err := json.Unmarshal(env.MessageContent, &id); err != nil {
			return 0, fmt.Errorf("%w: bad subscription_id frame", ErrNoSubscriptionID)
		}

		return id, nil
	}
}

// Next блокируется до следующего события комнаты. После RoomClosed или
// ошибки соединение закрыто и дальнейшие вызовы возвращают
// ErrSubscriptionEnded.
func (s *Subscription) Next() (RoomEvent, error) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.Close()
			return nil, ErrSubscriptionEnded
		}

		var env fromRoomEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Debug("dropping unparseable room frame", slog.Any("error", err))
			continue
		}

		switch env.MessageType {
		case fromRoomClose:
			s.Close()
			return RoomClosed{}, nil
		case fromRoomData:
			var msg RoomData
			if err := json.Unmarshal(env.MessageContent, &msg); err != nil {
				s.logger.Debug("dropping malformed data frame", slog.Any("error", err))
				continue
			}

			return msg, nil
		case fromRoomSubscriptionID:
			// Повторный subscription_id после рукопожатия игнорируется.
			continue
		default:
			s.logger.Debug("dropping unknown room frame", slog.String("type", env.MessageType))
		}
	}
}

func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = s.conn.Close()
	})
}
