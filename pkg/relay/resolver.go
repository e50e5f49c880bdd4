package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/LLIEPJIOK/room-relay/pkg/api"
)

// createRoom подбирает свободный шестибуквенный идентификатор: случайная
// проба, попытка занять комнату, повтор при коллизии. Потолок попыток
// защищает от вечного цикла при почти заполненном пространстве имён.
func (s *session) createRoom(ctx context.Context, caller api.Identity) (any, error) {
	cfg := s.server.cfg

	for attempt := 1; attempt <= cfg.CreateRoomAttempts; attempt++ {
		roomID, err := api.RandomRoomID(cfg.Rand)
		if err != nil {
			return nil, fmt.Errorf("draw room id: %w", err)
		}

		claimed, err := cfg.Rooms.Initialise(ctx, roomID, caller)
		if err != nil {
			return nil, fmt.Errorf("initialise room: %w", err)
		}

		if claimed {
			s.logger.Debug("room created",
				slog.String("room_id", roomID.String()),
				slog.Int("attempt", attempt),
			)

			return api.CreateRoomSuccess{RoomID: roomID}, nil
		}
	}

	return nil, fmt.Errorf("no free room id after %d attempts", s.server.cfg.CreateRoomAttempts)
}
