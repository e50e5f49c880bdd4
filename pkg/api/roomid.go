package api

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// RoomIDSpace — количество различимых идентификаторов комнат: 26^6.
const RoomIDSpace uint64 = 26 * 26 * 26 * 26 * 26 * 26

const roomIDLength = 6

var (
	ErrRoomIDTooShort = errors.New("room id too short")
	ErrRoomIDTooLong  = errors.New("room id too long")
	ErrRoomIDBadChar  = errors.New("room id contains invalid characters")
	ErrRoomIDRange    = errors.New("room id out of range")
)

// RoomID — целое из [0, 26^6), биективно отображаемое в строку из шести
// заглавных латинских букв (base-26, старший разряд первым, 'A' — ноль).
type RoomID struct {
	value uint64
}

// NewRoomID отклоняет значения вне диапазона: молчаливое усечение по
// модулю недопустимо ни в одном направлении.
func NewRoomID(value uint64) (RoomID, error) {
	if value >= RoomIDSpace {
		return RoomID{}, ErrRoomIDRange
	}

	return RoomID{value: value}, nil
}

func (id RoomID) Int() uint64 {
	return id.value
}

func (id RoomID) String() string {
	var out [roomIDLength]byte

	value := id.value
	for i := roomIDLength - 1; i >= 0; i-- {
		out[i] = byte('A' + value%26)
		value /= 26
	}

	return string(out[:])
}

// ParseRoomID принимает и строчные буквы, канонизируя их в заглавные.
func ParseRoomID(s string) (RoomID, error) {
	if len(s) < roomIDLength {
		return RoomID{}, ErrRoomIDTooShort
	}

	if len(s) > roomIDLength {
		return RoomID{}, ErrRoomIDTooLong
	}

	var value uint64
	for i := 0; i < roomIDLength; i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}

		if c < 'A' || c > 'Z' {
			return RoomID{}, ErrRoomIDBadChar
		}

		value = value*26 + uint64(c-'A')
	}

	return RoomID{value: value}, nil
}

// RandomRoomID выбирает идентификатор равномерно из [0, 26^6) методом
// отбрасывания. Отказ источника энтропии — единственная невосстановимая
// ошибка в этом пакете.
func RandomRoomID(random io.Reader) (RoomID, error) {
	// 26^6 < 2^32, поэтому достаточно четырёх байт на попытку.
	limit := (uint64(1) << 32) / RoomIDSpace * RoomIDSpace

	var buf [4]byte
	for {
		if err := readRandom(random, buf[:]); err != nil {
			return RoomID{}, fmt.Errorf("read entropy: %w", err)
		}

		value := uint64(binary.BigEndian.Uint32(buf[:]))
		if value >= limit {
			continue
		}

		return RoomID{value: value % RoomIDSpace}, nil
	}
}

func (id RoomID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *RoomID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("room id must be a string: %w", err)
	}

	parsed, err := ParseRoomID(s)
	if err != nil {
		return err
	}

	*id = parsed

	return nil
}
