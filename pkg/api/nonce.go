package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNonceMissingCounter   = errors.New("nonce missing counter segment")
	ErrNonceMissingTimestamp = errors.New("nonce missing timestamp segment")
	ErrNonceBadCounter       = errors.New("nonce counter is not a number")
	ErrNonceBadTimestamp     = errors.New("nonce timestamp is not a number")
	ErrNonceExtraSegments    = errors.New("nonce has too many segments")
)

// Nonce — пара (счётчик, метка времени) для защиты от повторов и полного
// упорядочивания вызовов одного подписанта. Текстовая форма "<counter>_<timestamp>".
type Nonce struct {
	Counter   uint64
	Timestamp uint64
}

func NewNonce(now uint64) Nonce {
	return Nonce{Counter: 0, Timestamp: now}
}

// Next сбрасывает счётчик, когда время ушло вперёд, иначе увеличивает его.
func (n Nonce) Next(now uint64) Nonce {
	if now > n.Timestamp {
		return Nonce{Counter: 0, Timestamp: now}
	}

	return Nonce{Counter: n.Counter + 1, Timestamp: now}
}

// Compare упорядочивает по метке времени, затем по счётчику.
func (n Nonce) Compare(other Nonce) int {
	if n.Timestamp != other.Timestamp {
		if n.Timestamp < other.Timestamp {
			return -1
		}

		return 1
	}

	if n.Counter != other.Counter {
		if n.Counter < other.Counter {
			return -1
		}

		return 1
	}

	return 0
}

func (n Nonce) String() string {
	return strconv.FormatUint(n.Counter, 10) + "_" + strconv.FormatUint(n.Timestamp, 10)
}

func ParseNonce(s string) (Nonce, error) {
	segments := strings.Split(s, "_")
	if len(segments) < 1 || segments[0] == "" {
		return Nonce{}, ErrNonceMissingCounter
	}

	if len(segments) < 2 {
		return Nonce{}, ErrNonceMissingTimestamp
	}

	if len(segments) > 2 {
		return Nonce{}, ErrNonceExtraSegments
	}

	counter, err := strconv.ParseUint(segments[0], 10, 64)
	if err != nil {
		return Nonce{}, ErrNonceBadCounter
	}

	timestamp, err := strconv.ParseUint(segments[1], 10, 64)
	if err != nil {
		return Nonce{}, ErrNonceBadTimestamp
	}

	return Nonce{Counter: counter, Timestamp: timestamp}, nil
}

func (n Nonce) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.String())
}

func (n *Nonce) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("nonce must be a string: %w", err)
	}

	parsed, err := ParseNonce(s)
	if err != nil {
		return err
	}

	*n = parsed

	return nil
}
