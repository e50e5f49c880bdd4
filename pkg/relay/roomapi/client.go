package roomapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LLIEPJIOK/room-relay/pkg/api"
)

var (
	ErrUnexpectedStatus  = errors.New("unexpected status from room actor")
	ErrNoSubscriptionID  = errors.New("room actor did not provide a subscription id")
	ErrSubscriptionEnded = errors.New("room subscription ended")
)

type Config struct {
	// BaseURL — корень сервиса комнат, например http://rooms:8081.
	BaseURL string
	Logger  *slog.Logger

	RequestTimeout time.Duration
	DialTimeout    time.Duration
}

// Client ходит к акторам комнат. Безопасен для конкурентного
// использования.
type Client struct {
	baseURL string
	httpc   *http.Client
	dialer  *websocket.Dialer
	logger  *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpc:   &http.Client{Timeout: cfg.RequestTimeout},
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		logger:  cfg.Logger,
	}
}

func (c *Client) roomURL(roomID api.RoomID) string {
	return c.baseURL + "/rooms/" + roomID.String()
}

// Initialise просит актор занять комнату под начального участника.
// Ложный ответ означает, что комната уже существует.
func (c *Client) Initialise(ctx context.Context, roomID api.RoomID, initialPeer api.Identity) (bool, error) {
	return c.postBool(ctx, roomID, initialiseMessage{
		MessageType:   toRoomInitialise,
		InitialPeerID: initialPeer,
	})
}

func (c *Client) AddPrivilegedPeer(ctx context.Context, roomID api.RoomID, adder, added api.Identity) (bool, error) {
	return c.postBool(ctx, roomID, addPrivilegedPeerMessage{
		MessageType: toRoomAddPrivilegedPeer,
		AdderID:     adder,
		AddedID:     added,
	})
}

// Delete удаляет комнату. Нулевой deleter означает административное
// удаление без проверки прав.
func (c *Client) Delete(ctx context.Context, roomID api.RoomID, deleter *api.Identity) (bool, error) {
	return c.postBool(ctx, roomID, deleteMessage{
		MessageType: toRoomDelete,
		DeleterID:   deleter,
	})
}

type BroadcastRequest struct {
	SenderID     api.Identity
	Nonce        api.Nonce
	Data         json.RawMessage
	WriteHistory bool
}

func (c *Client) BroadcastData(ctx context.Context, roomID api.RoomID, req BroadcastRequest) (bool, error) {
	return c.postBool(ctx, roomID, broadcastDataMessage{
		MessageType:  toRoomBroadcastData,
		Data:         req.Data,
		SenderID:     req.SenderID,
		Nonce:        req.Nonce,
		WriteHistory: req.WriteHistory,
	})
}

type UnicastRequest struct {
	SenderID               api.Identity
	ReceiverID             api.Identity
	Nonce                  api.Nonce
	Data                   json.RawMessage
	WriteHistory           bool
	MakeReceiverPrivileged bool
}

func (c *Client) UnicastData(ctx context.Context, roomID api.RoomID, req UnicastRequest) (bool, error) {
	return c.postBool(ctx, roomID, unicastDataMessage{
		MessageType:            toRoomUnicastData,
		Data:                   req.Data,
		SenderID:               req.SenderID,
		ReceiverID:             req.ReceiverID,
		Nonce:                  req.Nonce,
		WriteHistory:           req.WriteHistory,
		MakeReceiverPrivileged: req.MakeReceiverPrivileged,
	})
}

func (c *Client) DeleteData(ctx context.Context, roomID api.RoomID, deleter, dataSender api.Identity, dataNonce api.Nonce) (bool, error) {
	return c.postBool(ctx, roomID, deleteDataMessage{
		MessageType:  toRoomDeleteData,
		DeleterID:    deleter,
		DataSenderID: dataSender,
		DataNonce:    dataNonce,
	})
}

// GetDataHistory возвращает сохранённые сообщения комнаты начиная с
// указанной метки времени.
func (c *Client) GetDataHistory(ctx context.Context, roomID api.RoomID, requester api.Identity, fromTimestamp uint64) ([]HistoryEntry, error) {
	resp, err := c.post(ctx, roomID, getDataHistoryMessage{
		MessageType:   toRoomGetDataHistory,
		RequesterID:   requester,
		FromTimestamp: fromTimestamp,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var history []HistoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	return history, nil
}

// Subscribe повышает запрос до WebSocket и возвращает подписку.
// Идентификатор подписки комната отдаёт заголовком Subscription-Id;
// если заголовок потерялся на пути через прокси, используется первый
// кадр subscription_id.
func (c *Client) Subscribe(ctx context.Context, roomID api.RoomID, subscriber api.Identity) (*Subscription, error) {
	wsURL := httpToWS(c.roomURL(roomID)) + "/subscribe"

	header := http.Header{}
	header.Set("Subscriber-Id", subscriber.String())

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial room %s: %w", roomID, err)
	}

	sub := &Subscription{
		RoomID: roomID,
		conn:   conn,
		logger: c.logger,
	}

	if resp != nil {
		if raw := resp.Header.Get(subscriptionIDHeaderName); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				conn.Close()
				return nil, fmt.Errorf("bad %s header %q: %w", subscriptionIDHeaderName, raw, err)
			}

			sub.ID = id

			return sub, nil
		}
	}

	id, err := sub.awaitSubscriptionID()
	if err != nil {
		conn.Close()
		return nil, err
	}

	sub.ID = id

	return sub, nil
}

func (c *Client) post(ctx context.Context, roomID api.RoomID, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal room message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.roomURL(roomID), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build room request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("room request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	return resp, nil
}

func (c *Client) postBool(ctx context.Context, roomID api.RoomID, payload any) (bool, error) {
	resp, err := c.post(ctx, roomID, payload)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	var ok bool
	if err := json.NewDecoder(resp.Body).Decode(&ok); err != nil {
		return false, fmt.Errorf("decode room reply: %w", err)
	}

	return ok, nil
}

func httpToWS(url string) string {
	switch {
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	default:
		return url
	}
}
