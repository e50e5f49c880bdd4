// Package app — типизированный клиент протокола поверх управляемого
// соединения. Держит личность вызывающего, выдаёт монотонные nonce и
// call_id, подписывает вызовы и сводит результат к обычным Go-значениям
// и ошибкам.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/LLIEPJIOK/room-relay/pkg/api"
	"github.com/LLIEPJIOK/room-relay/pkg/wsclient"
)

const defaultCallTimeout = 30 * time.Second

var ErrCallTimeout = errors.New("method call timed out")

// Transport — то, что клиенту нужно от соединения. *wsclient.Client
// подходит как есть.
type Transport interface {
	Send(api.ClientToServerMessage) error
	AwaitConnected(timeout time.Duration) error
	AwaitEventTimeout(wsclient.Filter, time.Duration) *wsclient.AwaitHandle
	ReceiveEvents(wsclient.Filter) *wsclient.EventsHandle
}

type Config struct {
	// Key — личность клиента. Нулевой ключ генерируется на месте:
	// эфемерная личность годится для чтения публичных комнат.
	Key    *api.SigningKey
	Logger *slog.Logger

	CallTimeout time.Duration

	// now подменяется в тестах.
	now func() uint64
}

type Client struct {
	transport Transport
	key       *api.SigningKey
	logger    *slog.Logger

	callTimeout time.Duration
	now         func() uint64

	mu         sync.Mutex
	nextCallID uint64
	lastNonce  api.Nonce
}

func New(transport Transport, cfg Config) (*Client, error) {
	if cfg.Key == nil {
		key, err := api.GenerateSigningKey()
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}

		cfg.Key = key
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}

	if cfg.now == nil {
		cfg.now = func() uint64 { return uint64(time.Now().Unix()) }
	}

	return &Client{
		transport:   transport,
		key:         cfg.Key,
		logger:      cfg.Logger,
		callTimeout: cfg.CallTimeout,
		now:         cfg.now,
	}, nil
}

func (c *Client) Identity() api.Identity {
	return c.key.Identity()
}

// nextCall выдаёт пару (call_id, nonce) под мьютексом: два конкурентных
// вызова никогда не делят nonce.
func (c *Client) nextCall() (uint64, api.Nonce) {
	c.mu.Lock()
	defer c.mu.Unlock()

	callID := c.nextCallID
	c.nextCallID++

	c.lastNonce = c.lastNonce.Next(c.now())

	return callID, c.lastNonce
}

// call подписывает, отправляет и ждёт коррелированный результат.
// Подписка на результат регистрируется до отправки: ответ, обогнавший
// возврат из Send, не теряется.
func (c *Client) call(ctx context.Context, args api.MethodCallArgs) (api.MethodCallReturn, error) {
	if err := c.transport.AwaitConnected(c.callTimeout); err != nil {
		return api.MethodCallReturn{}, fmt.Errorf("wait for connection: %w", err)
	}

	callID, nonce := c.nextCall()

	signed, err := api.NewMethodCallContent(c.Identity(), nonce, args).Sign(callID, c.key)
	if err != nil {
		return api.MethodCallReturn{}, fmt.Errorf("sign call: %w", err)
	}

	handle := c.transport.AwaitEventTimeout(
		wsclient.NewFilter().CallReturnForID(callID),
		c.callTimeout,
	)

	if err := c.transport.Send(api.NewSignedCallMessage(signed)); err != nil {
		handle.Cancel()
		return api.MethodCallReturn{}, fmt.Errorf("send call: %w", err)
	}

	event, err := handle.Await(ctx)
	if err != nil {
		if errors.Is(err, wsclient.ErrAwaitTimeout) {
			return api.MethodCallReturn{}, fmt.Errorf("%w: %s", ErrCallTimeout, args.MethodName())
		}

		return api.MethodCallReturn{}, fmt.Errorf("await return: %w", err)
	}

	ret := event.(wsclient.APIMessage).Message.(api.MethodCallReturn)

	c.logger.Debug("method call completed",
		slog.String("method", args.MethodName()),
		slog.Uint64("call_id", callID),
		slog.Bool("success", ret.IsSuccess()),
	)

	return ret, nil
}

// ack сводит результат без полезной нагрузки к ошибке или nil.
func (c *Client) ack(ctx context.Context, args api.MethodCallArgs) error {
	ret, err := c.call(ctx, args)
	if err != nil {
		return err
	}

	if !ret.IsSuccess() {
		return ret.Err
	}

	return nil
}

func (c *Client) CreateRoom(ctx context.Context) (api.RoomID, error) {
	ret, err := c.call(ctx, api.CreateRoomArgs{})
	if err != nil {
		return api.RoomID{}, err
	}

	if !ret.IsSuccess() {
		return api.RoomID{}, ret.Err
	}

	var success api.CreateRoomSuccess
	if err := json.Unmarshal(ret.Success, &success); err != nil {
		return api.RoomID{}, fmt.Errorf("decode create_room result: %w", err)
	}

	return success.RoomID, nil
}

func (c *Client) UnsubscribeFromRoom(ctx context.Context, subscriptionID uint64) error {
	return c.ack(ctx, api.UnsubscribeFromRoomArgs{SubscriptionID: subscriptionID})
}

func (c *Client) AddPrivilegedPeer(ctx context.Context, roomID api.RoomID, allow api.Identity) error {
	return c.ack(ctx, api.AddPrivilegedPeerArgs{RoomID: roomID, AllowID: allow})
}

func (c *Client) BroadcastData(ctx context.Context, roomID api.RoomID, data json.RawMessage, writeHistory bool) error {
	return c.ack(ctx, api.BroadcastDataArgs{
		RoomID:       roomID,
		WriteHistory: writeHistory,
		Data:         data,
	})
}

type UnicastOptions struct {
	WriteHistory           bool
	MakeReceiverPrivileged bool
}

func (c *Client) UnicastData(ctx context.Context, roomID api.RoomID, receiver api.Identity, data json.RawMessage, opts UnicastOptions) error {
	return c.ack(ctx, api.UnicastDataArgs{
		ReceiverID:             receiver,
		RoomID:                 roomID,
		WriteHistory:           opts.WriteHistory,
		Data:                   data,
		MakeReceiverPrivileged: opts.MakeReceiverPrivileged,
	})
}

func (c *Client) DeleteData(ctx context.Context, roomID api.RoomID, sender api.Identity, nonce api.Nonce) error {
	return c.ack(ctx, api.DeleteDataArgs{
		RoomID:       roomID,
		DataSenderID: sender,
		DataNonce:    nonce,
	})
}

// HistoryEntry — сохранённое сообщение комнаты, как его отдаёт
// get_room_data_history.
type HistoryEntry struct {
	SenderID  api.Identity    `json:"sender_id"`
	Nonce     api.Nonce       `json:"nonce"`
	Data      json.RawMessage `json:"data"`
	Timestamp uint64          `json:"timestamp"`
}

func (c *Client) GetRoomDataHistory(ctx context.Context, roomID api.RoomID, fromTimestamp uint64) ([]HistoryEntry, error) {
	ret, err := c.call(ctx, api.GetRoomDataHistoryArgs{RoomID: roomID, FromTimestamp: fromTimestamp})
	if err != nil {
		return nil, err
	}

	if !ret.IsSuccess() {
		return nil, ret.Err
	}

	var success struct {
		DataHistory []HistoryEntry `json:"data_history"`
	}
	if err := json.Unmarshal(ret.Success, &success); err != nil {
		return nil, fmt.Errorf("decode data history: %w", err)
	}

	return success.DataHistory, nil
}
