package wsclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LLIEPJIOK/room-relay/pkg/api"
)

const (
	defaultDialTimeout        = 5 * time.Second
	defaultPingInterval       = 10 * time.Second
	defaultIdleTimeout        = 30 * time.Second
	defaultBackoffStart       = 5 * time.Second
	defaultBackoffMax         = 60 * time.Second
	defaultSubscriptionBuffer = 256
)

var (
	ErrNotConnected = errors.New("websocket is not connected")
	ErrAwaitTimeout = errors.New("timed out waiting for event")
	ErrNoMoreEvents = errors.New("event stream has ended")
)

type Config struct {
	URL    string
	Logger *slog.Logger
	TLS    *tls.Config

	DialTimeout  time.Duration
	PingInterval time.Duration
	IdleTimeout  time.Duration
	BackoffStart time.Duration
	BackoffMax   time.Duration

	// SubscriptionBuffer — ёмкость канала каждой постоянной подписки.
	// Отставший получатель теряет новые события, но не блокирует
	// диспетчер.
	SubscriptionBuffer int
}

func DefaultConfig(url string) Config {
	return Config{
		URL:                url,
		Logger:             slog.Default(),
		DialTimeout:        defaultDialTimeout,
		PingInterval:       defaultPingInterval,
		IdleTimeout:        defaultIdleTimeout,
		BackoffStart:       defaultBackoffStart,
		BackoffMax:         defaultBackoffMax,
		SubscriptionBuffer: defaultSubscriptionBuffer,
	}
}

func (c *Config) fillDefaults() {
	def := DefaultConfig(c.URL)

	if c.Logger == nil {
		c.Logger = def.Logger
	}

	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}

	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}

	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}

	if c.BackoffStart <= 0 {
		c.BackoffStart = def.BackoffStart
	}

	if c.BackoffMax <= 0 {
		c.BackoffMax = def.BackoffMax
	}

	if c.SubscriptionBuffer <= 0 {
		c.SubscriptionBuffer = def.SubscriptionBuffer
	}
}

type connState int

const (
	stateReconnecting connState = iota
	stateConnected
	stateEnded
)

type subscription struct {
	id     uint64
	filter Filter
	ch     chan Event
	once   bool
}

// manager держит физическое соединение и реестр подписчиков. Фоновые
// горутины ссылаются только на manager, поэтому освобождение внешнего
// Client не мешает им корректно завершиться через end-канал.
type manager struct {
	cfg    Config
	logger *slog.Logger

	sock *socketWrap

	end     chan struct{}
	endOnce sync.Once
	done    chan struct{}

	// connMu защищает conn, writeMu сериализует записи в него.
	connMu  sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	// mu защищает state и subs; диспетчеризация идёт под ним же,
	// чтобы отмена подписки не закрыла канал под отправкой.
	mu        sync.Mutex
	state     connState
	subs      []*subscription
	nextSubID uint64
}

// Client — внешняя ручка соединения. Закрытие ручки завершает фоновые
// горутины и рассылает Ended всем подписчикам.
type Client struct {
	m *manager
}

func New(cfg Config) *Client {
	cfg.fillDefaults()

	m := &manager{
		cfg:    cfg,
		logger: cfg.Logger,
		end:    make(chan struct{}),
		done:   make(chan struct{}),
	}
	m.sock = newSocketWrap(cfg, m.end)

	go m.run()
	go m.pinger()

	return &Client{m: m}
}

// Close завершает соединение. Повторные вызовы безопасны.
func (c *Client) Close() {
	c.m.shutdown()
}

// Done закрывается после того, как все подписчики получили Ended.
func (c *Client) Done() <-chan struct{} {
	return c.m.done
}

// Send сериализует и отправляет сообщение в текущее соединение.
func (c *Client) Send(msg api.ClientToServerMessage) error {
	return c.m.send(msg)
}

// AwaitConnected блокируется до установления соединения. Возвращает
// ErrAwaitTimeout по истечении тайм-аута и ErrNoMoreEvents после
// завершения соединения; нулевой тайм-аут означает бесконечное
// ожидание.
func (c *Client) AwaitConnected(timeout time.Duration) error {
	return c.m.awaitState(stateConnected, timeout)
}

// AwaitEvent регистрирует одноразовую подписку без ограничения по
// времени. Регистрация происходит до возврата, поэтому событие,
// пришедшее между AwaitEvent и Await, не теряется.
func (c *Client) AwaitEvent(filter Filter) *AwaitHandle {
	return c.awaitEvent(filter, 0)
}

// AwaitEventTimeout — одноразовая подписка с тайм-аутом ожидания.
func (c *Client) AwaitEventTimeout(filter Filter, timeout time.Duration) *AwaitHandle {
	return c.awaitEvent(filter, timeout)
}

func (c *Client) awaitEvent(filter Filter, timeout time.Duration) *AwaitHandle {
	return &AwaitHandle{
		m:       c.m,
		sub:     c.m.register(filter, true),
		timeout: timeout,
	}
}

// ReceiveEvents регистрирует постоянную подписку.
func (c *Client) ReceiveEvents(filter Filter) *EventsHandle {
	return &EventsHandle{
		m:   c.m,
		sub: c.m.register(filter, false),
	}
}

// AwaitHandle — одноразовая подписка: первое подходящее событие
// завершает её.
type AwaitHandle struct {
	m       *manager
	sub     *subscription
	timeout time.Duration
}

func (h *AwaitHandle) Await(ctx context.Context) (Event, error) {
	defer h.Cancel()

	var timeoutCh <-chan time.Time

	if h.timeout > 0 {
		timer := time.NewTimer(h.timeout)
		defer timer.Stop()

		timeoutCh = timer.C
	}

	select {
	case event, ok := <-h.sub.ch:
		if !ok {
			return nil, ErrNoMoreEvents
		}

		return event, nil
	case <-timeoutCh:
		return nil, ErrAwaitTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel снимает подписку; после доставки или повторно — no-op.
func (h *AwaitHandle) Cancel() {
	h.m.unregister(h.sub.id)
}

// EventsHandle — постоянная подписка. Канал закрывается при Close
// либо при завершении соединения.
type EventsHandle struct {
	m   *manager
	sub *subscription
}

func (h *EventsHandle) Events() <-chan Event {
	return h.sub.ch
}

func (h *EventsHandle) Close() {
	h.m.unregister(h.sub.id)
}

func (m *manager) shutdown() {
	m.endOnce.Do(func() {
		close(m.end)

		// Разблокируем читающую горутину, если она висит в ReadMessage.
		m.connMu.Lock()
		if m.conn != nil {
			_ = m.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			_ = m.conn.Close()
		}
		m.connMu.Unlock()
	})
}

func (m *manager) run() {
	defer close(m.done)

	for {
		ev := m.sock.nextEvent()

		switch ev.kind {
		case sockConnected:
			m.setConn(m.sock.conn)
			m.dispatch(Connected{})
		case sockReconnecting:
			m.setConn(nil)
			m.dispatch(Reconnecting{RetryAfterSecs: ev.retryAfterSecs})
		case sockText:
			msg, err := api.ParseServerMessage(ev.text)
			if err != nil {
				// Незнакомые кадры не считаются ошибкой соединения.
				m.logger.Debug("dropping unparseable frame", slog.Any("error", err))
				continue
			}

			m.dispatch(APIMessage{Message: msg})
		case sockEnded:
			m.setConn(nil)
			m.dispatch(Ended{})
			m.logger.Debug("event loop finished")

			return
		}
	}
}

// pinger шлёт ping на каждом живом соединении и ждёт любой трафик в
// ответ; тишина дольше IdleTimeout обрывает соединение по дедлайну
// чтения в socketWrap.
func (m *manager) pinger() {
	for {
		if err := m.awaitState(stateConnected, 0); err != nil {
			m.logger.Debug("pinger finished")
			return
		}

		if err := m.send(api.Ping{}); err != nil && !errors.Is(err, ErrNotConnected) {
			m.logger.Debug("ping send failed", slog.Any("error", err))
		}

		err := m.awaitState(stateReconnecting, m.cfg.PingInterval)
		if errors.Is(err, ErrNoMoreEvents) {
			m.logger.Debug("pinger finished")
			return
		}
	}
}

// awaitState блокируется до перехода в указанное состояние. Нулевой
// тайм-аут означает бесконечное ожидание. Завершение соединения даёт
// ErrNoMoreEvents.
func (m *manager) awaitState(want connState, timeout time.Duration) error {
	m.mu.Lock()

	if m.state == want {
		m.mu.Unlock()
		return nil
	}

	if m.state == stateEnded {
		m.mu.Unlock()
		return ErrNoMoreEvents
	}

	filter := NewFilter().Ended()

	switch want {
	case stateConnected:
		filter = filter.Connected()
	case stateReconnecting:
		filter = filter.Reconnecting()
	}

	sub := m.registerLocked(filter, true)
	m.mu.Unlock()

	handle := &AwaitHandle{m: m, sub: sub, timeout: timeout}

	event, err := handle.Await(context.Background())
	if err != nil {
		return err
	}

	if _, ok := event.(Ended); ok && want != stateEnded {
		return ErrNoMoreEvents
	}

	return nil
}

func (m *manager) setConn(conn *websocket.Conn) {
	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()
}

func (m *manager) send(msg api.ClientToServerMessage) error {
	data, err := api.EncodeClientMessage(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	m.connMu.RLock()
	conn := m.conn
	m.connMu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	return nil
}

func (m *manager) register(filter Filter, once bool) *subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.registerLocked(filter, once)
}

func (m *manager) registerLocked(filter Filter, once bool) *subscription {
	buffer := m.cfg.SubscriptionBuffer
	if once {
		buffer = 1
	}

	sub := &subscription{
		id:     m.nextSubID,
		filter: filter,
		ch:     make(chan Event, buffer),
		once:   once,
	}
	m.nextSubID++

	// После завершения новые подписки рождаются уже закрытыми.
	if m.state == stateEnded {
		close(sub.ch)
		return sub
	}

	m.subs = append(m.subs, sub)

	return sub
}

func (m *manager) unregister(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subs {
		if sub.id != id {
			continue
		}

		last := len(m.subs) - 1
		m.subs[i] = m.subs[last]
		m.subs = m.subs[:last]

		close(sub.ch)

		return
	}
}

func (m *manager) dispatch(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch event.(type) {
	case Connected:
		m.state = stateConnected
	case Reconnecting:
		m.state = stateReconnecting
	case Ended:
		m.state = stateEnded
	}

	i := 0
	for i < len(m.subs) {
		sub := m.subs[i]
		if !sub.filter.matches(event) {
			i++
			continue
		}

		delivered := true

		select {
		case sub.ch <- event:
		default:
			delivered = false
			m.logger.Warn("subscriber too slow, dropping event")
		}

		if sub.once && delivered {
			last := len(m.subs) - 1
			m.subs[i] = m.subs[last]
			m.subs = m.subs[:last]

			close(sub.ch)

			continue
		}

		i++
	}

	if _, ok := event.(Ended); ok {
		for _, sub := range m.subs {
			close(sub.ch)
		}

		m.subs = nil
	}
}
