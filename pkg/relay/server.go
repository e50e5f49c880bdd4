package relay

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/LLIEPJIOK/room-relay/pkg/api"
	"github.com/LLIEPJIOK/room-relay/pkg/relay/peerapi"
	"github.com/LLIEPJIOK/room-relay/pkg/relay/roomapi"
)

const (
	defaultCreateRoomAttempts = 20
	defaultCallTimeout        = 30 * time.Second

	parseFailedInfoText = "A message failed to be parsed."
)

type Config struct {
	Logger *slog.Logger

	Rooms *roomapi.Client
	Peers *peerapi.Client

	// Freshness ограничивает возраст метки времени вызова.
	Freshness api.Freshness

	// CreateRoomAttempts — потолок попыток найти свободную комнату.
	CreateRoomAttempts int

	// CallTimeout ограничивает обработку одного вызова, включая
	// походы к акторам.
	CallTimeout time.Duration

	// Now и Rand подменяются в тестах.
	Now  func() uint64
	Rand io.Reader
}

func (c *Config) fillDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	if c.Freshness == (api.Freshness{}) {
		c.Freshness = api.DefaultFreshness()
	}

	if c.CreateRoomAttempts <= 0 {
		c.CreateRoomAttempts = defaultCreateRoomAttempts
	}

	if c.CallTimeout <= 0 {
		c.CallTimeout = defaultCallTimeout
	}

	if c.Now == nil {
		c.Now = func() uint64 { return uint64(time.Now().Unix()) }
	}

	if c.Rand == nil {
		c.Rand = rand.Reader
	}
}

// Server обслуживает клиентские WebSocket-соединения. Реализует
// http.Handler и вешается на любой маршрут.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(cfg Config) *Server {
	cfg.fillDefaults()

	return &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection", slog.Any("error", err))
		return
	}

	sess := &session{
		server: s,
		conn:   conn,
		logger: s.logger.With(slog.String("conn_id", uuid.NewString())),
		subs:   make(map[uint64]*roomapi.Subscription),
	}

	sess.run()
}

// session — одно клиентское соединение со своим реестром подписок.
type session struct {
	server *Server
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	subMu  sync.Mutex
	subs   map[uint64]*roomapi.Subscription
	closed bool
}

func (s *session) run() {
	s.logger.Debug("client connected")

	defer func() {
		s.closeSubscriptions()
		_ = s.conn.Close()
		s.logger.Debug("client disconnected")
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("connection lost", slog.Any("error", err))
			}

			return
		}

		// Обработка конкурентная: долгий поход к актору не должен
		// задерживать ping.
		go s.handleFrame(data)
	}
}

func (s *session) handleFrame(data []byte) {
	msg, err := api.ParseClientMessage(data)
	if err != nil {
		s.logger.Debug("failed to parse a message", slog.Any("error", err))
		s.send(api.Info{Text: parseFailedInfoText})

		return
	}

	switch v := msg.(type) {
	case api.Ping:
		s.send(api.Pong{})
	case api.SignedCallMessage:
		if v.Call.Full == nil {
			s.send(api.NewErrorReturn(v.Call.PartialCallID, api.ErrorParse.WithDefaultMessage()))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.server.cfg.CallTimeout)
		defer cancel()

		s.send(s.handleSignedCall(ctx, v.Call.Full))
	}
}

// handleSignedCall проверяет допуск и исполняет метод. Всегда
// возвращает коррелированный результат.
func (s *session) handleSignedCall(ctx context.Context, call *api.SignedMethodCall) api.MethodCallReturn {
	if err := s.admitCall(ctx, call); err != nil {
		s.logger.Debug("call admission failed", slog.Any("error", err))

		// Наружу — без подробностей.
		return api.NewErrorReturn(call.CallID, &api.MethodCallError{ErrorID: api.ErrorInvalidSignature})
	}

	result, err := s.dispatch(ctx, call)
	if err != nil {
		var methodErr *api.MethodCallError
		if errors.As(err, &methodErr) {
			return api.NewErrorReturn(call.CallID, methodErr)
		}

		s.logger.Error("internal error during method call", slog.Any("error", err))

		return api.NewErrorReturn(call.CallID, api.ErrorInternal.WithDefaultMessage())
	}

	ret, err := api.NewSuccessReturn(call.CallID, result)
	if err != nil {
		s.logger.Error("failed to encode call result", slog.Any("error", err))

		return api.NewErrorReturn(call.CallID, api.ErrorInternal.WithDefaultMessage())
	}

	return ret
}

var errAdmissionFailed = errors.New("admission check failed")

// admitCall — подпись, свежесть, одноразовость nonce. Порядок важен:
// поход к актору участника происходит только для подписанных и свежих
// вызовов, иначе актор стал бы оракулом для перебора.
func (s *session) admitCall(ctx context.Context, call *api.SignedMethodCall) error {
	if err := call.ValidateSignature(); err != nil {
		return fmt.Errorf("%w: %w", errAdmissionFailed, err)
	}

	if !call.ValidateTimestamp(s.server.cfg.Now(), s.server.cfg.Freshness) {
		return fmt.Errorf("%w: stale timestamp", errAdmissionFailed)
	}

	common := call.SignedCall.Call.Common

	used, err := s.server.cfg.Peers.CheckNonceIsUsed(ctx, common.CallerID, common.Nonce)
	if err != nil {
		return fmt.Errorf("%w: nonce check: %w", errAdmissionFailed, err)
	}

	if used {
		return fmt.Errorf("%w: nonce reuse", errAdmissionFailed)
	}

	return nil
}

// send сериализует и отправляет сообщение, не возвращая ошибок:
// умершему соединению всё равно.
func (s *session) send(msg api.ServerToClientMessage) {
	data, err := api.EncodeServerMessage(msg)
	if err != nil {
		s.logger.Error("failed to serialise a message", slog.Any("error", err))
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug("failed to send a message", slog.Any("error", err))
	}
}

func (s *session) addSubscription(sub *roomapi.Subscription) bool {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if s.closed {
		return false
	}

	s.subs[sub.ID] = sub

	return true
}

func (s *session) removeSubscription(id uint64) *roomapi.Subscription {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	sub := s.subs[id]
	delete(s.subs, id)

	return sub
}

func (s *session) closeSubscriptions() {
	s.subMu.Lock()
	subs := make([]*roomapi.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = map[uint64]*roomapi.Subscription{}
	s.closed = true
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}
