package wsclient

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

type socketEventKind int

const (
	sockConnected socketEventKind = iota
	sockReconnecting
	sockText
	sockEnded
)

type socketEvent struct {
	kind           socketEventKind
	retryAfterSecs uint64
	text           []byte
}

// socketWrap превращает нестабильное физическое соединение в бесконечный
// поток событий: подключились, потеряли, получили кадр. Владелец зовёт
// nextEvent в цикле из одной горутины; end закрывается снаружи для
// завершения.
type socketWrap struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger

	idleTimeout  time.Duration
	backoffStart time.Duration
	backoffMax   time.Duration

	conn       *websocket.Conn
	retryAfter time.Duration
	finished   bool
	end        <-chan struct{}
}

func newSocketWrap(cfg Config, end <-chan struct{}) *socketWrap {
	return &socketWrap{
		url: cfg.URL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.DialTimeout,
			TLSClientConfig:  cfg.TLS,
		},
		logger:       cfg.Logger,
		idleTimeout:  cfg.IdleTimeout,
		backoffStart: cfg.BackoffStart,
		backoffMax:   cfg.BackoffMax,
		end:          end,
	}
}

// nextRetryAfter удваивает задержку до потолка. Нулевая текущая задержка
// означает первую неудачу и даёт стартовое значение.
func nextRetryAfter(current, start, max time.Duration) time.Duration {
	if current <= 0 {
		return start
	}

	next := current * 2
	if next > max {
		return max
	}

	return next
}

func (w *socketWrap) nextEvent() socketEvent {
	if w.finished {
		return socketEvent{kind: sockEnded}
	}

	if w.conn != nil {
		return w.readFrame()
	}

	return w.connect()
}

func (w *socketWrap) readFrame() socketEvent {
	_ = w.conn.SetReadDeadline(time.Now().Add(w.idleTimeout))

	_, data, err := w.conn.ReadMessage()
	if err == nil {
		return socketEvent{kind: sockText, text: data}
	}

	w.dropConn()

	select {
	case <-w.end:
		w.finished = true
		return socketEvent{kind: sockEnded}
	default:
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		w.logger.Debug("websocket closed cleanly")
		w.finished = true

		return socketEvent{kind: sockEnded}
	}

	w.logger.Debug("websocket connection lost", slog.Any("error", err))

	return socketEvent{kind: sockReconnecting, retryAfterSecs: uint64(w.retryAfter / time.Second)}
}

func (w *socketWrap) connect() socketEvent {
	// Первая попытка идёт немедленно; задержка перед последующими
	// удваивается после каждого ожидания.
	if w.retryAfter > 0 {
		timer := time.NewTimer(w.retryAfter)

		select {
		case <-timer.C:
		case <-w.end:
			timer.Stop()
			w.finished = true

			return socketEvent{kind: sockEnded}
		}

		w.retryAfter = nextRetryAfter(w.retryAfter, w.backoffStart, w.backoffMax)
	} else {
		w.retryAfter = w.backoffStart
	}

	conn, resp, err := w.dialer.Dial(w.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	if err != nil {
		select {
		case <-w.end:
			w.finished = true
			return socketEvent{kind: sockEnded}
		default:
		}

		w.logger.Debug("websocket dial failed",
			slog.String("url", w.url),
			slog.Any("error", err),
		)

		return socketEvent{kind: sockReconnecting, retryAfterSecs: uint64(w.retryAfter / time.Second)}
	}

	w.conn = conn
	w.retryAfter = 0

	w.logger.Debug("websocket connected", slog.String("url", w.url))

	return socketEvent{kind: sockConnected}
}

func (w *socketWrap) dropConn() {
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
}
