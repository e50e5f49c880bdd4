// Package peerapi — HTTP клиент акторов участников. Актор участника
// хранит использованные nonce своей личности и отвечает на единственный
// вопрос: встречался ли такой nonce раньше. Сам факт запроса помечает
// nonce использованным.
package peerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/LLIEPJIOK/room-relay/pkg/api"
)

const toPeerCheckNonceIsUsed = "check_nonce_is_used"

var ErrUnexpectedStatus = errors.New("unexpected status from peer actor")

type checkNonceMessage struct {
	MessageType string    `json:"message_type"`
	Nonce       api.Nonce `json:"nonce"`
}

type Config struct {
	// BaseURL — корень сервиса участников, например http://peers:8082.
	BaseURL string
	Logger  *slog.Logger

	RequestTimeout time.Duration
}

type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpc:   &http.Client{Timeout: cfg.RequestTimeout},
		logger:  cfg.Logger,
	}
}

// CheckNonceIsUsed возвращает true, если nonce уже встречался у этого
// участника. Ложный ответ одновременно регистрирует nonce.
func (c *Client) CheckNonceIsUsed(ctx context.Context, peer api.Identity, nonce api.Nonce) (bool, error) {
	body, err := json.Marshal(checkNonceMessage{
		MessageType: toPeerCheckNonceIsUsed,
		Nonce:       nonce,
	})
	if err != nil {
		return false, fmt.Errorf("marshal peer message: %w", err)
	}

	peerURL := c.baseURL + "/peers/" + url.PathEscape(peer.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, peerURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build peer request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return false, fmt.Errorf("peer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var used bool
	if err := json.NewDecoder(resp.Body).Decode(&used); err != nil {
		return false, fmt.Errorf("decode peer reply: %w", err)
	}

	return used, nil
}
