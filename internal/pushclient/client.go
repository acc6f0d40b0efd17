// Package pushclient forwards results to a remote /atualizar_vagas endpoint.
package pushclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/beststop/parking-server/pkg/types"
)

// ErrRejected is returned when the remote answers without {"status":"ok"}.
var ErrRejected = errors.New("push rejected")

// Client posts free/occupied counts to a vagas API.
type Client struct {
	endpoint string
	client   *http.Client
}

type pushRequest struct {
	Livres   int `json:"livres"`
	Ocupadas int `json:"ocupadas"`
}

// New creates a client for baseURL, e.g. http://localhost:8000.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(baseURL, "/") + "/atualizar_vagas",
		client:   &http.Client{Timeout: timeout},
	}
}

// Publish implements occupancy.Publisher.
func (c *Client) Publish(ctx context.Context, r types.AggregateResult) error {
	body, err := json.Marshal(pushRequest{Livres: r.FreeCount, Ocupadas: r.OccupiedCount})
	if err != nil {
		return fmt.Errorf("marshal push: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("push to %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var ack struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &ack); err != nil || ack.Status != "ok" {
		return fmt.Errorf("%w: unexpected response %q", ErrRejected, strings.TrimSpace(string(respBody)))
	}
	return nil
}
