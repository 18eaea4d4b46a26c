// Package ntfy delivers push notifications through an ntfy server.
package ntfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultServer is used when no server is configured.
const DefaultServer = "https://ntfy.sh"

const defaultTimeout = 10 * time.Second

// Priority of a notification, 1 (min) to 5 (max).
type Priority int

const (
	PriorityMin Priority = iota + 1
	PriorityLow
	PriorityDefault
	PriorityHigh
	PriorityMax
)

// Action is a button attached to a notification.
type Action struct {
	Action string            `json:"action"`
	Label  string            `json:"label"`
	Clear  bool              `json:"clear,omitempty"`
	Extras map[string]string `json:"extras,omitempty"`
}

// NewBroadcastAction builds an android broadcast action button.
func NewBroadcastAction(label string, extras map[string]string) Action {
	return Action{Action: "broadcast", Label: label, Extras: extras}
}

// Notification is one message for the configured topic.
type Notification struct {
	Title    string   `json:"title,omitempty"`
	Message  string   `json:"message,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Priority Priority `json:"priority,omitempty"`
	Actions  []Action `json:"actions,omitempty"`
}

// Client posts notifications to a single ntfy topic.
type Client struct {
	server string
	topic  string
	http   *http.Client
}

func NewClient(server, topic string, timeout time.Duration) *Client {
	if server == "" {
		server = DefaultServer
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		server: server,
		topic:  topic,
		http:   &http.Client{Timeout: timeout},
	}
}

// Send publishes the notification.
func (c *Client) Send(ctx context.Context, n Notification) error {
	payload := struct {
		Topic string `json:"topic"`
		Notification
	}{Topic: c.topic, Notification: n}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned %s", resp.Status)
	}

	log.Debug().Str("topic", c.topic).Str("title", n.Title).Msg("Notification sent")
	return nil
}
