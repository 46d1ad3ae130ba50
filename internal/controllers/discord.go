package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// DiscordController posts to webhooks. Channels map a channel name (for
// example "errors") to its own webhook; unknown names use the default.
type DiscordController struct {
	client   *http.Client
	webhook  string
	channels map[string]string
}

func NewDiscordController(
	client *http.Client,
	webhook string,
	channels map[string]string,
) *DiscordController {
	return &DiscordController{
		client:   client,
		webhook:  webhook,
		channels: channels,
	}
}

func (c *DiscordController) Notify(text, channel string) error {
	webhook := c.webhook
	if w, ok := c.channels[channel]; ok && w != "" {
		webhook = w
	}
	if webhook == "" {
		return nil
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"description": text,
				"timestamp":   time.Now().Format(time.RFC3339),
			},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "discord request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord returned status: %d", resp.StatusCode)
	}

	return nil
}
