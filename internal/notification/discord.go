package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Devyash0601/WGAST-test/internal/properties"
)

const (
	colorRed   = 16711680
	colorGreen = 65280

	// MaxDescription is the longest description a Discord embed accepts with some headroom.
	MaxDescription = 1800
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// Discord posts pipeline events to Discord webhooks. An empty URL disables that kind of message.
type Discord struct {
	ErrorURL   string
	SuccessURL string
	Client     *http.Client
	Logger     *slog.Logger
}

// NewDiscord reads the webhook URLs from the environment.
func NewDiscord(logger *slog.Logger) *Discord {
	return &Discord{
		ErrorURL:   properties.DiscordErrorNotificationUrl(),
		SuccessURL: properties.DiscordSuccessNotificationUrl(),
		Client:     &http.Client{Timeout: 10 * time.Second},
		Logger:     logger,
	}
}

func (d *Discord) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Discord) SendError(ctx context.Context, errorMessage string) error {
	return d.send(ctx, d.ErrorURL, DiscordEmbed{
		Title:       "🚨 Error Notification",
		Description: fmt.Sprintf("WGAST pipeline\n\nAn error occurred: %s", errorMessage),
		Color:       colorRed,
	})
}

func (d *Discord) SendSuccess(ctx context.Context, successMessage string) error {
	return d.send(ctx, d.SuccessURL, DiscordEmbed{
		Title:       "✅ Success Notification",
		Description: fmt.Sprintf("WGAST pipeline\n\n%s", successMessage),
		Color:       colorGreen,
	})
}

// NotifyError sends an error message split into embed-sized parts and only logs a delivery
// failure.
func (d *Discord) NotifyError(ctx context.Context, errorMessage string) {
	for _, part := range Chunk(errorMessage, MaxDescription) {
		if err := d.SendError(ctx, part); err != nil {
			d.logger().Warn("failed to send error notification", "error", err)
			return
		}
	}
}

// NotifySuccess sends a success message split into embed-sized parts and only logs a delivery
// failure.
func (d *Discord) NotifySuccess(ctx context.Context, successMessage string) {
	for _, part := range Chunk(successMessage, MaxDescription) {
		if err := d.SendSuccess(ctx, part); err != nil {
			d.logger().Warn("failed to send success notification", "error", err)
			return
		}
	}
}

func (d *Discord) send(ctx context.Context, url string, embed DiscordEmbed) error {
	if url == "" {
		return nil
	}
	payload, err := json.Marshal(DiscordMessage{Embeds: []DiscordEmbed{embed}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode)
	}
	return nil
}

// Chunk splits message into parts of at most size bytes.
func Chunk(message string, size int) []string {
	if size <= 0 || len(message) <= size {
		return []string{message}
	}
	var parts []string
	for start := 0; start < len(message); start += size {
		end := min(start+size, len(message))
		parts = append(parts, message[start:end])
	}
	return parts
}
