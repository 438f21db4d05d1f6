package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lake-guardian/lake-rise-research-cli/internal/properties"
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// SendDiscordErrorNotification reports a failed pipeline stage. A missing
// webhook URL disables notifications silently.
func SendDiscordErrorNotification(errorMessage string) error {
	message := DiscordMessage{
		Embeds: []DiscordEmbed{
			{
				Title:       "🚨 Lake Rise Pipeline Failed",
				Description: fmt.Sprintf("An error occurred: %s", errorMessage),
				Color:       16711680, // Red color
			},
		},
	}
	return send(properties.DiscordErrorNotificationUrl(), message)
}

// SendDiscordSuccessNotification reports a completed pipeline stage.
func SendDiscordSuccessNotification(successMessage string) error {
	message := DiscordMessage{
		Embeds: []DiscordEmbed{
			{
				Title:       "✅ Lake Rise Pipeline Complete",
				Description: successMessage,
				Color:       65280, // Green color
			},
		},
	}
	return send(properties.DiscordSuccessNotificationUrl(), message)
}

func send(url string, message DiscordMessage) error {
	if url == "" {
		return nil
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode)
	}
	return nil
}
