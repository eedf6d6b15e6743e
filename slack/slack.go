package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/gidra39/lrsweep/config"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrNoWebhook = errors.New("slack webhook URL is not configured")

type SlackMessage struct {
	Text string `json:"text"`
}

func SendSlackNotification(ctx context.Context, message string, config config.Config) error {
	if config.SlackWebhookURL == "" {
		return ErrNoWebhook
	}

	payload, err := json.Marshal(SlackMessage{Text: message})
	if err != nil {
		return errors.Wrap(err, "failed to marshal slack message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.SlackWebhookURL, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "failed to build Slack request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send Slack notification")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("slack API returned status code %d", resp.StatusCode)
	}

	log.Debug().Msg("sent Slack notification")
	return nil
}
