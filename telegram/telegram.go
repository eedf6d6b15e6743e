package telegram

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gidra39/lrsweep/config"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrNotConfigured = errors.New("telegram bot token or chat id is not configured")

func SendTelegramNotification(ctx context.Context, message string, config config.Config) error {
	if config.TelegramBotToken == "" || config.TelegramChatID == "" {
		return ErrNotConfigured
	}

	base := strings.TrimRight(config.TelegramAPIURL, "/")
	endpoint := base + "/bot" + config.TelegramBotToken + "/sendMessage"

	params := url.Values{}
	params.Add("chat_id", config.TelegramChatID)
	params.Add("text", message)
	params.Add("parse_mode", "HTML")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return errors.Wrap(err, "failed to build Telegram request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		// the request URL carries the bot token
		return errors.New("failed to send Telegram notification")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("telegram API returned status code %d", resp.StatusCode)
	}

	log.Debug().Msg("sent Telegram notification")
	return nil
}
