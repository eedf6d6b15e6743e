package messaging

import (
	"context"
	"strings"

	"github.com/gidra39/lrsweep/config"
	"github.com/gidra39/lrsweep/slack"
	"github.com/gidra39/lrsweep/telegram"

	"github.com/rs/zerolog/log"
)

const (
	ChannelNone     = "NONE"
	ChannelTelegram = "TELEGRAM"
	ChannelSlack    = "SLACK"
	ChannelBoth     = "BOTH"
)

type sender func(ctx context.Context, message string, cfg config.Config) error

// senders lists the delivery functions a channel setting selects.
func senders(channels string) []sender {
	switch channels {
	case ChannelTelegram:
		return []sender{telegram.SendTelegramNotification}
	case ChannelSlack:
		return []sender{slack.SendSlackNotification}
	case ChannelBoth:
		return []sender{telegram.SendTelegramNotification, slack.SendSlackNotification}
	}
	return nil
}

// SendNotification delivers message over every configured channel. It fails
// only when no channel delivered, returning the first failure.
func SendNotification(ctx context.Context, message string, cfg config.Config) error {
	var (
		firstErr  error
		delivered bool
	)
	for _, send := range senders(strings.ToUpper(strings.TrimSpace(cfg.MessageChannels))) {
		if err := send(ctx, message, cfg); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		delivered = true
	}
	if delivered {
		return nil
	}
	return firstErr
}

// Notify sends message and only logs a failure; notifications never change
// the outcome of a sweep or a monitor session.
func Notify(ctx context.Context, message string, cfg config.Config) {
	if err := SendNotification(ctx, message, cfg); err != nil {
		log.Warn().Err(err).Msg("failed to send notification")
	}
}
