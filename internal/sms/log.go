package sms

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogProvider is a dry-run carrier that only logs outgoing messages.
type LogProvider struct {
	logger *zerolog.Logger
}

func NewLogProvider(logger *zerolog.Logger) *LogProvider {
	return &LogProvider{logger: logger}
}

func (p *LogProvider) Send(ctx context.Context, from, to, body string) (string, error) {
	id := "log-" + uuid.NewString()
	p.logger.Info().
		Str("from", from).
		Str("to", to).
		Str("provider_message_id", id).
		Str("body", body).
		Msg("sms (dry run)")
	return id, nil
}
