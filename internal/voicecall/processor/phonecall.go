package processor

import (
	"context"

	"voice-agent-server/internal/observability"
)

// StartOutboundCall places one outbound call and returns the provider's
// call UUID. Returns ErrNotConfigured without touching the network when
// credentials were missing at startup. Calls are billed and are never
// retried here.
func (v *VoiceCallProcessor) StartOutboundCall(ctx context.Context, to string) (string, error) {
	if v.calls == nil {
		v.logger.Error(ctx, "Outbound call requested but telephony client not configured", ErrNotConfigured)
		return "", ErrNotConfigured
	}

	if to == "" {
		to = v.telephony.ToNumber
	}

	ctx = observability.WithFields(ctx, observability.Field{Key: "to_number", Value: to})
	v.logger.Info(ctx, "Starting outbound call")

	callUUID, err := v.calls.CreateCall(ctx, v.telephony.FromNumber, to, v.telephony.AnswerURL)
	if err != nil {
		v.logger.Error(ctx, "Failed to start outbound call", err)
		return "", err
	}
	return callUUID, nil
}
