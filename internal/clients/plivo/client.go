package plivo

import (
	"context"
	"fmt"

	"voice-agent-server/internal/observability"

	plivosdk "github.com/plivo/plivo-go/v7"
)

// Client wraps the Plivo REST SDK for outbound call creation.
type Client struct {
	rest   *plivosdk.Client
	logger *observability.Logger
}

// NewClient creates a Plivo REST client. Credentials must be non-empty;
// callers decide whether call initiation is enabled at all.
func NewClient(authID, authToken string, logger *observability.Logger) (*Client, error) {
	if authID == "" || authToken == "" {
		return nil, fmt.Errorf("plivo credentials are required")
	}
	rest, err := plivosdk.NewClient(authID, authToken, &plivosdk.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create plivo client: %w", err)
	}
	return &Client{rest: rest, logger: logger}, nil
}

// CreateCall places one outbound call and returns the provider-assigned
// request UUID. The call is billed; it is never retried here.
func (c *Client) CreateCall(ctx context.Context, from, to, answerURL string) (string, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "from_number", Value: from},
		observability.Field{Key: "to_number", Value: to},
	)
	c.logger.Info(ctx, "Creating outbound call")

	resp, err := c.rest.Calls.Create(plivosdk.CallCreateParams{
		From:         from,
		To:           to,
		AnswerURL:    answerURL,
		AnswerMethod: "POST",
	})
	if err != nil {
		c.logger.Error(ctx, "Plivo call creation failed", err)
		return "", fmt.Errorf("failed to create call: %w", err)
	}

	callUUID := requestUUIDString(resp.RequestUUID)
	c.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "call_uuid", Value: callUUID}),
		"Outbound call initiated")
	return callUUID, nil
}

// requestUUIDString flattens the SDK's untyped request_uuid field, which
// Plivo returns as a string for single calls and a list for bulk calls.
func requestUUIDString(v interface{}) string {
	switch uuid := v.(type) {
	case string:
		return uuid
	case []interface{}:
		if len(uuid) > 0 {
			return fmt.Sprintf("%v", uuid[0])
		}
		return ""
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", uuid)
	}
}
