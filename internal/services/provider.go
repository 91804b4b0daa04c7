package services

import "context"

// PushPayload is the payload handed to a push provider for a batch of tokens.
type PushPayload struct {
	Tokens   []string
	Title    string
	Body     string
	Data     map[string]string
	ImageURL string
}

// PushError describes a per-token provider failure.
type PushError struct {
	Code    string
	Message string
}

// PushResult captures the delivery outcome for one device token.
type PushResult struct {
	Token     string
	Success   bool
	MessageID string
	Error     *PushError
}

// PushResponse is the provider's verdict for a batch send.
type PushResponse struct {
	SuccessCount int
	FailureCount int
	Results      []PushResult
}

// PushProvider represents a downstream push provider (FCM, OneSignal, etc).
type PushProvider interface {
	Name() string
	Send(ctx context.Context, payload *PushPayload) (*PushResponse, error)
}
