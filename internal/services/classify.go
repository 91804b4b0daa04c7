package services

import (
	"errors"
	"strings"
)

// Delivery error taxonomy. Channel-level errors are absorbed inside the
// orchestrator; these sentinels classify them for logging and outcomes.
var (
	// ErrChannelUnavailable means the channel had nothing to deliver to:
	// no live session, or no active device tokens.
	ErrChannelUnavailable = errors.New("channel unavailable")
	// ErrChannelFailure means a collaborator errored or reported failure.
	ErrChannelFailure = errors.New("channel failure")
	// ErrLedgerPersist means the failure ledger write itself failed. It is
	// logged and swallowed; it never fails the send path.
	ErrLedgerPersist = errors.New("ledger persist failure")
	// ErrRetriesExhausted is terminal and routed to escalation only.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// Provider error codes that mark a token as permanently dead. Exact-match,
// covering both the legacy and v1 FCM vocabularies.
var invalidTokenCodes = map[string]struct{}{
	"NotRegistered":       {},
	"InvalidRegistration": {},
	"MismatchSenderId":    {},
	"UNREGISTERED":        {},
	"INVALID_ARGUMENT":    {},
}

// Message substrings used as a case-insensitive fallback when the code is
// unknown or provider-specific.
var invalidTokenSubstrings = []string{
	"not registered",
	"registration not found",
	"registration-token-not-registered",
	"invalid registration",
	"invalid token",
	"invalid credentials",
	"unregistered",
}

// IsTokenInvalid reports whether a per-token failure marks the token as
// permanently invalid, so the device token store should deactivate it.
func IsTokenInvalid(perr *PushError) bool {
	if perr == nil {
		return false
	}
	if _, ok := invalidTokenCodes[perr.Code]; ok {
		return true
	}
	msg := strings.ToLower(perr.Message)
	for _, sub := range invalidTokenSubstrings {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
