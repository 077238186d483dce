package dialer

import (
	"errors"
	"fmt"

	"outbound-dialer/internal/calls"
	"outbound-dialer/internal/campaigns"
)

// Result is the outcome of every externally invoked dialer operation.
// Operations never panic or return raw errors to their callers.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	// Code classifies failures; empty on success.
	Code string `json:"code,omitempty"`
	Data any    `json:"data,omitempty"`
}

const (
	CodeInvalidInput = "invalid_input"
	CodeInvalidState = "invalid_state"
	CodeNotFound     = "not_found"
	CodeGateway      = "gateway"
	CodeInternal     = "internal"
)

var (
	ErrCampaignNotActive = errors.New("dialer: campaign is not active")
	ErrCycleInProgress   = errors.New("dialer: pacing cycle already running for campaign")
	ErrLeadInFlight      = errors.New("dialer: lead has a call in progress")
	ErrLeadExhausted     = errors.New("dialer: lead has used all its attempts")
	ErrLeadMismatch      = errors.New("dialer: lead does not belong to campaign")
	ErrOriginateFailed   = errors.New("dialer: originate failed")
	ErrPersistence       = errors.New("dialer: persistence failure")
)

func ok(msg string, data any) Result {
	return Result{Success: true, Message: msg, Data: data}
}

// fail maps err onto a Result code.
func fail(op string, err error) Result {
	code := CodeInternal
	switch {
	case errors.Is(err, campaigns.ErrNotFound), errors.Is(err, calls.ErrNotFound):
		code = CodeNotFound
	case errors.Is(err, campaigns.ErrInvalidTransition),
		errors.Is(err, ErrCampaignNotActive),
		errors.Is(err, ErrCycleInProgress),
		errors.Is(err, ErrLeadInFlight),
		errors.Is(err, ErrLeadExhausted):
		code = CodeInvalidState
	case errors.Is(err, campaigns.ErrInvalidCampaign), errors.Is(err, ErrLeadMismatch):
		code = CodeInvalidInput
	case errors.Is(err, ErrOriginateFailed):
		code = CodeGateway
	}
	return Result{Message: fmt.Sprintf("%s: %v", op, err), Code: code}
}
