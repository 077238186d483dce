package routing

import (
	"errors"
	"strings"

	"outbound-dialer/internal/campaigns"
)

var ErrUnroutable = errors.New("routing: destination cannot be resolved")

// Resolve maps a campaign destination to the agent-side dial target.
//
// Priority of the context used:
//  1. custom destinations carry their own context
//  2. queue and ivr use the dialer-wide queue/ivr contexts
//  3. extension uses the agent context
//
// Return the target only. No side effects.
func Resolve(dest campaigns.Destination, ctxs Contexts) (Target, error) {
	ext := strings.TrimSpace(dest.Extension)
	if ext == "" {
		return Target{}, ErrUnroutable
	}

	var ctx string
	switch dest.Type {
	case campaigns.DestinationExtension, "":
		ctx = ctxs.Agent
	case campaigns.DestinationQueue:
		ctx = ctxs.Queue
	case campaigns.DestinationIVR:
		ctx = ctxs.IVR
	case campaigns.DestinationCustom:
		ctx = strings.TrimSpace(dest.Context)
	default:
		return Target{}, ErrUnroutable
	}
	if ctx == "" {
		return Target{}, ErrUnroutable
	}
	return Target{Extension: ext, Context: ctx}, nil
}

// Outbound returns the customer-side dial target for a lead phone number.
func Outbound(phone string, ctxs Contexts) (Target, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" || ctxs.Outbound == "" {
		return Target{}, ErrUnroutable
	}
	return Target{Extension: phone, Context: ctxs.Outbound}, nil
}
