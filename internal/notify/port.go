// Package notify defines the delivery port the scheduling core submits
// reminder instructions to.
//
// The platform side of delivery is asynchronous and not reliably
// observable by the sender; adapters therefore publish two independent
// confirmation topics on the event bus (eventbus.TypeForegroundDelivery
// and eventbus.TypeUserInteraction) instead of exposing callbacks.
package notify

import (
	"context"
	"time"
)

// AuthStatus mirrors the platform's notification permission states.
type AuthStatus int

const (
	AuthNotDetermined AuthStatus = iota
	AuthAuthorized
	AuthDenied
	AuthProvisional
)

func (s AuthStatus) String() string {
	switch s {
	case AuthAuthorized:
		return "authorized"
	case AuthDenied:
		return "denied"
	case AuthProvisional:
		return "provisional"
	default:
		return "not-determined"
	}
}

// Allows reports whether submissions may proceed under this status.
func (s AuthStatus) Allows() bool {
	return s == AuthAuthorized || s == AuthProvisional
}

type Payload struct {
	Title string
	Body  string
	Kind  string
}

// Request is one reminder instruction. IDs are namespace-prefixed and
// deterministic; resubmitting the same ID replaces the pending request.
type Request struct {
	ID        string
	TriggerAt time.Time
	Payload   Payload
}

// Pending describes a not-yet-delivered request held by the platform.
type Pending struct {
	ID        string
	TriggerAt time.Time
	Title     string
}

// Port is the delivery backend. All methods honor ctx cancellation.
// The port owns the pending-request store; callers must re-query rather
// than assume their in-memory plan matches platform state.
type Port interface {
	AuthorizationStatus(ctx context.Context) (AuthStatus, error)
	Submit(ctx context.Context, req Request) error
	Cancel(ctx context.Context, ids []string) error
	Pending(ctx context.Context) ([]Pending, error)
}
