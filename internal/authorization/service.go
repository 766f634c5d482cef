package authorization

import (
	"context"
	"errors"
)

type Service interface {
	// Authorize checks whether a credential environment may perform action.
	Authorize(ctx context.Context, environment string, action string) error
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidAction = errors.New("invalid_action")
)
