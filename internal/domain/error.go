package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotAgent        = errors.New("actor is not an authenticated agent")
	ErrAgentAssigned   = errors.New("session already has an assigned agent")
	ErrTicketInvalid   = errors.New("connect ticket invalid or expired")
	ErrUnauthorized    = errors.New("authentication required")
)
