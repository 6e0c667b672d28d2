package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("validation error")
	ErrAssistantUnavailable = errors.New("assistant unavailable")
	ErrStorageFault         = errors.New("storage fault")
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrExpiredAccess        = errors.New("access expired")
	ErrNotActivated         = errors.New("not activated")
	ErrNotFound             = errors.New("not found")
	ErrBusy                 = errors.New("a request is already in progress")
)

// ValidationError is a local, user-correctable input problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
