package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrApplicationNotFound indicates the application does not exist.
	ErrApplicationNotFound = errors.New("application not found")
	// ErrCombinationNotFound indicates the test combination does not exist or belongs to another application.
	ErrCombinationNotFound = errors.New("test combination not found")
	// ErrTokenNotFound indicates no test was issued for the token.
	ErrTokenNotFound = errors.New("test token not found")
	// ErrTestAlreadySubmitted indicates the test was already turned in.
	ErrTestAlreadySubmitted = errors.New("test already submitted")
	// ErrTokenExpired indicates the token's window has closed.
	ErrTokenExpired = errors.New("test token expired")
	// ErrStatusConflict indicates the entity is already in the requested status or moved concurrently.
	ErrStatusConflict = errors.New("status conflict")
	// ErrInvalidTransition indicates the requested status change is not an edge of the lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// CooldownError reports that the applicant was rejected recently and may reapply after Until.
type CooldownError struct {
	Until time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("reapplication cooldown active until %s", e.Until.Format("2006-01-02"))
}
