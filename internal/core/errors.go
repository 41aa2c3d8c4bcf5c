package core

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigMissing indicates required auth configuration is absent. Fatal
	// to login; the deployment must be fixed.
	ErrConfigMissing = errors.New("auth configuration missing")

	// ErrAuthRequired indicates no valid credential is available. This is a
	// normal phase, not a fault: the user must log in.
	ErrAuthRequired = errors.New("authentication required")

	// ErrTokenExchange indicates the authorization-code exchange failed. The
	// verifier has been discarded; the user must retry login.
	ErrTokenExchange = errors.New("token exchange failed")

	// ErrDeviceUnavailable indicates no playable target device could be
	// resolved. Start and skip are blocked until one is available.
	ErrDeviceUnavailable = errors.New("no playback device available")

	// ErrCredentialNotFound is returned by credential stores when the
	// requested entry does not exist.
	ErrCredentialNotFound = errors.New("credential not found")
)

// CommandError wraps a failed remote playback command. Detail carries the
// remote-provided message when the gateway returned one.
type CommandError struct {
	Command string
	Detail  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s command failed: %s", e.Command, e.Detail)
	}
	return fmt.Sprintf("%s command failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// UserMessage renders the error the way it is surfaced to the user.
func (e *CommandError) UserMessage() string {
	return "Error: " + e.Error()
}
