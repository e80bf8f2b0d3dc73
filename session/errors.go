package session

import (
	"errors"

	"github.com/Tnze/go-mc/chat"
)

// Sentinel errors for manager operations.
var (
	ErrAlreadyConnected = errors.New("profile already has a session")
	ErrNotConnected     = errors.New("profile has no session")
	ErrTokenRefresh     = errors.New("access token refresh failed")
)

// ConnectError is a login-phase rejection carrying the server's reason.
type ConnectError struct {
	Reason chat.Message
}

func (e *ConnectError) Error() string {
	return "login refused: " + e.Reason.ClearString()
}

// lowHealthReason is the disconnect reason recorded by auto-disconnect.
const lowHealthReason = "Disconnected because of low health"
