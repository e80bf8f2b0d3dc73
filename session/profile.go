// Package session owns the durable upstream side of the proxy: one
// authenticated connection per profile, the world mirror it feeds, and the
// manager that keeps sessions alive across reconnects.
package session

import (
	"fmt"
	"regexp"
	"strings"
)

// Profile is one upstream account. The id is the 32-hex-digit profile
// identifier without hyphens. Access tokens are refreshed through the
// manager's TokenRefresher before each connect.
type Profile struct {
	ID          string          `yaml:"id"`
	Name        string          `yaml:"name"`
	AccessToken string          `yaml:"accessToken"`
	Settings    ProfileSettings `yaml:"settings"`
}

var profileIDRe = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Validate checks the id shape and name presence.
func (p Profile) Validate() error {
	if !profileIDRe.MatchString(strings.ToLower(p.ID)) {
		return fmt.Errorf("profile id %q is not 32 hex digits", p.ID)
	}
	if p.Name == "" {
		return fmt.Errorf("profile %s has no name", p.ID)
	}
	return nil
}

// ProfileSettings are the recognised per-profile options.
type ProfileSettings struct {
	AutoReconnect     AutoReconnect  `yaml:"autoReconnect"`
	AutoDisconnect    AutoDisconnect `yaml:"autoDisconnect"`
	NotifyPlayers     NotifyPlayers  `yaml:"notifyPlayers"`
	EnablePacketDumps bool           `yaml:"enablePacketDumps"`
}

// AutoReconnect reopens the session after an unexpected upstream end.
type AutoReconnect struct {
	Enabled bool `yaml:"enabled"`
	// Delay before the reconnect attempt, in milliseconds.
	Delay int `yaml:"delay"`
}

// AutoDisconnect ends the session when health drops below the threshold
// while nobody is attached (or regardless, when DisableWhilePlaying is
// false).
type AutoDisconnect struct {
	Enabled             bool    `yaml:"enabled"`
	DisableWhilePlaying bool    `yaml:"disableWhilePlaying"`
	Health              float64 `yaml:"health"`
}

// NotifyPlayers emits an event when another player spawns in range.
type NotifyPlayers struct {
	Enabled             bool     `yaml:"enabled"`
	DisableWhilePlaying bool     `yaml:"disableWhilePlaying"`
	Ignore              []string `yaml:"ignore"`
}

// Ignored reports whether name is on the ignore list, case-insensitively.
func (n NotifyPlayers) Ignored(name string) bool {
	for _, ignored := range n.Ignore {
		if strings.EqualFold(ignored, name) {
			return true
		}
	}
	return false
}
