package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SessionJoiner proves account ownership to the auth side before an
// encrypted login. Narrow so tests can stub it out.
type SessionJoiner interface {
	JoinSession(profileID, accessToken, serverHash string) error
}

const mojangJoinURL = "https://sessionserver.mojang.com/session/minecraft/join"

// MojangSessionService talks to the Mojang session server.
type MojangSessionService struct {
	Client *http.Client
	URL    string
}

// NewMojangSessionService returns a joiner with sane timeouts against the
// public session server.
func NewMojangSessionService() *MojangSessionService {
	return &MojangSessionService{
		Client: &http.Client{Timeout: 15 * time.Second},
		URL:    mojangJoinURL,
	}
}

func (s *MojangSessionService) JoinSession(profileID, accessToken, serverHash string) error {
	body, err := json.Marshal(map[string]string{
		"accessToken":     accessToken,
		"selectedProfile": profileID,
		"serverId":        serverHash,
	})
	if err != nil {
		return fmt.Errorf("encode join request: %w", err)
	}
	resp, err := s.Client.Post(s.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("session join: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("session join rejected: %s: %s", resp.Status, msg)
	}
	return nil
}
