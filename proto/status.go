package proto

import "encoding/json"

// Status is the server-list ping document served to downstream clients.
type Status struct {
	Version     StatusVersion     `json:"version"`
	Players     StatusPlayers     `json:"players"`
	Description StatusDescription `json:"description"`
	Favicon     string            `json:"favicon,omitempty"`
}

// StatusVersion names the wire revision the proxy accepts.
type StatusVersion struct {
	Name     string `json:"name"`
	Protocol int    `json:"protocol"`
}

// StatusPlayers reports session occupancy: online is the number of open
// upstream sessions, max the number of configured profiles.
type StatusPlayers struct {
	Max    int `json:"max"`
	Online int `json:"online"`
}

// StatusDescription is the motd line.
type StatusDescription struct {
	Text string `json:"text"`
}

// NewStatus builds the canonical protocol-340 status document.
func NewStatus(serverName string, online, max int) Status {
	return Status{
		Version:     StatusVersion{Name: VersionName, Protocol: ProtocolVersion},
		Players:     StatusPlayers{Max: max, Online: online},
		Description: StatusDescription{Text: serverName},
	}
}

// Encode renders the status document as the JSON payload of a Response
// packet.
func (s Status) Encode() ([]byte, error) {
	return json.Marshal(s)
}
