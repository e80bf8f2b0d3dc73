package gateway

import (
	"encoding/json"
	"fmt"

	pk "github.com/Tnze/go-mc/net/packet"

	"github.com/reallyoldfogie/mc-keeper-go/proto"
	"github.com/reallyoldfogie/mc-keeper-go/session"
)

// chatComponent is the subset of the chat component schema the gateway
// emits. Kept local so the wire shape (bare strings in "with") is under our
// control.
type chatComponent struct {
	Text       string          `json:"text,omitempty"`
	Color      string          `json:"color,omitempty"`
	Translate  string          `json:"translate,omitempty"`
	With       []string        `json:"with,omitempty"`
	ClickEvent *clickEvent     `json:"clickEvent,omitempty"`
	Extra      []chatComponent `json:"extra,omitempty"`
}

type clickEvent struct {
	Action string `json:"action"`
	Value  string `json:"value"`
}

func textComponent(text string) []byte {
	body, _ := json.Marshal(chatComponent{Text: text})
	return body
}

func translateComponent(key string, with ...string) []byte {
	body, _ := json.Marshal(chatComponent{Translate: key, With: with})
	return body
}

// systemChat frames a component as a position-1 (system) chat packet.
func systemChat(component []byte) pk.Packet {
	return pk.Marshal(proto.ClientboundChatMessage, pk.String(component), pk.Byte(1))
}

// sendSystem delivers a system chat line to the client, through the bridge
// when one is attached so it cannot interleave with the replay burst.
func (c *clientConn) sendSystem(component []byte) {
	p := systemChat(component)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.attached != nil && c.attached.bridge != nil {
		c.attached.bridge.SendChat(p)
		return
	}
	c.conn.WritePacket(p)
}

// rosterComponent lists every configured profile with its connection state
// and a click-to-connect action.
func rosterComponent(profiles []session.Profile, manager *session.Manager) []byte {
	root := chatComponent{Text: "Sessions:"}
	for _, profile := range profiles {
		row := chatComponent{
			Text: "\n  " + profile.Name,
			ClickEvent: &clickEvent{
				Action: "run_command",
				Value:  "/connect " + profile.ID,
			},
		}
		state := chatComponent{Text: " offline", Color: "gray"}
		if sess, ok := manager.Session(profile.ID); ok {
			st := sess.Status()
			switch {
			case st.Queue != nil:
				state = chatComponent{
					Text:  fmt.Sprintf(" in queue at %d, %s left", st.Queue.Position, st.Queue.Time),
					Color: "yellow",
				}
			case st.Playing:
				state = chatComponent{Text: " playing", Color: "aqua"}
			default:
				state = chatComponent{Text: " connected", Color: "green"}
			}
		}
		row.Extra = []chatComponent{state}
		root.Extra = append(root.Extra, row)
	}
	body, _ := json.Marshal(root)
	return body
}
