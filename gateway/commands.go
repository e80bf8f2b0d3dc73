package gateway

import (
	"strings"
	"time"
)

// handleCommand intercepts the management chat sub-protocol. It reports
// whether the message was consumed.
func (c *clientConn) handleCommand(text string) bool {
	if !strings.HasPrefix(text, "/connect") && !strings.HasPrefix(text, "/disconnect") {
		return false
	}
	fields := strings.Fields(text)
	switch fields[0] {
	case "/connect":
		if len(fields) != 2 {
			c.sendSystem(textComponent("Usage: /connect <id-or-name>"))
			return true
		}
		c.attach(fields[1])
		return true
	case "/disconnect":
		if len(fields) != 2 {
			c.sendSystem(textComponent("Usage: /disconnect <id-or-name>"))
			return true
		}
		sess, ok := c.listener.cfg.Manager.Find(fields[1])
		if !ok {
			c.sendSystem(textComponent("No session named " + fields[1]))
			return true
		}
		if err := c.listener.cfg.Manager.Disconnect(sess.Profile.ID); err != nil {
			c.sendSystem(textComponent("Disconnect failed: " + err.Error()))
			return true
		}
		c.sendSystem(textComponent("Disconnected " + sess.Profile.Name))
		return true
	}
	return false
}

// attach detaches the current session, if any, and splices the client into
// the named one. The first attach replays a JoinGame; later ones use the
// Respawn pair since the client already holds a world.
func (c *clientConn) attach(idOrName string) bool {
	sess, ok := c.listener.cfg.Manager.Find(idOrName)
	if !ok {
		c.sendSystem(textComponent("No session for " + idOrName))
		return false
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	prev := c.attached
	c.attached = nil
	c.mu.Unlock()
	if prev != nil {
		prev.sess.Detach()
		if prev.bridge != nil {
			// The old writer must release the socket before the new replay
			// burst starts on it.
			prev.bridge.Wait()
		}
	}

	att := &attachment{sess: sess}
	onEnd := func(err error) {
		c.mu.Lock()
		current := c.attached == att
		if current {
			c.attached = nil
		}
		c.mu.Unlock()
		// The bridge only ends on its own when the session died or the
		// socket broke; either way this client is done.
		if current {
			c.conn.Close()
		}
	}

	// Reserve the attachment before the bridge starts writing so the
	// roster loop cannot interleave with the replay burst.
	c.mu.Lock()
	respawn := c.joined
	c.attached = att
	c.mu.Unlock()

	b, err := sess.Attach(c.conn, respawn, onEnd)
	if err != nil {
		c.mu.Lock()
		if c.attached == att {
			c.attached = nil
		}
		c.mu.Unlock()
		c.sendSystem(textComponent("Session for " + idOrName + " is gone"))
		return false
	}
	att.bridge = b
	c.mu.Lock()
	c.joined = true
	c.mu.Unlock()
	c.log.WithField("session", sess.Profile.ID).Info("attached")
	return true
}

// rosterLoop pushes the profile listing while no session is attached.
func (c *clientConn) rosterLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(rosterInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		roster := rosterComponent(c.listener.cfg.Profiles, c.listener.cfg.Manager)
		c.mu.Lock()
		if c.attached == nil && !c.closed {
			c.conn.WritePacket(systemChat(roster))
		}
		c.mu.Unlock()
	}
}
