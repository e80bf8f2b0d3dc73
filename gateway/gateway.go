// Package gateway is the downstream side of the proxy: it accepts game
// clients, walks them through status or login, and attaches authenticated
// clients to their profile's upstream session.
package gateway

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	mcnet "github.com/Tnze/go-mc/net"
	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/sirupsen/logrus"

	"github.com/reallyoldfogie/mc-keeper-go/proto"
	"github.com/reallyoldfogie/mc-keeper-go/session"
)

// rosterInterval paces the idle profile listing.
const rosterInterval = 10 * time.Second

// Config wires a listener.
type Config struct {
	// Addr is the bind address, host:port.
	Addr string
	// ServerName shows up as the status motd.
	ServerName string
	// Profiles is the full configured profile set; login requires a name
	// match against it.
	Profiles []session.Profile
	Manager  *session.Manager
	Log      *logrus.Logger
}

// Listener accepts downstream clients.
type Listener struct {
	cfg      Config
	keys     *proto.ServerKeyPair
	log      *logrus.Entry
	listener *mcnet.Listener
}

// NewListener generates the login keypair and binds the address.
func NewListener(cfg Config) (*Listener, error) {
	if cfg.ServerName == "" {
		cfg.ServerName = "2b2t Proxy"
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	keys, err := proto.NewServerKeyPair()
	if err != nil {
		return nil, fmt.Errorf("listener keypair: %w", err)
	}
	ln, err := mcnet.ListenMC(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	return &Listener{
		cfg:      cfg,
		keys:     keys,
		log:      cfg.Log.WithField("component", "gateway"),
		listener: ln,
	}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.listener.Addr() }

// Serve accepts connections until ctx is cancelled or the listener closes.
// Each connection gets its own goroutine; a failed one never affects the
// rest.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.listener.Close()
	}()
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept: %w", err)
		}
		go l.handle(&conn)
	}
}

// Close stops accepting.
func (l *Listener) Close() error { return l.listener.Close() }

func (l *Listener) handle(conn *mcnet.Conn) {
	defer conn.Close()

	var p pk.Packet
	if err := conn.ReadPacket(&p); err != nil {
		return
	}
	var (
		protocol  pk.VarInt
		host      pk.String
		port      pk.UnsignedShort
		nextState pk.VarInt
	)
	if err := p.Scan(&protocol, &host, &port, &nextState); err != nil {
		l.log.WithError(err).Debug("bad handshake")
		return
	}

	switch nextState {
	case proto.NextStateStatus:
		l.serveStatus(conn)
	case proto.NextStateLogin:
		l.serveLogin(conn, int(protocol))
	}
}

// serveStatus answers the list ping: one status document, then a pong
// echoing the client's payload.
func (l *Listener) serveStatus(conn *mcnet.Conn) {
	for {
		var p pk.Packet
		if err := conn.ReadPacket(&p); err != nil {
			return
		}
		switch p.ID {
		case proto.StatusRequest:
			status := proto.NewStatus(l.cfg.ServerName, l.cfg.Manager.Count(), len(l.cfg.Profiles))
			body, err := status.Encode()
			if err != nil {
				return
			}
			if err := conn.WritePacket(pk.Marshal(proto.StatusResponse, pk.String(body))); err != nil {
				return
			}
		case proto.StatusPing:
			var payload pk.Long
			if err := p.Scan(&payload); err != nil {
				return
			}
			conn.WritePacket(pk.Marshal(proto.StatusPong, payload))
			return
		default:
			return
		}
	}
}

func (l *Listener) serveLogin(conn *mcnet.Conn, protocol int) {
	if protocol != proto.ProtocolVersion {
		key := "multiplayer.disconnect.outdated_client"
		if protocol > proto.ProtocolVersion {
			key = "multiplayer.disconnect.outdated_server"
		}
		l.loginDisconnect(conn, translateComponent(key, proto.VersionName))
		return
	}

	var p pk.Packet
	if err := conn.ReadPacket(&p); err != nil {
		return
	}
	var username pk.String
	if p.ID != proto.LoginStart || p.Scan(&username) != nil {
		return
	}

	profile, ok := l.profileByName(string(username))
	if !ok {
		l.loginDisconnect(conn, textComponent("You need to connect via one of your profiles"))
		return
	}
	log := l.log.WithField("profile", profile.ID).WithField("name", profile.Name)

	if err := l.negotiateEncryption(conn); err != nil {
		log.WithError(err).Info("login encryption failed")
		return
	}
	if err := conn.WritePacket(pk.Marshal(proto.LoginSetCompression, pk.VarInt(proto.CompressionThreshold))); err != nil {
		return
	}
	conn.SetThreshold(proto.CompressionThreshold)
	err := conn.WritePacket(pk.Marshal(proto.LoginSuccess,
		pk.String("00000000-0000-0000-0000-000000000000"),
		username))
	if err != nil {
		return
	}
	log.Info("client logged in")

	newClientConn(l, conn, profile, log).run()
}

// negotiateEncryption runs the server side of the login cipher exchange.
func (l *Listener) negotiateEncryption(conn *mcnet.Conn) error {
	verifyToken := make([]byte, 4)
	if _, err := rand.Read(verifyToken); err != nil {
		return fmt.Errorf("verify token: %w", err)
	}
	err := conn.WritePacket(pk.Marshal(proto.LoginEncryptionRequest,
		pk.String(""),
		pk.ByteArray(l.keys.Public),
		pk.ByteArray(verifyToken)))
	if err != nil {
		return fmt.Errorf("encryption request: %w", err)
	}

	var p pk.Packet
	if err := conn.ReadPacket(&p); err != nil {
		return fmt.Errorf("encryption response: %w", err)
	}
	var encSecret, encToken pk.ByteArray
	if p.ID != proto.LoginEncryptionResponse {
		return fmt.Errorf("unexpected login packet 0x%02x", p.ID)
	}
	if err := p.Scan(&encSecret, &encToken); err != nil {
		return fmt.Errorf("encryption response: %w", err)
	}

	token, err := l.keys.Decrypt(encToken)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(token, verifyToken) != 1 {
		return errors.New("verify token mismatch")
	}
	secret, err := l.keys.Decrypt(encSecret)
	if err != nil {
		return err
	}
	if len(secret) != proto.SharedSecretSize {
		return fmt.Errorf("shared secret is %d bytes", len(secret))
	}

	encrypt, decrypt, err := proto.CipherStreams(secret)
	if err != nil {
		return err
	}
	// Server side: outbound encrypts, inbound decrypts, same key pair of
	// streams as the client but swapped roles fall out of CFB8 symmetry.
	conn.SetCipher(encrypt, decrypt)
	return nil
}

func (l *Listener) profileByName(name string) (session.Profile, bool) {
	for _, p := range l.cfg.Profiles {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return session.Profile{}, false
}

func (l *Listener) loginDisconnect(conn *mcnet.Conn, component []byte) {
	conn.WritePacket(pk.Marshal(proto.LoginDisconnect, pk.String(component)))
}

// clientConn is one logged-in downstream client and its attachment state.
type clientConn struct {
	listener *Listener
	conn     *mcnet.Conn
	profile  session.Profile
	log      *logrus.Entry

	mu       sync.Mutex
	attached *attachment
	// joined is true once the client holds a world, which switches later
	// attaches to the Respawn-pair replay.
	joined bool
	closed bool
}

type attachment struct {
	sess   *session.Session
	bridge bridgeHandle
}

// bridgeHandle is the slice of the bridge the gateway drives.
type bridgeHandle interface {
	HandleServerbound(p pk.Packet) error
	SendChat(p pk.Packet)
	Stop()
	Wait()
}

func newClientConn(l *Listener, conn *mcnet.Conn, profile session.Profile, log *logrus.Entry) *clientConn {
	return &clientConn{listener: l, conn: conn, profile: profile, log: log}
}

func (c *clientConn) run() {
	stopRoster := make(chan struct{})
	defer close(stopRoster)
	go c.rosterLoop(stopRoster)

	c.attach(c.profile.ID)

	for {
		var p pk.Packet
		if err := c.conn.ReadPacket(&p); err != nil {
			break
		}
		if p.ID == proto.ServerboundChatMessage {
			var text pk.String
			if err := p.Scan(&text); err != nil {
				break
			}
			if c.handleCommand(string(text)) {
				continue
			}
		}
		c.mu.Lock()
		att := c.attached
		c.mu.Unlock()
		if att == nil {
			continue
		}
		if err := att.bridge.HandleServerbound(p); err != nil {
			c.log.WithError(err).Debug("serverbound forward failed")
		}
	}

	c.mu.Lock()
	c.closed = true
	att := c.attached
	c.attached = nil
	c.mu.Unlock()
	if att != nil {
		att.sess.Detach()
	}
	c.log.Info("client disconnected")
}
