package session

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/Tnze/go-mc/chat"
	mcnet "github.com/Tnze/go-mc/net"
	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/sirupsen/logrus"

	"github.com/reallyoldfogie/mc-keeper-go/proto"
)

// connectTimeout bounds the whole dial-and-login exchange.
const connectTimeout = 30 * time.Second

const defaultPort = "25565"

// upstreamConn is the authenticated play-phase connection. Writes are
// serialised so the dispatch loop and the bridge can both send.
type upstreamConn struct {
	conn *mcnet.Conn
	wmu  sync.Mutex

	// Filled from LoginSuccess. UUID is normalised to 32 hex digits.
	UUID     string
	Username string
}

// dialUpstream runs handshake and login against addr, including the
// encryption exchange and session join. A login-phase Disconnect surfaces as
// a *ConnectError.
func dialUpstream(addr string, profile Profile, joiner SessionJoiner, log *logrus.Entry) (*upstreamConn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port = addr, defaultPort
		addr = net.JoinHostPort(host, port)
	}
	var portNum uint16
	if _, err := fmt.Sscanf(port, "%d", &portNum); err != nil {
		return nil, fmt.Errorf("server port %q: %w", port, err)
	}

	conn, err := mcnet.DialMC(addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	conn.Socket.SetDeadline(time.Now().Add(connectTimeout))

	c := &upstreamConn{conn: conn}
	if err := c.login(host, portNum, profile, joiner, log); err != nil {
		conn.Close()
		return nil, err
	}
	conn.Socket.SetDeadline(time.Time{})
	return c, nil
}

func (c *upstreamConn) login(host string, port uint16, profile Profile, joiner SessionJoiner, log *logrus.Entry) error {
	err := c.conn.WritePacket(pk.Marshal(0x00,
		pk.VarInt(proto.ProtocolVersion),
		pk.String(host),
		pk.UnsignedShort(port),
		pk.VarInt(proto.NextStateLogin),
	))
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	if err := c.conn.WritePacket(pk.Marshal(proto.LoginStart, pk.String(profile.Name))); err != nil {
		return fmt.Errorf("login start: %w", err)
	}

	for {
		var p pk.Packet
		if err := c.conn.ReadPacket(&p); err != nil {
			return fmt.Errorf("login read: %w", err)
		}
		switch p.ID {
		case proto.LoginDisconnect:
			var reason chat.Message
			if err := p.Scan(&reason); err != nil {
				return fmt.Errorf("login disconnect: %w", err)
			}
			return &ConnectError{Reason: reason}

		case proto.LoginEncryptionRequest:
			if err := c.respondEncryption(p, profile, joiner); err != nil {
				return err
			}

		case proto.LoginSetCompression:
			var threshold pk.VarInt
			if err := p.Scan(&threshold); err != nil {
				return fmt.Errorf("set compression: %w", err)
			}
			c.conn.SetThreshold(int(threshold))

		case proto.LoginSuccess:
			var id, name pk.String
			if err := p.Scan(&id, &name); err != nil {
				return fmt.Errorf("login success: %w", err)
			}
			c.UUID = strings.ReplaceAll(string(id), "-", "")
			c.Username = string(name)
			log.WithFields(logrus.Fields{"uuid": c.UUID, "name": c.Username}).Info("logged in")
			return nil

		default:
			return fmt.Errorf("unexpected login packet 0x%02x", p.ID)
		}
	}
}

func (c *upstreamConn) respondEncryption(p pk.Packet, profile Profile, joiner SessionJoiner) error {
	var (
		serverID    pk.String
		publicKey   pk.ByteArray
		verifyToken pk.ByteArray
	)
	if err := p.Scan(&serverID, &publicKey, &verifyToken); err != nil {
		return fmt.Errorf("encryption request: %w", err)
	}

	secret, err := proto.NewSharedSecret()
	if err != nil {
		return fmt.Errorf("shared secret: %w", err)
	}
	digest := proto.AuthDigest(string(serverID), secret, publicKey)
	if err := joiner.JoinSession(profile.ID, profile.AccessToken, digest); err != nil {
		return fmt.Errorf("session join: %w", err)
	}

	encSecret, encToken, err := proto.EncryptLoginPayload(publicKey, secret, verifyToken)
	if err != nil {
		return fmt.Errorf("encrypt login payload: %w", err)
	}
	err = c.conn.WritePacket(pk.Marshal(proto.LoginEncryptionResponse,
		pk.ByteArray(encSecret), pk.ByteArray(encToken)))
	if err != nil {
		return fmt.Errorf("encryption response: %w", err)
	}

	encrypt, decrypt, err := proto.CipherStreams(secret)
	if err != nil {
		return fmt.Errorf("cipher streams: %w", err)
	}
	c.conn.SetCipher(encrypt, decrypt)
	return nil
}

// ReadPacket blocks for the next clientbound packet.
func (c *upstreamConn) ReadPacket(p *pk.Packet) error {
	return c.conn.ReadPacket(p)
}

// WritePacket sends one serverbound packet, serialised across goroutines.
func (c *upstreamConn) WritePacket(p pk.Packet) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WritePacket(p)
}

func (c *upstreamConn) Close() error {
	return c.conn.Close()
}
