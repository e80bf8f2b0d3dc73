package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	mcnet "github.com/Tnze/go-mc/net"
	pk "github.com/Tnze/go-mc/net/packet"

	"github.com/reallyoldfogie/mc-keeper-go/proto"
	"github.com/reallyoldfogie/mc-keeper-go/session"
)

func testListener(t *testing.T) *Listener {
	t.Helper()
	manager := session.NewManager(session.ManagerConfig{ServerAddr: "127.0.0.1:1"})
	l, err := NewListener(Config{
		Addr:       "127.0.0.1:0",
		ServerName: "2b2t Proxy",
		Profiles: []session.Profile{
			{ID: "d8d5a9237b2043d8883b1150148d6955", Name: "Fit"},
			{ID: "c9b1456beab64451a4c7e6dcd9878102", Name: "jared2013"},
		},
		Manager: manager,
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go l.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		l.Close()
	})
	return l
}

func dialGateway(t *testing.T, l *Listener, protocol, nextState int32) *mcnet.Conn {
	t.Helper()
	conn, err := mcnet.DialMC(l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.Socket.SetDeadline(time.Now().Add(5 * time.Second))
	err = conn.WritePacket(pk.Marshal(0x00,
		pk.VarInt(protocol), pk.String("localhost"), pk.UnsignedShort(25565),
		pk.VarInt(nextState)))
	if err != nil {
		t.Fatal(err)
	}
	return conn
}

func TestStatusPing(t *testing.T) {
	l := testListener(t)
	conn := dialGateway(t, l, proto.ProtocolVersion, proto.NextStateStatus)

	if err := conn.WritePacket(pk.Marshal(proto.StatusRequest)); err != nil {
		t.Fatal(err)
	}
	var p pk.Packet
	if err := conn.ReadPacket(&p); err != nil {
		t.Fatal(err)
	}
	if p.ID != proto.StatusResponse {
		t.Fatalf("packet 0x%02x, want status response", p.ID)
	}
	var body pk.String
	if err := p.Scan(&body); err != nil {
		t.Fatal(err)
	}
	var status proto.Status
	if err := json.Unmarshal([]byte(body), &status); err != nil {
		t.Fatalf("status json: %v", err)
	}
	if status.Version.Name != "1.12.2" || status.Version.Protocol != 340 {
		t.Errorf("version = %+v", status.Version)
	}
	if status.Players.Max != 2 || status.Players.Online != 0 {
		t.Errorf("players = %+v", status.Players)
	}
	if status.Description.Text != "2b2t Proxy" {
		t.Errorf("description = %q", status.Description.Text)
	}

	const payload = 0x0123456789ABCDEF
	if err := conn.WritePacket(pk.Marshal(proto.StatusPing, pk.Long(payload))); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadPacket(&p); err != nil {
		t.Fatal(err)
	}
	var echoed pk.Long
	if p.ID != proto.StatusPong || p.Scan(&echoed) != nil || echoed != payload {
		t.Errorf("pong = 0x%02x %x, want echo of %x", p.ID, int64(echoed), int64(payload))
	}
}

func TestOutdatedClientReject(t *testing.T) {
	l := testListener(t)
	conn := dialGateway(t, l, 339, proto.NextStateLogin)

	var p pk.Packet
	if err := conn.ReadPacket(&p); err != nil {
		t.Fatal(err)
	}
	if p.ID != proto.LoginDisconnect {
		t.Fatalf("packet 0x%02x, want login disconnect", p.ID)
	}
	var reason pk.String
	if err := p.Scan(&reason); err != nil {
		t.Fatal(err)
	}
	want := `{"translate":"multiplayer.disconnect.outdated_client","with":["1.12.2"]}`
	if string(reason) != want {
		t.Errorf("reason = %s, want %s", reason, want)
	}
}

func TestOutdatedServerReject(t *testing.T) {
	l := testListener(t)
	conn := dialGateway(t, l, 754, proto.NextStateLogin)

	var p pk.Packet
	if err := conn.ReadPacket(&p); err != nil {
		t.Fatal(err)
	}
	var reason pk.String
	if p.ID != proto.LoginDisconnect || p.Scan(&reason) != nil {
		t.Fatalf("packet 0x%02x, want login disconnect", p.ID)
	}
	if !strings.Contains(string(reason), "outdated_server") {
		t.Errorf("reason = %s", reason)
	}
}

func TestUnknownProfileReject(t *testing.T) {
	l := testListener(t)
	conn := dialGateway(t, l, proto.ProtocolVersion, proto.NextStateLogin)

	if err := conn.WritePacket(pk.Marshal(proto.LoginStart, pk.String("Stranger"))); err != nil {
		t.Fatal(err)
	}
	var p pk.Packet
	if err := conn.ReadPacket(&p); err != nil {
		t.Fatal(err)
	}
	var reason pk.String
	if p.ID != proto.LoginDisconnect || p.Scan(&reason) != nil {
		t.Fatalf("packet 0x%02x, want login disconnect", p.ID)
	}
	if !strings.Contains(string(reason), "You need to connect via one of your profiles") {
		t.Errorf("reason = %s", reason)
	}
}

func TestRosterComponent(t *testing.T) {
	manager := session.NewManager(session.ManagerConfig{ServerAddr: "127.0.0.1:1"})
	profiles := []session.Profile{{ID: "d8d5a9237b2043d8883b1150148d6955", Name: "Fit"}}
	body := rosterComponent(profiles, manager)

	var root chatComponent
	if err := json.Unmarshal(body, &root); err != nil {
		t.Fatal(err)
	}
	if len(root.Extra) != 1 {
		t.Fatalf("rows = %d, want 1", len(root.Extra))
	}
	row := root.Extra[0]
	if row.ClickEvent == nil || row.ClickEvent.Action != "run_command" {
		t.Fatalf("click event = %+v", row.ClickEvent)
	}
	if row.ClickEvent.Value != "/connect d8d5a9237b2043d8883b1150148d6955" {
		t.Errorf("click value = %q", row.ClickEvent.Value)
	}
	if len(row.Extra) != 1 || row.Extra[0].Text != " offline" {
		t.Errorf("state = %+v", row.Extra)
	}
}
