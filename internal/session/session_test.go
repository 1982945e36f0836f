package session

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"net"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/blockhost/classicd/internal/protocol"
	"github.com/blockhost/classicd/internal/world"
)

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func encodeIdentification(username, key string) []byte {
	buf := make([]byte, 131)
	buf[0] = protocol.OpPlayerIdentification
	buf[1] = protocol.ProtocolVersion
	u := protocol.EncodeString64(username)
	copy(buf[2:66], u[:])
	k := protocol.EncodeString64(key)
	copy(buf[66:130], k[:])
	return buf
}

func encodeSetBlock(x, y, z int16, mode, block byte) []byte {
	buf := make([]byte, 9)
	buf[0] = protocol.OpSetBlockClient
	putI16(buf[1:3], x)
	putI16(buf[3:5], y)
	putI16(buf[5:7], z)
	buf[7] = mode
	buf[8] = block
	return buf
}

func encodePositionOrientation(x, y, z int16, yaw, pitch byte) []byte {
	buf := make([]byte, 10)
	buf[0] = protocol.OpPositionOrientation
	putI16(buf[2:4], x)
	putI16(buf[4:6], y)
	putI16(buf[6:8], z)
	buf[8] = yaw
	buf[9] = pitch
	return buf
}

func encodeMessage(text string) []byte {
	buf := make([]byte, 66)
	buf[0] = protocol.OpMessageClient
	b := protocol.EncodeString64(text)
	copy(buf[2:66], b[:])
	return buf
}

func putI16(buf []byte, v int16) {
	u := uint16(v)
	buf[0] = byte(u >> 8)
	buf[1] = byte(u)
}

func readExact(t *testing.T, r io.Reader, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("readExact(%d): %v", n, err)
	}
	return buf
}

func newTestWorld() *world.World {
	return world.New("test", 4, 4, 4, "tester", "flat")
}

// TestBootstrapNonOnlineMode exercises S1: a well-formed identification
// with online mode disabled completes the whole streaming handshake.
func TestBootstrapNonOnlineMode(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	s := New(server, 1, newTestWorld(), discardLogger(), Identity{ServerName: "S", MOTD: "M"})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Bootstrap() }()

	go func() {
		_, _ = client.Write(encodeIdentification("Alice", ""))
	}()

	readExact(t, client, 131) // ServerIdentification
	readExact(t, client, 1)   // LevelInitialize

	for {
		hdr := readExact(t, client, 3) // opcode + length
		length := int(protocol.ReadI16(hdr[1:3]))
		body := readExact(t, client, protocol.LevelDataChunkSize+1) // payload + percent
		percent := body[protocol.LevelDataChunkSize]
		_ = length
		if percent == 100 {
			break
		}
	}
	readExact(t, client, 7)  // LevelFinalize
	readExact(t, client, 10) // PlayerTeleport

	if err := <-errCh; err != nil {
		t.Fatalf("Bootstrap() = %v, want nil", err)
	}
	if !s.LoggedIn {
		t.Fatal("LoggedIn = false after successful bootstrap")
	}
	if s.Username != "Alice" {
		t.Fatalf("Username = %q, want Alice", s.Username)
	}
}

// TestBootstrapOnlineModeSuccess exercises S2 with a correct key.
func TestBootstrapOnlineModeSuccess(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	salt := "saltsaltsaltsalt"
	username := "Bob"
	sum := md5.Sum([]byte(salt + username))
	key := hex.EncodeToString(sum[:])

	s := New(server, 1, newTestWorld(), discardLogger(), Identity{
		ServerName: "S", MOTD: "M", OnlineMode: true, Salt: salt,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Bootstrap() }()
	go func() { _, _ = client.Write(encodeIdentification(username, key)) }()

	readExact(t, client, 131)
	readExact(t, client, 1)
	for {
		_ = readExact(t, client, 3)
		body := readExact(t, client, protocol.LevelDataChunkSize+1)
		if body[protocol.LevelDataChunkSize] == 100 {
			break
		}
	}
	readExact(t, client, 7)
	readExact(t, client, 10)

	if err := <-errCh; err != nil {
		t.Fatalf("Bootstrap() = %v, want nil", err)
	}
}

// TestBootstrapOnlineModeFailure exercises S2's rejection path: a
// mismatched key gets a DisconnectPlayer and the socket closed.
func TestBootstrapOnlineModeFailure(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	s := New(server, 1, newTestWorld(), discardLogger(), Identity{
		ServerName: "S", MOTD: "M", OnlineMode: true, Salt: "saltsaltsaltsalt",
	})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Bootstrap() }()
	go func() { _, _ = client.Write(encodeIdentification("Carol", "wrongkey")) }()

	disconnect := readExact(t, client, 65) // opcode + 64-byte reason
	if disconnect[0] != protocol.OpDisconnectPlayer {
		t.Fatalf("opcode = %#x, want DisconnectPlayer", disconnect[0])
	}

	if err := <-errCh; err != ErrAuthFailed {
		t.Fatalf("Bootstrap() = %v, want ErrAuthFailed", err)
	}
}

// TestBootstrapEmptyUsername exercises the empty-username rejection.
func TestBootstrapEmptyUsername(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	s := New(server, 1, newTestWorld(), discardLogger(), Identity{ServerName: "S", MOTD: "M"})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Bootstrap() }()
	_, _ = client.Write(encodeIdentification("", ""))

	if err := <-errCh; err != ErrEmptyUsername {
		t.Fatalf("Bootstrap() = %v, want ErrEmptyUsername", err)
	}
}

// activeSession builds a Session already past bootstrap, wired to a
// net.Pipe so Advance's flushed echo can be observed from the test.
func activeSession(t *testing.T, w *world.World) (*Session, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	s := New(server, 2, w, discardLogger(), Identity{ServerName: "S", MOTD: "M"})
	s.LoggedIn = true
	s.Username = "Alice"
	return s, client
}

// TestAdvanceSetBlockEchoesAndBroadcasts covers the SetBlock path:
// the effective write is echoed to the actor and returned for
// broadcast.
func TestAdvanceSetBlockEchoesAndBroadcasts(t *testing.T) {
	w := newTestWorld()
	s, client := activeSession(t, w)
	defer client.Close()

	s.inbox <- encodeSetBlock(1, 1, 1, 1, byte(world.Stone))

	resultCh := make(chan Result, 1)
	go func() { resultCh <- s.Advance() }()

	out := readExact(t, client, 17) // clear-prediction SetBlock + effective SetBlock (8 bytes each) + Ping (1 byte)
	if out[0] != protocol.OpSetBlockServer {
		t.Fatalf("echo opcode = %#x, want SetBlock", out[0])
	}
	if out[8] != protocol.OpSetBlockServer {
		t.Fatalf("second echo opcode = %#x, want SetBlock", out[8])
	}
	if out[len(out)-1] != protocol.OpPing {
		t.Fatalf("trailing opcode = %#x, want Ping", out[len(out)-1])
	}

	res := <-resultCh
	if len(res.Broadcast) != 1 {
		t.Fatalf("len(Broadcast) = %d, want 1", len(res.Broadcast))
	}
	if res.Broadcast[0].Opcode != protocol.OpSetBlockServer {
		t.Fatalf("broadcast opcode = %#x, want SetBlock", res.Broadcast[0].Opcode)
	}

	if got := w.GetBlock(1, 1, 1); got != world.Stone {
		t.Fatalf("world block = %v, want Stone", got)
	}
}

// TestAdvanceBedrockFloorRejected covers the bedrock-immunity edge
// case: a request to edit y=0 is rewritten to Bedrock in the echo.
func TestAdvanceBedrockFloorRejected(t *testing.T) {
	w := newTestWorld()
	s, client := activeSession(t, w)
	defer client.Close()

	s.inbox <- encodeSetBlock(1, 0, 1, 1, byte(world.Stone))

	resultCh := make(chan Result, 1)
	go func() { resultCh <- s.Advance() }()

	out := readExact(t, client, 17) // clear-prediction SetBlock + effective (rejected to Bedrock) + Ping
	if out[15] != world.Bedrock.Byte() {
		t.Fatalf("echoed block = %#x, want Bedrock", out[15])
	}
	<-resultCh

	if got := w.GetBlock(1, 0, 1); got != world.Bedrock {
		t.Fatalf("world block = %v, want Bedrock", got)
	}
}

// TestAdvanceBreakBedrockRejectedOutright covers a break (mode 0)
// against the bedrock floor: no world mutation call is made and
// nothing is broadcast, only a rejection echo.
func TestAdvanceBreakBedrockRejectedOutright(t *testing.T) {
	w := newTestWorld()
	s, client := activeSession(t, w)
	defer client.Close()

	s.inbox <- encodeSetBlock(1, 0, 1, 0, 0)

	resultCh := make(chan Result, 1)
	go func() { resultCh <- s.Advance() }()

	out := readExact(t, client, 9) // one SetBlock rejection (8 bytes) + Ping
	if out[8-1] != world.Bedrock.Byte() {
		t.Fatalf("echoed block = %#x, want Bedrock", out[7])
	}

	res := <-resultCh
	if len(res.Broadcast) != 0 {
		t.Fatalf("len(Broadcast) = %d, want 0", len(res.Broadcast))
	}
}

// TestAdvancePositionDeltaBoundary exercises the movement
// classification boundary: dx=16 stays a PositionUpdate, dx=17 forces
// a PlayerTeleport.
func TestAdvancePositionDeltaBoundary(t *testing.T) {
	w := newTestWorld()

	t.Run("within bound", func(t *testing.T) {
		s, client := activeSession(t, w)
		defer client.Close()
		s.X, s.Y, s.Z = 0, 0, 0 // packet Y of -3 plus the +3 eye-height offset lands at the stored 0, so only x moves

		s.inbox <- encodePositionOrientation(16, -3, 0, 0, 0)
		resultCh := make(chan Result, 1)
		go func() { resultCh <- s.Advance() }()
		readExact(t, client, 1) // Ping only; no echo for movement

		res := <-resultCh
		if len(res.Broadcast) != 1 || res.Broadcast[0].Opcode != protocol.OpPositionUpdate {
			t.Fatalf("Broadcast = %+v, want one PositionUpdate", res.Broadcast)
		}
	})

	t.Run("exceeds bound", func(t *testing.T) {
		s, client := activeSession(t, w)
		defer client.Close()
		s.X, s.Y, s.Z = 0, 0, 0

		s.inbox <- encodePositionOrientation(17, -3, 0, 0, 0)
		resultCh := make(chan Result, 1)
		go func() { resultCh <- s.Advance() }()
		readExact(t, client, 1)

		res := <-resultCh
		if len(res.Broadcast) != 1 || res.Broadcast[0].Opcode != protocol.OpPlayerTeleport {
			t.Fatalf("Broadcast = %+v, want one PlayerTeleport", res.Broadcast)
		}
	})
}

// TestAdvanceMessageEchoesAndBroadcasts covers chat formatting: the
// sender gets its own formatted line echoed and it is also broadcast.
func TestAdvanceMessageEchoesAndBroadcasts(t *testing.T) {
	w := newTestWorld()
	s, client := activeSession(t, w)
	defer client.Close()

	s.inbox <- encodeMessage("hello   world")

	resultCh := make(chan Result, 1)
	go func() { resultCh <- s.Advance() }()

	out := readExact(t, client, 67) // Message (66 bytes) + Ping (1 byte)
	if out[0] != protocol.OpMessageServer {
		t.Fatalf("echo opcode = %#x, want Message", out[0])
	}
	text := protocol.TrimString64(out[2:66])
	if text != "<Alice>: hello world" {
		t.Fatalf("text = %q, want \"<Alice>: hello world\"", text)
	}

	res := <-resultCh
	if len(res.Broadcast) != 1 {
		t.Fatalf("len(Broadcast) = %d, want 1", len(res.Broadcast))
	}
}

func TestFormatChatSplitsLongLines(t *testing.T) {
	long := ""
	for i := 0; i < 80; i++ {
		long += "x"
	}
	lines := formatChat("Alice", long)
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(lines))
	}
	for _, l := range lines {
		if len(l) > 64 {
			t.Fatalf("line length %d exceeds 64", len(l))
		}
	}
}
