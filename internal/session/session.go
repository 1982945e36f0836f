// Package session implements the per-connection Session state
// machine: login handshake, authentication, world bootstrap, and
// steady-state packet handling, per §4.3.
package session

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/blockhost/classicd/internal/protocol"
	"github.com/blockhost/classicd/internal/world"
)

// ErrAuthFailed is returned by Bootstrap when online-mode
// authentication fails; the caller has already been sent a
// DisconnectPlayer and its socket closed.
var ErrAuthFailed = errors.New("session: authentication failed")

// ErrEmptyUsername is returned by Bootstrap when the client supplies
// an empty username; the socket has already been closed.
var ErrEmptyUsername = errors.New("session: empty username")

const (
	userTypeStandard byte = 0x00
	userTypeOperator byte = 0x64
)

// Identity carries server-wide facts a Session needs to complete its
// handshake, independent of the Hub's roster bookkeeping.
type Identity struct {
	ServerName string
	MOTD       string
	OnlineMode bool
	Salt       string // 16-character alphanumeric, regenerated once at server start
}

// Session is one connected player's state, owned exclusively by its
// network connection.
type Session struct {
	ID   byte
	Conn net.Conn
	IP   string

	Username string
	UserType byte
	LoggedIn bool

	X, Y, Z    int16
	Yaw, Pitch byte
	Flying     bool

	world *world.World
	log   *logrus.Logger
	id    Identity

	writer   *protocol.BatchWriter
	inbox    chan []byte
	leftover []byte
}

// New constructs a Session bound to w, in the Accepting state. id is
// assigned by the Hub and must never be protocol.SelfID.
func New(conn net.Conn, id byte, w *world.World, log *logrus.Logger, ident Identity) *Session {
	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	return &Session{
		ID:       id,
		Conn:     conn,
		IP:       host,
		UserType: userTypeStandard,
		world:    w,
		log:      log,
		id:       ident,
		writer:   protocol.NewBatchWriter(conn),
		inbox:    make(chan []byte, 8),
	}
}

// StartReader launches the goroutine that feeds s.inbox with raw
// reads from the socket — the session's "initial socket read"
// suspension point (§5). It closes s.inbox when the connection ends.
func (s *Session) StartReader() {
	go func() {
		defer close(s.inbox)
		buf := make([]byte, protocol.ReadBufferSize)
		for {
			n, err := s.Conn.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				s.inbox <- chunk
			}
			if err != nil {
				return
			}
		}
	}()
}

// Bootstrap drives Identifying and Streaming: it reads the login
// packet directly (this happens before the session joins the Hub's
// tick loop), authenticates if online mode is enabled, and streams
// the world snapshot, finishing with the player's spawn teleport.
func (s *Session) Bootstrap() error {
	buf := make([]byte, 131) // total size of C→S PlayerIdentification
	if _, err := io.ReadFull(s.Conn, buf); err != nil {
		return fmt.Errorf("session: read identification: %w", err)
	}
	packets, _ := protocol.Decode(buf, false)
	if len(packets) != 1 {
		return fmt.Errorf("session: malformed identification packet")
	}
	ident, ok := packets[0].(protocol.PlayerIdentificationPacket)
	if !ok {
		return fmt.Errorf("session: expected PlayerIdentification, got %T", packets[0])
	}

	if ident.Username == "" {
		_ = s.Conn.Close()
		return ErrEmptyUsername
	}

	if s.id.OnlineMode {
		sum := md5.Sum([]byte(s.id.Salt + ident.Username))
		expected := hex.EncodeToString(sum[:])
		if expected != ident.Key {
			_ = s.writer.Write(protocol.DisconnectPlayer("You are not logged in to Minecraft"))
			_ = s.writer.Flush()
			_ = s.Conn.Close()
			return ErrAuthFailed
		}
	}

	s.Username = ident.Username

	if err := s.writer.Write(protocol.ServerIdentification(s.id.ServerName, s.id.MOTD, userTypeStandard)); err != nil {
		return err
	}
	if err := s.writer.Write(protocol.LevelInitialize()); err != nil {
		return err
	}
	if s.UserType == userTypeOperator {
		if err := s.writer.Write(protocol.UpdateUserType(userTypeOperator)); err != nil {
			return err
		}
	}

	if err := s.streamWorld(); err != nil {
		return err
	}

	s.LoggedIn = true
	return s.writer.Flush()
}

// streamWorld gzip-compresses the world snapshot and sends it as
// LevelDataChunk packets of exactly 1024 bytes, then LevelFinalize and
// the player's initial PlayerTeleport to world center, per §4.3.
func (s *Session) streamWorld() error {
	snapshot, err := s.world.GzipSnapshot()
	if err != nil {
		return fmt.Errorf("session: snapshot: %w", err)
	}

	total := len(snapshot)
	sent := 0
	for sent < total || total == 0 {
		var chunk [protocol.LevelDataChunkSize]byte
		n := copy(chunk[:], snapshot[sent:])
		sent += n

		percent := byte(0)
		if total > 0 {
			percent = byte((sent * 100) / total)
		}
		if err := s.writer.Write(protocol.LevelDataChunk(int16(n), chunk, percent)); err != nil {
			return err
		}
		if total == 0 || sent >= total {
			break
		}
	}

	sx, sy, sz := s.world.GetSize()
	if err := s.writer.Write(protocol.LevelFinalize(int16(sx), int16(sy), int16(sz))); err != nil {
		return err
	}

	s.X = int16((sx/2)*32 + 16)
	s.Y = int16((sy/2 + 2) * 32)
	s.Z = int16((sz/2)*32 + 16)
	s.Yaw, s.Pitch = 0, 0

	return s.writer.Write(protocol.PlayerTeleport(protocol.SelfID, s.X, s.Y, s.Z, s.Yaw, s.Pitch))
}

// SendDirect writes one or more packets straight to this session's
// connection and flushes once, outside the tick's own Advance call —
// used by the Hub for the join-visibility SpawnPlayer batch and for
// delivering a tick's broadcast fan-out.
func (s *Session) SendDirect(pkts ...*protocol.Packet) error {
	for _, p := range pkts {
		if err := s.writer.Write(p); err != nil {
			return err
		}
	}
	return s.writer.Flush()
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.Conn.Close()
}
