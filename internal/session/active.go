package session

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/blockhost/classicd/internal/protocol"
	"github.com/blockhost/classicd/internal/world"
)

// deltaFits reports whether a single coordinate delta can travel in
// the compact PositionUpdate/PositionAndOrientationUpdate packets. The
// boundary is inclusive at 16 and exclusive at 17 (a move of exactly
// 16 units still rides the delta packet; 17 forces a PlayerTeleport),
// matching the session's movement classification test cases.
func deltaFits(d int) bool { return d >= -16 && d <= 16 }

// Result is what one call to Advance produced: packets to broadcast to
// every other session this tick, and whether the session has ended.
type Result struct {
	Broadcast  []*protocol.Packet
	Terminated bool
	Fatal      bool
	Err        error
}

// Advance performs one tick's worth of work for the session: take at
// most one chunk from the reader goroutine's channel (without
// blocking), handle each packet decoded from it, append the
// end-of-tick Ping, and flush the accumulated echo packets directly to
// the connection. It never blocks waiting for input.
func (s *Session) Advance() Result {
	var broadcast []*protocol.Packet

	select {
	case chunk, ok := <-s.inbox:
		if !ok {
			return s.terminate(nil)
		}
		combined := append(s.leftover, chunk...)
		packets, consumed := protocol.Decode(combined, s.LoggedIn)
		remainder := make([]byte, len(combined)-consumed)
		copy(remainder, combined[consumed:])
		s.leftover = remainder

		for _, pkt := range packets {
			broadcast = append(broadcast, s.handle(pkt)...)
		}
	default:
	}

	if err := s.writer.Write(protocol.Ping()); err != nil {
		return s.terminate(err)
	}
	if err := s.writer.Flush(); err != nil {
		return s.terminate(err)
	}

	return Result{Broadcast: broadcast}
}

// terminate classifies err per §4.3's Terminating state: end of
// stream, a reset or aborted connection, a closed one, or a broken
// pipe end the session normally; any other I/O error is treated as
// fatal to the process.
func (s *Session) terminate(err error) Result {
	if err == nil || isExpectedDisconnect(err) {
		return Result{Terminated: true, Err: err}
	}
	return Result{Terminated: true, Fatal: true, Err: err}
}

func isExpectedDisconnect(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EPIPE)
}

// handle dispatches one decoded packet and returns whatever broadcast
// packets it produces. Echo packets (if any) are queued on this
// session's own writer here and flushed by Advance, ahead of the
// broadcast fan-out the Hub performs at the end of the tick, so a session always
// observes the effect of its own action before any other session's.
func (s *Session) handle(pkt protocol.Inbound) []*protocol.Packet {
	switch p := pkt.(type) {
	case protocol.SetBlockPacket:
		return s.handleSetBlock(p)
	case protocol.PositionOrientationPacket:
		return s.handlePosition(p)
	case protocol.MessagePacket:
		return s.handleMessage(p)
	case protocol.UnknownPacket:
		s.log.WithFields(map[string]interface{}{
			"session": s.ID,
			"opcode":  fmt.Sprintf("0x%02X", p.Opcode),
		}).Debug("unknown opcode")
		return nil
	default:
		return nil
	}
}

// handleSetBlock applies a break (mode 0) or place (mode 1) request.
// A break against Bedrock is rejected outright with no world mutation.
// A place always echoes an Air packet at the requested cell first, to
// clear the client's local prediction, followed by the effective
// write; only the effective write is ever broadcast to other sessions.
func (s *Session) handleSetBlock(p protocol.SetBlockPacket) []*protocol.Packet {
	x, y, z := int(p.X), int(p.Y), int(p.Z)

	if p.Mode == 0 {
		if s.world.GetBlock(x, y, z) == world.Bedrock {
			_ = s.writer.Write(protocol.SetBlock(p.X, p.Y, p.Z, world.Bedrock.Byte()))
			return nil
		}

		ex, ey, ez, eff := s.world.SetBlock(x, y, z, world.Air)
		pkt := protocol.SetBlock(int16(ex), int16(ey), int16(ez), eff.Byte())
		_ = s.writer.Write(pkt)
		return []*protocol.Packet{pkt}
	}

	ex, ey, ez, eff := s.world.SetBlock(x, y, z, world.BlockFromByte(p.Block))
	_ = s.writer.Write(protocol.SetBlock(p.X, p.Y, p.Z, world.Air.Byte()))
	pkt := protocol.SetBlock(int16(ex), int16(ey), int16(ez), eff.Byte())
	_ = s.writer.Write(pkt)
	return []*protocol.Packet{pkt}
}

// handlePosition classifies the movement relative to the session's
// last stored pose per §4.3, stores the new pose unconditionally, and
// returns the matching broadcast packet (or none, if nothing moved).
func (s *Session) handlePosition(p protocol.PositionOrientationPacket) []*protocol.Packet {
	newX := int16(p.X)
	newY := int16(p.Y) + 3 // compensate for the client's eye-height convention
	newZ := int16(p.Z)

	dx := int(newX) - int(s.X)
	dy := int(newY) - int(s.Y)
	dz := int(newZ) - int(s.Z)

	posChanged := dx != 0 || dy != 0 || dz != 0
	oriChanged := p.Yaw != s.Yaw || p.Pitch != s.Pitch

	s.X, s.Y, s.Z = newX, newY, newZ
	s.Yaw, s.Pitch = p.Yaw, p.Pitch

	var pkt *protocol.Packet
	switch {
	case posChanged && oriChanged:
		if deltaFits(dx) && deltaFits(dy) && deltaFits(dz) {
			pkt = protocol.PositionAndOrientationUpdate(s.ID, int8(dx), int8(dy), int8(dz), p.Yaw, p.Pitch)
		} else {
			pkt = protocol.PlayerTeleport(s.ID, newX, newY, newZ, p.Yaw, p.Pitch)
		}
	case posChanged:
		if deltaFits(dx) && deltaFits(dy) && deltaFits(dz) {
			pkt = protocol.PositionUpdate(s.ID, int8(dx), int8(dy), int8(dz))
		} else {
			pkt = protocol.PlayerTeleport(s.ID, newX, newY, newZ, p.Yaw, p.Pitch)
		}
	case oriChanged:
		pkt = protocol.OrientationUpdate(s.ID, p.Yaw, p.Pitch)
	default:
		return nil
	}
	return []*protocol.Packet{pkt}
}

// handleMessage formats the chat line per §4.3 and returns it as a
// sequence of Message packets, each at most 64 bytes, the continuation
// chunks carrying no repeated prefix.
func (s *Session) handleMessage(p protocol.MessagePacket) []*protocol.Packet {
	lines := formatChat(s.Username, p.Text)
	out := make([]*protocol.Packet, 0, len(lines))
	for _, line := range lines {
		pkt := protocol.Message(s.ID, line)
		_ = s.writer.Write(pkt)
		out = append(out, pkt)
	}
	return out
}
