package protocol

import "io"

// rawBytes wraps a fixed-size byte slice so it satisfies io.WriterTo,
// for packet bodies (like a LevelDataChunk's 1024-byte payload) that
// are already framed.
type rawBytes []byte

func (r rawBytes) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r)
	return int64(n), err
}

// ServerIdentification builds the S→C 0x00 packet.
func ServerIdentification(name, motd string, userType byte) *Packet {
	return NewPacket(OpServerIdentification,
		U8(ProtocolVersion),
		String64(name),
		String64(motd),
		U8(userType),
	)
}

// Ping builds the S→C 0x01 keep-alive packet.
func Ping() *Packet {
	return NewPacket(OpPing)
}

// LevelInitialize builds the S→C 0x02 packet.
func LevelInitialize() *Packet {
	return NewPacket(OpLevelInitialize)
}

// LevelDataChunkSize is the fixed payload size of a LevelDataChunk.
const LevelDataChunkSize = 1024

// LevelDataChunk builds the S→C 0x03 packet. data must be exactly
// LevelDataChunkSize bytes (zero-padded by the caller for the final
// chunk); length is the number of meaningful bytes within data.
func LevelDataChunk(length int16, data [LevelDataChunkSize]byte, percent byte) *Packet {
	return NewPacket(OpLevelDataChunk,
		I16(length),
		rawBytes(data[:]),
		U8(percent),
	)
}

// LevelFinalize builds the S→C 0x04 packet.
func LevelFinalize(x, y, z int16) *Packet {
	return NewPacket(OpLevelFinalize, I16(x), I16(y), I16(z))
}

// SetBlock builds the S→C 0x06 packet.
func SetBlock(x, y, z int16, block byte) *Packet {
	return NewPacket(OpSetBlockServer, I16(x), I16(y), I16(z), U8(block))
}

// SpawnPlayer builds the S→C 0x07 packet.
func SpawnPlayer(id byte, name string, x, y, z int16, yaw, pitch byte) *Packet {
	return NewPacket(OpSpawnPlayer,
		U8(id), String64(name),
		I16(x), I16(y), I16(z),
		U8(yaw), U8(pitch),
	)
}

// PlayerTeleport builds the S→C 0x08 packet.
func PlayerTeleport(id byte, x, y, z int16, yaw, pitch byte) *Packet {
	return NewPacket(OpPlayerTeleport,
		U8(id), I16(x), I16(y), I16(z), U8(yaw), U8(pitch),
	)
}

// PositionAndOrientationUpdate builds the S→C 0x09 packet. dx/dy/dz
// must each fit in a signed 8-bit delta; callers decide that before
// calling (see session's movement classification).
func PositionAndOrientationUpdate(id byte, dx, dy, dz int8, yaw, pitch byte) *Packet {
	return NewPacket(OpPositionAndOrientationUpdate,
		U8(id), I8(dx), I8(dy), I8(dz), U8(yaw), U8(pitch),
	)
}

// PositionUpdate builds the S→C 0x0A packet.
func PositionUpdate(id byte, dx, dy, dz int8) *Packet {
	return NewPacket(OpPositionUpdate, U8(id), I8(dx), I8(dy), I8(dz))
}

// OrientationUpdate builds the S→C 0x0B packet.
func OrientationUpdate(id byte, yaw, pitch byte) *Packet {
	return NewPacket(OpOrientationUpdate, U8(id), U8(yaw), U8(pitch))
}

// DespawnPlayer builds the S→C 0x0C packet.
func DespawnPlayer(id byte) *Packet {
	return NewPacket(OpDespawnPlayer, U8(id))
}

// Message builds the S→C 0x0D packet.
func Message(id byte, text string) *Packet {
	return NewPacket(OpMessageServer, U8(id), String64(text))
}

// DisconnectPlayer builds the S→C 0x0E packet.
func DisconnectPlayer(reason string) *Packet {
	return NewPacket(OpDisconnectPlayer, String64(reason))
}

// UpdateUserType builds the S→C 0x0F packet.
func UpdateUserType(userType byte) *Packet {
	return NewPacket(OpUpdateUserType, U8(userType))
}
