package protocol

// Server-bound (client → server) opcodes.
const (
	OpPlayerIdentification  byte = 0x00
	OpSetBlockClient        byte = 0x05
	OpPositionOrientation   byte = 0x08
	OpMessageClient         byte = 0x0D
)

// Client-bound (server → client) opcodes.
const (
	OpServerIdentification         byte = 0x00
	OpPing                         byte = 0x01
	OpLevelInitialize              byte = 0x02
	OpLevelDataChunk               byte = 0x03
	OpLevelFinalize                byte = 0x04
	OpSetBlockServer               byte = 0x06
	OpSpawnPlayer                  byte = 0x07
	OpPlayerTeleport               byte = 0x08
	OpPositionAndOrientationUpdate byte = 0x09
	OpPositionUpdate               byte = 0x0A
	OpOrientationUpdate            byte = 0x0B
	OpDespawnPlayer                byte = 0x0C
	OpMessageServer                byte = 0x0D
	OpDisconnectPlayer             byte = 0x0E
	OpUpdateUserType               byte = 0x0F
)

// SelfID is the canonical "this is you" player id used in
// PlayerTeleport during bootstrap and as the console's chat sender id.
const SelfID byte = 0xFF

// ConsoleName is the display name used for server-originated chat.
const ConsoleName = "Console"

// serverBoundSize maps a server-bound opcode to its total wire size,
// including the leading opcode byte. An opcode missing from this map
// cannot be framed and is classified Unknown.
var serverBoundSize = map[byte]int{
	OpPlayerIdentification: 131,
	OpSetBlockClient:       9,
	OpPositionOrientation:  10,
	OpMessageClient:        66,
}

// ServerBoundSize returns the total packet size (including opcode) for
// a server-bound opcode, and whether that opcode is recognized.
func ServerBoundSize(opcode byte) (int, bool) {
	n, ok := serverBoundSize[opcode]
	return n, ok
}
