package protocol

import "testing"

func TestServerIdentificationRoundTrip(t *testing.T) {
	pkt := ServerIdentification("A Server", "A MOTD", 0x00)
	b := pkt.Bytes()

	if b[0] != OpServerIdentification {
		t.Fatalf("opcode = %#x, want %#x", b[0], OpServerIdentification)
	}
	// opcode + u8 protocol + 64 + 64 + u8 userType
	want := 1 + 1 + 64 + 64 + 1
	if len(b) != want {
		t.Fatalf("len = %d, want %d", len(b), want)
	}
	if b[1] != ProtocolVersion {
		t.Fatalf("protocol = %d, want %d", b[1], ProtocolVersion)
	}
}

func TestFramingExactPackets(t *testing.T) {
	var buf []byte
	buf = append(buf, encodeSetBlock(1, 2, 3, 0, 4)...)
	buf = append(buf, encodePositionOrientation(16, 0, 0, 0, 0)...)
	buf = append(buf, encodeMessage("hello")...)

	packets, consumed := Decode(buf, true)
	if len(packets) != 3 {
		t.Fatalf("len(packets) = %d, want 3", len(packets))
	}
	if consumed != len(buf) {
		t.Fatalf("consumed = %d, want %d", consumed, len(buf))
	}

	sb, ok := packets[0].(SetBlockPacket)
	if !ok {
		t.Fatalf("packets[0] = %T, want SetBlockPacket", packets[0])
	}
	if sb.X != 1 || sb.Y != 2 || sb.Z != 3 || sb.Block != 4 {
		t.Fatalf("unexpected decode: %+v", sb)
	}
}

func TestFramingTrailingPartialNotConsumed(t *testing.T) {
	full := encodeSetBlock(1, 2, 3, 0, 4)
	partial := full[:5] // short of the 9-byte SetBlock size

	packets, consumed := Decode(partial, true)
	if len(packets) != 0 {
		t.Fatalf("len(packets) = %d, want 0", len(packets))
	}
	if consumed != 0 {
		t.Fatalf("consumed = %d, want 0", consumed)
	}
}

func TestFramingPostLoginIdentificationEndsFrame(t *testing.T) {
	var buf []byte
	buf = append(buf, encodeMessage("hi")...)
	buf = append(buf, make([]byte, 131)...) // a bogus 0x00 PlayerIdentification

	packets, consumed := Decode(buf, true)
	if len(packets) != 1 {
		t.Fatalf("len(packets) = %d, want 1", len(packets))
	}
	if consumed != 66 {
		t.Fatalf("consumed = %d, want 66", consumed)
	}
}

func TestUnknownOpcodeStopsFraming(t *testing.T) {
	buf := []byte{0xFE, 1, 2, 3}
	packets, consumed := Decode(buf, false)
	if len(packets) != 1 {
		t.Fatalf("len(packets) = %d, want 1", len(packets))
	}
	if _, ok := packets[0].(UnknownPacket); !ok {
		t.Fatalf("packets[0] = %T, want UnknownPacket", packets[0])
	}
	if consumed != 1 {
		t.Fatalf("consumed = %d, want 1", consumed)
	}
}

// --- test helpers mirroring the client-bound encoders but for the
// server-bound wire shapes, since this package only exposes decoders
// for those. ---

func encodeSetBlock(x, y, z int16, mode, block byte) []byte {
	buf := make([]byte, 9)
	buf[0] = OpSetBlockClient
	putI16(buf[1:3], x)
	putI16(buf[3:5], y)
	putI16(buf[5:7], z)
	buf[7] = mode
	buf[8] = block
	return buf
}

func encodePositionOrientation(x, y, z int16, yaw, pitch byte) []byte {
	buf := make([]byte, 10)
	buf[0] = OpPositionOrientation
	putI16(buf[2:4], x)
	putI16(buf[4:6], y)
	putI16(buf[6:8], z)
	buf[8] = yaw
	buf[9] = pitch
	return buf
}

func encodeMessage(text string) []byte {
	buf := make([]byte, 66)
	buf[0] = OpMessageClient
	b := EncodeString64(text)
	copy(buf[2:66], b[:])
	return buf
}

func putI16(buf []byte, v int16) {
	u := uint16(v)
	buf[0] = byte(u >> 8)
	buf[1] = byte(u)
}
