package protocol

// ReadBufferSize is the size of the fixed inbound read buffer: a
// canonical Ethernet MTU payload.
const ReadBufferSize = 1460

// WriteBufferSize is the size outbound packets are coalesced into
// before a flush.
const WriteBufferSize = 1460

// Decode frames buf into a sequence of server-bound packets. loggedIn
// controls whether a further PlayerIdentification opcode is treated as
// illegal post-login end-of-frame (per §4.1). It returns the decoded
// packets and the number of bytes consumed; any remaining bytes are a
// partial packet and must be preserved by the caller for the next read.
func Decode(buf []byte, loggedIn bool) (packets []Inbound, consumed int) {
	offset := 0
	for offset < len(buf) {
		opcode := buf[offset]

		if loggedIn && opcode == OpPlayerIdentification {
			break
		}

		size, ok := ServerBoundSize(opcode)
		if !ok {
			packets = append(packets, UnknownPacket{Opcode: opcode})
			offset++
			// The framer has no size for an unrecognized opcode, so it
			// cannot reliably locate the next packet boundary; stop
			// consuming this buffer.
			break
		}

		if size == 0 {
			break
		}

		if len(buf)-offset < size {
			break
		}

		packets = append(packets, decodeOne(opcode, buf[offset:offset+size]))
		offset += size
	}
	return packets, offset
}
