package protocol

import (
	"bytes"
	"io"
)

// Packet is a single client-bound wire packet being assembled. Unlike
// the teacher's modern-Minecraft Packet, there is no length prefix:
// the opcode alone determines the body size on both ends.
type Packet struct {
	Opcode byte
	body   bytes.Buffer
}

// NewPacket creates a packet with the given opcode, encoding each
// field in order into the packet body — the same composition style as
// the teacher's NewPacket(id, ...io.WriterTo).
func NewPacket(opcode byte, fields ...io.WriterTo) *Packet {
	p := &Packet{Opcode: opcode}
	for _, f := range fields {
		_, _ = f.WriteTo(&p.body)
	}
	return p
}

// Bytes returns the fully encoded packet (opcode followed by body).
func (p *Packet) Bytes() []byte {
	out := make([]byte, 0, 1+p.body.Len())
	out = append(out, p.Opcode)
	out = append(out, p.body.Bytes()...)
	return out
}

// WriteTo writes the encoded packet to w.
func (p *Packet) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.Bytes())
	return int64(n), err
}
