package protocol

import "io"

// BatchWriter coalesces a sequence of outbound packets into
// WriteBufferSize buffers, flushing to the underlying writer whenever
// a packet would overflow the current buffer, and on Flush at the end
// of a per-tick batch.
type BatchWriter struct {
	w   io.Writer
	buf []byte
}

// NewBatchWriter wraps w.
func NewBatchWriter(w io.Writer) *BatchWriter {
	return &BatchWriter{w: w, buf: make([]byte, 0, WriteBufferSize)}
}

// Write appends a packet's encoded bytes to the current buffer,
// flushing first if they would not fit.
func (bw *BatchWriter) Write(p *Packet) error {
	b := p.Bytes()
	if len(bw.buf)+len(b) > WriteBufferSize {
		if err := bw.Flush(); err != nil {
			return err
		}
	}
	bw.buf = append(bw.buf, b...)
	return nil
}

// Flush writes any buffered bytes to the underlying writer.
func (bw *BatchWriter) Flush() error {
	if len(bw.buf) == 0 {
		return nil
	}
	_, err := bw.w.Write(bw.buf)
	bw.buf = bw.buf[:0]
	return err
}
