package gateway

import (
	"bytes"
	"compress/zlib"
	"errors"
	"io"
)

// zlibFlushSentinel is the four-byte trailer Z_SYNC_FLUSH appends to mark a
// byte-aligned, fully decodable boundary within a deflate stream.
var zlibFlushSentinel = []byte{0x00, 0x00, 0xff, 0xff}

// pendingBytes feeds a zlib/flate reader without ever reporting io.EOF: once
// drained it returns a zero-byte, nil-error read, so bufio's fill loop (which
// every compress/flate reader sits on) escalates to io.ErrNoProgress instead
// of treating the stream as finished. That's what lets the reader wrapping
// it pause cleanly between messages and resume once Feed appends the bytes
// of the next one, instead of needing to be rebuilt from the start each time.
type pendingBytes struct {
	buf []byte
}

func (p *pendingBytes) append(data []byte) {
	p.buf = append(p.buf, data...)
}

func (p *pendingBytes) Read(b []byte) (int, error) {
	if len(p.buf) == 0 {
		return 0, nil
	}
	n := copy(b, p.buf)
	p.buf = p.buf[n:]
	return n, nil
}

// Inflater decompresses the connection-long zlib stream the gateway sends
// binary frames through. A single Inflater must be used for the lifetime of
// one connection: every message is compressed into the SAME deflate stream,
// which is flushed (but never reset) after each message, so the compressed
// bytes of message N can only be decoded together with everything that came
// before it. The underlying zlib reader is created once, on the first
// complete message, and kept for the connection's lifetime; compressed bytes
// are discarded as soon as they're decoded instead of accumulating forever.
type Inflater struct {
	pending *pendingBytes
	zr      io.ReadCloser
}

// Feed appends a binary frame's payload to the stream. When the bytes fed
// since the last decoded message end with the sync-flush sentinel (even if
// the sentinel itself is split across frames), the newly available plaintext
// is returned. Otherwise Feed returns (nil, nil): the frame was a fragment of
// a larger compressed message and more data is needed before anything can be
// decoded.
func (in *Inflater) Feed(data []byte) ([]byte, error) {
	if in.pending == nil {
		in.pending = &pendingBytes{}
	}
	in.pending.append(data)

	if !endsWithFlushSentinel(in.pending.buf) {
		return nil, nil
	}

	if in.zr == nil {
		zr, err := zlib.NewReader(in.pending)
		if err != nil {
			return nil, badCompressionErr(err)
		}
		in.zr = zr
	}

	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := in.zr.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			// The pending reader never returns io.EOF, so this means the
			// flush boundary has been fully drained: every byte decodable
			// from what's been fed so far has been returned.
			if errors.Is(err, io.ErrNoProgress) {
				break
			}
			return nil, badCompressionErr(err)
		}
	}

	return out, nil
}

// Close releases the underlying zlib reader. It's a no-op if no message has
// ever been decoded.
func (in *Inflater) Close() error {
	if in.zr == nil {
		return nil
	}
	return in.zr.Close()
}

func endsWithFlushSentinel(data []byte) bool {
	return len(data) >= len(zlibFlushSentinel) && bytes.Equal(data[len(data)-len(zlibFlushSentinel):], zlibFlushSentinel)
}
