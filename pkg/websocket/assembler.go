package websocket

import "bytes"

// fragmentAssembler accumulates the frames of a (possibly fragmented) data
// message into a single payload, as defined in
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.4.
//
// [Conn.readMessage] creates one for each message it reads: append() is
// called for every data frame of the message, including the first one, and
// finish() returns the assembled payload and resets the assembler.
type fragmentAssembler struct {
	buf    bytes.Buffer
	opcode Opcode
	active bool
	max    int
}

// inProgress reports whether a message is currently being assembled, i.e.
// whether the last-seen data frame had its FIN bit clear.
func (a *fragmentAssembler) inProgress() bool {
	return a.active
}

// append adds the given frame to the message being assembled. op is the
// message's opcode ([OpcodeText] or [OpcodeBinary]); it's recorded from the
// first frame of a message and ignored for every frame after that.
func (a *fragmentAssembler) append(op Opcode, data []byte) error {
	if !a.active {
		a.opcode = op
		a.active = true
	}

	if len(data) > 0 {
		if a.max > 0 && a.buf.Len()+len(data) > a.max {
			size := uint64(a.buf.Len() + len(data)) //nolint:gosec // bounded by max, which is an int
			a.reset()
			return frameTooLargeErr(size)
		}
		a.buf.Write(data)
	}

	return nil
}

// finish returns the fully assembled opcode and payload, and resets the
// assembler so it's ready for the next message.
func (a *fragmentAssembler) finish() (Opcode, []byte) {
	op := a.opcode
	data := a.buf.Bytes()
	out := make([]byte, len(data))
	copy(out, data)

	a.reset()
	return op, out
}

func (a *fragmentAssembler) reset() {
	a.buf.Reset()
	a.opcode = opcodeContinuation
	a.active = false
}
