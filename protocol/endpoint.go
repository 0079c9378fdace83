package protocol

import "io"

// Dispatcher runs one command. It must consume exactly the command's
// arguments from args; an error abandons the rest of the frame.
type Dispatcher interface {
	Dispatch(id uint16, args *[]byte) error
}

// Sizes of the device side buffers
const (
	EndpointInputSize  = 256
	EndpointOutputSize = 512
)

// Endpoint is the device side of the link. It is fed raw bytes from the UART,
// runs the commands of every in-sequence frame and queues responses and ACKs
// for the main loop to write out. An Endpoint is used from a single goroutine.
type Endpoint struct {
	in    [EndpointInputSize]byte
	inLen int

	out    []byte
	outBuf [EndpointOutputSize]byte

	nextSeq  uint8
	dispatch Dispatcher

	resetCallback func()

	errors  uint32
	dropped uint32
}

// NewEndpoint creates an endpoint expecting the host's first sequence
func NewEndpoint(d Dispatcher) *Endpoint {
	e := &Endpoint{
		nextSeq:  SeqDest,
		dispatch: d,
	}
	e.out = e.outBuf[:0]
	return e
}

// SetDispatcher replaces the command dispatcher
func (e *Endpoint) SetDispatcher(d Dispatcher) {
	e.dispatch = d
}

// SetResetCallback sets a function called when the host restarts its sequence
func (e *Endpoint) SetResetCallback(callback func()) {
	e.resetCallback = callback
}

// Receive appends data to the input buffer and processes complete frames.
// It returns how many bytes were accepted; the rest did not fit and is dropped.
func (e *Endpoint) Receive(data []byte) int {
	accepted := 0
	for len(data) > 0 {
		n := copy(e.in[e.inLen:], data)
		e.inLen += n
		accepted += n
		data = data[n:]
		e.process()
		if n == 0 {
			// a full buffer that holds no frame is garbage
			e.dropped += uint32(e.inLen)
			e.inLen = 0
		}
	}
	return accepted
}

func (e *Endpoint) process() {
	buf := e.in[:e.inLen]
	for len(buf) > 0 {
		f, n, ok := NextFrame(buf)
		if ok {
			e.handleFrame(f)
		} else if n > 0 {
			e.dropped += uint32(n)
		}
		if n == 0 {
			break
		}
		buf = buf[n:]
	}
	e.inLen = copy(e.in[:], buf)
}

func (e *Endpoint) handleFrame(f Frame) {
	if f.IsAck() {
		return
	}
	if f.Sequence == SeqDest && e.nextSeq != SeqDest {
		e.nextSeq = SeqDest
		if e.resetCallback != nil {
			e.resetCallback()
		}
	}
	if f.Sequence == e.nextSeq {
		e.nextSeq = NextSeq(e.nextSeq)
		e.runCommands(f.Payload)
	}
	// ACK always goes out, so a retransmission learns the expected sequence
	e.out, _ = AppendFrame(e.out, e.nextSeq, nil)
}

func (e *Endpoint) runCommands(payload []byte) {
	for len(payload) > 0 {
		id, err := ReadVLQUint(&payload)
		if err != nil {
			e.errors++
			return
		}
		if e.dispatch == nil {
			return
		}
		if err := e.dispatch.Dispatch(uint16(id), &payload); err != nil {
			e.errors++
			return
		}
	}
}

// Respond queues a response message. args appends the encoded arguments.
func (e *Endpoint) Respond(id uint16, args func(dst []byte) []byte) {
	var scratch [PayloadMax]byte
	payload := AppendVLQUint(scratch[:0], uint32(id))
	if args != nil {
		payload = args(payload)
	}
	out, err := AppendFrame(e.out, e.nextSeq, payload)
	if err != nil {
		e.errors++
		return
	}
	e.out = out
}

// Pending returns the queued output without consuming it
func (e *Endpoint) Pending() []byte {
	return e.out
}

// Flush writes all queued output to w
func (e *Endpoint) Flush(w io.Writer) error {
	for len(e.out) > 0 {
		n, err := w.Write(e.out)
		e.out = e.out[n:]
		if err != nil {
			e.out = e.outBuf[:0]
			return err
		}
	}
	e.out = e.outBuf[:0]
	return nil
}

// Reset clears buffered input and output and restarts the sequence
func (e *Endpoint) Reset() {
	e.inLen = 0
	e.out = e.outBuf[:0]
	e.nextSeq = SeqDest
}

// Errors returns the number of malformed or failed commands
func (e *Endpoint) Errors() uint32 {
	return e.errors
}

// Dropped returns the number of input bytes discarded while resynchronising
func (e *Endpoint) Dropped() uint32 {
	return e.dropped
}
