package protocol

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// DefaultTimeout is how long Send waits for an ACK
const DefaultTimeout = 2 * time.Second

var ErrClosed = errors.New("client closed")

// Message is a response frame received from the device
type Message struct {
	Sequence uint8
	Payload  []byte
}

// ID decodes the response ID and returns it with the remaining arguments
func (m *Message) ID() (uint16, []byte, error) {
	args := m.Payload
	id, err := ReadVLQUint(&args)
	if err != nil {
		return 0, nil, err
	}
	return uint16(id), args, nil
}

// Client is the host side of the link. It sends one command frame at a time,
// waits for the device ACK and hands responses out through Receive.
type Client struct {
	port io.ReadWriteCloser

	sendMu sync.Mutex
	seq    uint8

	acks      chan Frame
	responses chan *Message

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient starts the background reader on port
func NewClient(port io.ReadWriteCloser) *Client {
	c := &Client{
		port:      port,
		seq:       SeqDest,
		acks:      make(chan Frame, 4),
		responses: make(chan *Message, 16),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Send sends one command and waits DefaultTimeout for its ACK
func (c *Client) Send(id uint16, args func(dst []byte) []byte) error {
	return c.SendTimeout(id, args, DefaultTimeout)
}

// SendTimeout sends one command and waits up to timeout for its ACK
func (c *Client) SendTimeout(id uint16, args func(dst []byte) []byte, timeout time.Duration) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	payload := AppendVLQUint(nil, uint32(id))
	if args != nil {
		payload = args(payload)
	}
	msg, err := AppendFrame(nil, c.seq, payload)
	if err != nil {
		return fmt.Errorf("failed to build command %d: %w", id, err)
	}

	// stale ACKs from an earlier timed out command
	for len(c.acks) > 0 {
		<-c.acks
	}

	if _, err := c.port.Write(msg); err != nil {
		return fmt.Errorf("failed to write command %d: %w", id, err)
	}
	return c.waitForAck(timeout)
}

func (c *Client) waitForAck(timeout time.Duration) error {
	want := NextSeq(c.seq)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-c.acks:
			if ack.Sequence == want {
				c.seq = want
				return nil
			}
			// device expects a different sequence; follow it
			sent := c.seq
			c.seq = ack.Sequence
			return fmt.Errorf("sequence mismatch: sent 0x%02x, device expects 0x%02x", sent, ack.Sequence)
		case <-timer.C:
			return fmt.Errorf("ACK timeout after %v", timeout)
		case <-c.stop:
			return ErrClosed
		}
	}
}

// Receive returns the next response, waiting up to timeout
func (c *Client) Receive(timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-c.responses:
		return msg, nil
	case <-timer.C:
		return nil, fmt.Errorf("response timeout after %v", timeout)
	case <-c.stop:
		return nil, ErrClosed
	}
}

// Discard drops every response not yet received
func (c *Client) Discard() {
	for {
		select {
		case <-c.responses:
		default:
			return
		}
	}
}

// Close stops the reader and closes the port
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		err = c.port.Close()
		<-c.done
	})
	return err
}

func (c *Client) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *Client) readLoop() {
	defer close(c.done)

	var pending []byte
	buf := make([]byte, 256)
	for {
		n, err := c.port.Read(buf)
		if c.stopped() {
			return
		}
		if n > 0 {
			pending = append(pending, buf[:n]...)
			pending = c.process(pending)
		}
		if err != nil {
			if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
				return
			}
			// serial ports report a read timeout as EOF
			if !errors.Is(err, io.EOF) {
				time.Sleep(10 * time.Millisecond)
			}
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}

// process dispatches every complete frame and returns the unconsumed tail
func (c *Client) process(data []byte) []byte {
	for len(data) > 0 {
		f, n, ok := NextFrame(data)
		if ok {
			c.dispatch(f)
		}
		if n == 0 {
			break
		}
		data = data[n:]
	}
	rest := make([]byte, len(data))
	copy(rest, data)
	return rest
}

func (c *Client) dispatch(f Frame) {
	if f.IsAck() {
		select {
		case c.acks <- f:
		default:
		}
		return
	}

	payload := make([]byte, len(f.Payload))
	copy(payload, f.Payload)
	msg := &Message{Sequence: f.Sequence, Payload: payload}

	select {
	case c.responses <- msg:
	default:
		// full: drop the oldest so the newest result is kept
		select {
		case <-c.responses:
		default:
		}
		c.responses <- msg
	}
}
