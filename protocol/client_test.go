package protocol

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// runDevice serves an endpoint on conn until the connection closes
func runDevice(conn net.Conn, ep *Endpoint) {
	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		ep.Receive(buf[:n])
		if err := ep.Flush(conn); err != nil {
			return
		}
	}
}

func newLinkedClient(t *testing.T) (*Client, *recordingDispatcher) {
	t.Helper()
	host, dev := net.Pipe()
	ep, d := newTestEndpoint()
	go runDevice(dev, ep)

	c := NewClient(host)
	t.Cleanup(func() {
		c.Close()
		dev.Close()
	})
	return c, d
}

func TestClientSendReceive(t *testing.T) {
	c, d := newLinkedClient(t)

	for i, angle := range []int32{0, 90, -45} {
		err := c.Send(CmdServoWrite, func(dst []byte) []byte {
			return AppendVLQ(dst, angle)
		})
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}

		msg, err := c.Receive(time.Second)
		if err != nil {
			t.Fatalf("receive %d: %v", i, err)
		}
		id, args, err := msg.ID()
		if err != nil || id != RespCommandResult {
			t.Fatalf("unexpected response id %d err %v", id, err)
		}
		cmd, _ := ReadVLQUint(&args)
		v, _ := ReadVLQ(&args)
		if uint16(cmd) != CmdServoWrite || v != angle {
			t.Errorf("echo cmd=%d v=%d, want %d %d", cmd, v, CmdServoWrite, angle)
		}
	}
	if len(d.calls) != 3 {
		t.Errorf("device ran %d commands, want 3", len(d.calls))
	}
}

func TestClientSequenceAdvances(t *testing.T) {
	c, _ := newLinkedClient(t)
	for i := 0; i < 20; i++ {
		if err := c.Send(CmdStartAll, func(dst []byte) []byte { return AppendVLQ(dst, 0) }); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		c.Discard()
	}
}

func TestClientAckTimeout(t *testing.T) {
	host, dev := net.Pipe()
	go io.Copy(io.Discard, dev)

	c := NewClient(host)
	defer func() {
		c.Close()
		dev.Close()
	}()

	err := c.SendTimeout(CmdStopAll, nil, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected ACK timeout")
	}
}

func TestClientReceiveTimeout(t *testing.T) {
	c, _ := newLinkedClient(t)
	if _, err := c.Receive(20 * time.Millisecond); err == nil {
		t.Error("expected response timeout")
	}
}

func TestClientClosed(t *testing.T) {
	c, _ := newLinkedClient(t)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := c.Receive(time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive after Close: %v", err)
	}
	// second Close is a no-op
	c.Close()
}
