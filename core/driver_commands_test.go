package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"stm32drive/protocol"
)

// commandRig wires DriverCommands to a device endpoint with fake hardware
type commandRig struct {
	cmds     *DriverCommands
	endpoint *protocol.Endpoint
	table    *fakeTable
	periph   map[int]*fakePeripheral
	seq      uint8
}

func newCommandRig(t *testing.T) *commandRig {
	t.Helper()
	rig := &commandRig{
		table:  newFakeTable(),
		periph: make(map[int]*fakePeripheral),
		seq:    protocol.SeqDest,
	}
	rig.cmds = NewDriverCommands(DriverCommandsConfig{
		Peripherals: func(timer int) (TimerPeripheral, bool) {
			if !SupportedTimer(timer) {
				return nil, false
			}
			p, ok := rig.periph[timer]
			if !ok {
				p = &fakePeripheral{}
				rig.periph[timer] = p
			}
			return p, true
		},
		Registers: rig.table.lookup,
		Delay:     func(time.Duration) {},
	})
	rig.endpoint = protocol.NewEndpoint(rig.cmds)
	rig.cmds.SetResponder(rig.endpoint)
	return rig
}

// send frames one command and returns the decoded responses
func (r *commandRig) send(t *testing.T, id uint16, args ...int32) []decodedResponse {
	t.Helper()
	payload := protocol.AppendVLQUint(nil, uint32(id))
	for _, a := range args {
		payload = protocol.AppendVLQ(payload, a)
	}
	frame, err := protocol.AppendFrame(nil, r.seq, payload)
	if err != nil {
		t.Fatal(err)
	}
	r.seq = protocol.NextSeq(r.seq)
	r.endpoint.Receive(frame)

	out := r.endpoint.Pending()
	var resps []decodedResponse
	sawAck := false
	for len(out) > 0 {
		f, n, ok := protocol.NextFrame(out)
		if !ok {
			t.Fatalf("device produced an invalid frame: % x", out)
		}
		out = out[n:]
		if f.IsAck() {
			sawAck = true
			if f.Sequence != r.seq {
				t.Errorf("ACK sequence 0x%02x, want 0x%02x", f.Sequence, r.seq)
			}
			continue
		}
		p := f.Payload
		rid, err := protocol.ReadVLQUint(&p)
		if err != nil {
			t.Fatal(err)
		}
		resps = append(resps, decodedResponse{id: uint16(rid), args: p})
	}
	if !sawAck {
		t.Error("no ACK for command")
	}
	r.endpoint.Flush(discard{})
	return resps
}

type decodedResponse struct {
	id   uint16
	args []byte
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// resultCode extracts the command_result for cmd
func resultCode(t *testing.T, resps []decodedResponse, cmd uint16) uint8 {
	t.Helper()
	for _, r := range resps {
		if r.id != protocol.RespCommandResult {
			continue
		}
		args := r.args
		got, _ := protocol.ReadVLQUint(&args)
		code, _ := protocol.ReadVLQUint(&args)
		if uint16(got) == cmd {
			return uint8(code)
		}
	}
	t.Fatalf("no command_result for command %d in %v", cmd, resps)
	return 0
}

func TestCommandsWithoutDriver(t *testing.T) {
	rig := newCommandRig(t)

	resps := rig.send(t, protocol.CmdAttachChannel, 'S', 1)
	if code := resultCode(t, resps, protocol.CmdAttachChannel); code != ResultNoDriver {
		t.Errorf("attach without driver: code %d, want %d", code, ResultNoDriver)
	}
	resps = rig.send(t, protocol.CmdReleaseDriver)
	if code := resultCode(t, resps, protocol.CmdReleaseDriver); code != ResultNoDriver {
		t.Errorf("release without driver: code %d, want %d", code, ResultNoDriver)
	}
}

func TestCommandsServoScenario(t *testing.T) {
	rig := newCommandRig(t)

	steps := []struct {
		id   uint16
		args []int32
	}{
		{protocol.CmdConfigDriver, []int32{2}},
		{protocol.CmdAttachChannel, []int32{'S', 1}},
		{protocol.CmdStartAll, nil},
		{protocol.CmdServoWrite, []int32{'S', 90}},
	}
	for _, s := range steps {
		resps := rig.send(t, s.id, s.args...)
		if code := resultCode(t, resps, s.id); code != ResultOK {
			t.Fatalf("command %d: code %d", s.id, code)
		}
	}

	if got := rig.table.blocks[2].ccr[0]; got < 7.499 || got > 7.501 {
		t.Errorf("channel 1 duty = %v, want 7.5", got)
	}
	if calls := rig.periph[2].calls; len(calls) != 1 || calls[0] != "start1" {
		t.Errorf("peripheral calls %v, want [start1]", calls)
	}
}

func TestCommandsErrorCodes(t *testing.T) {
	rig := newCommandRig(t)
	rig.send(t, protocol.CmdConfigDriver, 3)

	testCases := []struct {
		name string
		id   uint16
		args []int32
		code uint8
	}{
		{"attach bad channel", protocol.CmdAttachChannel, []int32{'S', 5}, ResultInvalidChannel},
		{"attach empty identity", protocol.CmdAttachChannel, []int32{0, 1}, ResultInvalidIdentity},
		{"servo out of range", protocol.CmdServoWrite, []int32{'S', 181}, ResultOutOfRange},
		{"servo negative", protocol.CmdServoWrite, []int32{'S', -1}, ResultOutOfRange},
		{"motor unattached", protocol.CmdMotorWrite, []int32{'X', 50}, ResultIdentityNotFound},
		{"start bad channel", protocol.CmdStartPWM, []int32{0}, ResultInvalidChannel},
		{"stop bad channel", protocol.CmdStopPWM, []int32{9}, ResultInvalidChannel},
		{"duty bad channel", protocol.CmdWriteDuty, []int32{5, 1000}, ResultInvalidChannel},
		{"lookup unattached", protocol.CmdGetChannel, []int32{'Q'}, ResultIdentityNotFound},
		{"missing arguments", protocol.CmdServoWrite, []int32{'S'}, ResultMalformed},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resps := rig.send(t, tc.id, tc.args...)
			if code := resultCode(t, resps, tc.id); code != tc.code {
				t.Errorf("code %d, want %d", code, tc.code)
			}
		})
	}
	if rig.table.blocks[3].writes != 0 {
		t.Error("failed commands reached the compare registers")
	}
}

func TestCommandsUnknown(t *testing.T) {
	rig := newCommandRig(t)
	resps := rig.send(t, 42)
	if code := resultCode(t, resps, 42); code != ResultUnknown {
		t.Errorf("unknown command: code %d, want %d", code, ResultUnknown)
	}
	if rig.endpoint.Errors() != 1 {
		t.Errorf("expected 1 endpoint error, got %d", rig.endpoint.Errors())
	}
}

func TestCommandsConfigUnsupportedTimer(t *testing.T) {
	rig := newCommandRig(t)
	resps := rig.send(t, protocol.CmdConfigDriver, 15)
	if code := resultCode(t, resps, protocol.CmdConfigDriver); code != ResultUnsupportedTimer {
		t.Errorf("code %d, want %d", code, ResultUnsupportedTimer)
	}
	if rig.cmds.Driver() != nil {
		t.Error("driver should not exist")
	}
}

func TestCommandsReconfigureStopsOldDriver(t *testing.T) {
	rig := newCommandRig(t)
	rig.send(t, protocol.CmdConfigDriver, 2)
	rig.send(t, protocol.CmdAttachChannel, 'M', 2)
	rig.send(t, protocol.CmdStartAll)
	old := rig.cmds.Driver()

	rig.send(t, protocol.CmdConfigDriver, 4)
	if rig.cmds.Driver() == old || rig.cmds.Driver().Timer() != 4 {
		t.Fatal("driver was not replaced")
	}
	if err := old.Attach('A', 1); !errors.Is(err, ErrNoDriver) {
		t.Errorf("old driver still usable: %v", err)
	}
	calls := rig.periph[2].calls
	if len(calls) != 2 || calls[1] != "stop2" {
		t.Errorf("old timer calls %v, want [start2 stop2]", calls)
	}
}

func TestCommandsGetChannelAndStatus(t *testing.T) {
	rig := newCommandRig(t)
	rig.send(t, protocol.CmdConfigDriver, 2)
	rig.send(t, protocol.CmdAttachChannel, 'S', 3)
	rig.send(t, protocol.CmdStartPWM, 3)

	resps := rig.send(t, protocol.CmdGetChannel, 'S')
	var found bool
	for _, r := range resps {
		if r.id != protocol.RespChannelInfo {
			continue
		}
		args := r.args
		id, _ := protocol.ReadVLQUint(&args)
		ch, _ := protocol.ReadVLQUint(&args)
		if id != 'S' || ch != 3 {
			t.Errorf("channel_info identity=%c channel=%d, want S 3", rune(id), ch)
		}
		found = true
	}
	if !found {
		t.Error("no channel_info response")
	}

	resps = rig.send(t, protocol.CmdGetStatus)
	found = false
	for _, r := range resps {
		if r.id != protocol.RespDriverStatus {
			continue
		}
		args := r.args
		timer, _ := protocol.ReadVLQUint(&args)
		ids, _ := protocol.ReadVLQBytes(&args)
		running, _ := protocol.ReadVLQUint(&args)
		if timer != 2 {
			t.Errorf("timer %d, want 2", timer)
		}
		if string(ids) != "\x00\x00S\x00" {
			t.Errorf("identities %q", ids)
		}
		if running != 1<<2 {
			t.Errorf("running mask %b, want 100", running)
		}
		found = true
	}
	if !found {
		t.Error("no driver_status response")
	}
}

func TestCommandsWriteDutyScale(t *testing.T) {
	rig := newCommandRig(t)
	rig.send(t, protocol.CmdConfigDriver, 2)
	resps := rig.send(t, protocol.CmdWriteDuty, 4, 7250)
	if code := resultCode(t, resps, protocol.CmdWriteDuty); code != ResultOK {
		t.Fatalf("code %d", code)
	}
	if got := rig.table.blocks[2].ccr[3]; got != 7.25 {
		t.Errorf("duty %v, want 7.25", got)
	}
}

func TestCommandsReset(t *testing.T) {
	rig := newCommandRig(t)
	rig.send(t, protocol.CmdConfigDriver, 2)
	rig.send(t, protocol.CmdAttachChannel, 'S', 1)
	rig.send(t, protocol.CmdStartAll)

	rig.cmds.Reset()
	if rig.cmds.Driver() != nil {
		t.Error("driver survived reset")
	}
	calls := rig.periph[2].calls
	if calls[len(calls)-1] != "stop1" {
		t.Errorf("reset did not stop channel 1: %v", calls)
	}
}

func TestCommandsIdentify(t *testing.T) {
	rig := newCommandRig(t)

	var dict []byte
	for offset := 0; offset < 4096; {
		resps := rig.send(t, protocol.CmdIdentify, int32(offset), protocol.IdentifyChunkMax)
		var chunk []byte
		for _, r := range resps {
			if r.id != protocol.RespIdentify {
				continue
			}
			args := r.args
			got, _ := protocol.ReadVLQUint(&args)
			if int(got) != offset {
				t.Fatalf("offset %d, want %d", got, offset)
			}
			chunk, _ = protocol.ReadVLQBytes(&args)
		}
		if len(chunk) == 0 {
			break
		}
		dict = append(dict, chunk...)
		offset += len(chunk)
	}

	text := string(dict)
	for _, want := range []string{
		"version " + protocol.Version + "\n",
		"11 servo_write identity=%c degrees=%i\n",
		"67 identify_response offset=%u data=%*s\n",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("dictionary missing %q", want)
		}
	}
}

func TestCommandsIdentityOutOfByteRange(t *testing.T) {
	rig := newCommandRig(t)
	rig.send(t, protocol.CmdConfigDriver, 2)
	rig.send(t, protocol.CmdAttachChannel, 'S', 2)

	testCases := []struct {
		name string
		id   uint16
		args []int32
	}{
		{"attach above byte", protocol.CmdAttachChannel, []int32{256 + 'A', 1}},
		{"attach negative", protocol.CmdAttachChannel, []int32{-1, 1}},
		{"get_channel above byte", protocol.CmdGetChannel, []int32{256 + 'S'}},
		{"servo above byte", protocol.CmdServoWrite, []int32{256 + 'S', 90}},
		{"motor above byte", protocol.CmdMotorWrite, []int32{512 + 'S', 50}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resps := rig.send(t, tc.id, tc.args...)
			if code := resultCode(t, resps, tc.id); code != ResultInvalidIdentity {
				t.Errorf("code %d, want %d", code, ResultInvalidIdentity)
			}
		})
	}

	d := rig.cmds.Driver()
	if ch := d.LookupChannel('A'); ch != NoChannel {
		t.Errorf("identity 256+'A' attached as 'A' on channel %d", ch)
	}
	if d.Identity(1) != NoIdentity {
		t.Errorf("channel 1 holds %q", d.Identity(1))
	}
	if rig.table.blocks[2].writes != 0 {
		t.Error("wrapped identity reached the compare registers")
	}
}
