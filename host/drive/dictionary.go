package drive

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"stm32drive/protocol"
)

// Dictionary is the parsed command dictionary served by the board
type Dictionary struct {
	Version  string
	Commands map[string]uint16
	Formats  map[string]string
}

// RetrieveDictionary reads the dictionary from the board in identify chunks
func (c *Controller) RetrieveDictionary() (*Dictionary, error) {
	var buf bytes.Buffer
	offset := uint32(0)

	// bounded so a misbehaving board cannot keep us here
	for i := 0; i < 1000; i++ {
		chunk, err := c.identify(offset, protocol.IdentifyChunkMax)
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve dictionary chunk at offset %d: %w", offset, err)
		}
		if len(chunk) == 0 {
			break
		}
		buf.Write(chunk)
		offset += uint32(len(chunk))
	}

	d, err := ParseDictionary(buf.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse dictionary: %w", err)
	}
	return d, nil
}

func (c *Controller) identify(offset uint32, count uint8) ([]byte, error) {
	resps, err := c.call(protocol.CmdIdentify, func(dst []byte) []byte {
		dst = protocol.AppendVLQUint(dst, offset)
		return protocol.AppendVLQUint(dst, uint32(count))
	}, c.timeout)
	if err != nil {
		return nil, err
	}
	for _, m := range resps {
		id, args, _ := m.ID()
		if id != protocol.RespIdentify {
			continue
		}
		respOffset, err := protocol.ReadVLQUint(&args)
		if err != nil {
			return nil, fmt.Errorf("failed to decode response offset: %w", err)
		}
		if respOffset != offset {
			return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, respOffset)
		}
		data, err := protocol.ReadVLQBytes(&args)
		if err != nil {
			return nil, fmt.Errorf("failed to decode response data: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("no identify_response in reply")
}

// ParseDictionary parses the "version V" line followed by "id name format" lines
func ParseDictionary(text string) (*Dictionary, error) {
	d := &Dictionary{
		Commands: make(map[string]uint16),
		Formats:  make(map[string]string),
	}
	for n, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		if v, ok := strings.CutPrefix(line, "version "); ok {
			d.Version = v
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: %q", n+1, line)
		}
		id, err := strconv.ParseUint(fields[0], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad id: %w", n+1, err)
		}
		d.Commands[fields[1]] = uint16(id)
		if len(fields) == 3 {
			d.Formats[fields[1]] = fields[2]
		}
	}
	if d.Version == "" {
		return nil, fmt.Errorf("missing version line")
	}
	return d, nil
}

// messageIDs lists every command and response the host encodes or decodes
// by ID, in the order Check reports them
var messageIDs = []struct {
	name string
	id   uint16
}{
	{"config_driver", protocol.CmdConfigDriver},
	{"release_driver", protocol.CmdReleaseDriver},
	{"attach_channel", protocol.CmdAttachChannel},
	{"detach_channel", protocol.CmdDetachChannel},
	{"get_channel", protocol.CmdGetChannel},
	{"start_all", protocol.CmdStartAll},
	{"stop_all", protocol.CmdStopAll},
	{"start_pwm", protocol.CmdStartPWM},
	{"stop_pwm", protocol.CmdStopPWM},
	{"write_duty", protocol.CmdWriteDuty},
	{"servo_write", protocol.CmdServoWrite},
	{"motor_write", protocol.CmdMotorWrite},
	{"pwm_test", protocol.CmdPWMTest},
	{"get_status", protocol.CmdGetStatus},
	{"identify", protocol.CmdIdentify},
	{"command_result", protocol.RespCommandResult},
	{"channel_info", protocol.RespChannelInfo},
	{"driver_status", protocol.RespDriverStatus},
	{"identify_response", protocol.RespIdentify},
}

// Check reports the first message whose board ID differs from this build
func (d *Dictionary) Check() error {
	if d.Version != protocol.Version {
		return fmt.Errorf("protocol version %s, host speaks %s", d.Version, protocol.Version)
	}
	for _, m := range messageIDs {
		got, ok := d.Commands[m.name]
		if !ok {
			return fmt.Errorf("board does not know %s", m.name)
		}
		if got != m.id {
			return fmt.Errorf("%s has id %d on the board, %d here", m.name, got, m.id)
		}
	}
	return nil
}
