package gt06

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// CommandKind enumerates the server-to-device commands the gateway can send.
type CommandKind string

const (
	// CommandImmobilize cuts or restores the fuel/electricity relay.
	CommandImmobilize CommandKind = "IMMOBILIZE"
	// CommandSiren toggles the siren output.
	CommandSiren CommandKind = "SIREN"
	// CommandLocate requests an immediate position report.
	CommandLocate CommandKind = "LOCATE"
	// CommandGeneric sends an arbitrary ASCII command string.
	CommandGeneric CommandKind = "GENERIC"
)

// Command describes one command to deliver to a device.
type Command struct {
	Kind CommandKind

	// Enable selects the action for IMMOBILIZE (true cuts) and SIREN
	// (true sounds). Ignored for other kinds.
	Enable bool

	// Text is the raw command string for CommandGeneric, without the
	// trailing '#'.
	Text string
}

// serverFlag prefixes the ASCII content of a 0x80 frame: one length byte
// and a four-byte server flag echoed back in the device response.
var serverFlag = [4]byte{0x00, 0x00, 0x00, 0x01}

// Build serializes the command into a wire frame with the given serial.
// LOCATE uses an empty 0x8A probe; everything else wraps an ASCII command
// string in a 0x80 frame.
func (c *Command) Build(serial uint16) ([]byte, error) {
	text, err := c.text()
	if err != nil {
		return nil, err
	}

	if c.Kind == CommandLocate {
		return NewFrame(MsgCommandResponse, nil, serial).Encode()
	}

	// 0x80 body: content_length[1] server_flag[4] ascii_command
	body := make([]byte, 0, 1+len(serverFlag)+len(text))
	body = append(body, byte(len(serverFlag)+len(text)))
	body = append(body, serverFlag[:]...)
	body = append(body, text...)
	return NewFrame(MsgServerCommand, body, serial).Encode()
}

// text resolves the ASCII command string for the command kind.
func (c *Command) text() (string, error) {
	switch c.Kind {
	case CommandImmobilize:
		if c.Enable {
			return "DYD#", nil
		}
		return "HFYD#", nil
	case CommandSiren:
		if c.Enable {
			return "DXDY#", nil
		}
		return "QXDY#", nil
	case CommandLocate:
		return "", nil
	case CommandGeneric:
		t := strings.TrimSpace(c.Text)
		if t == "" {
			return "", fmt.Errorf("generic command text is empty")
		}
		if !strings.HasSuffix(t, "#") {
			t += "#"
		}
		return t, nil
	}
	return "", fmt.Errorf("unknown command kind %q", c.Kind)
}

// CommandResponse is the decoded echo a device sends in a 0x8A frame after
// executing a server command.
type CommandResponse struct {
	ServerFlag uint32
	Content    string
}

// ParseCommandResponse decodes a 0x8A body:
//
//	content_length[1] server_flag[4] ascii_content
//
// Bodies shorter than the declared content are returned verbatim as ASCII
// with a zero server flag, since some firmwares omit the flag on errors.
func ParseCommandResponse(body []byte) (*CommandResponse, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("empty command response body")
	}
	if len(body) < 5 {
		return &CommandResponse{Content: string(body)}, nil
	}
	return &CommandResponse{
		ServerFlag: binary.BigEndian.Uint32(body[1:5]),
		Content:    strings.TrimRight(string(body[5:]), "\x00"),
	}, nil
}
