package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Frame is a validated command frame.
type Frame struct {
	Name      CommandName
	CommandID json.RawMessage
	Params    Params
	// RawParams is the params object as sent, "{}" when absent or null.
	RawParams json.RawMessage
}

// FrameError is returned by ParseFrame. CommandID holds whatever id could be
// recovered from the input and is nil when none could.
type FrameError struct {
	CommandID json.RawMessage
	Message   string
	// Unknown is set when the frame was well formed but named an unknown command.
	Unknown bool
}

func (e *FrameError) Error() string {
	return e.Message
}

// ParseFrame decodes data into a Frame, rejecting anything outside the known
// command set or with mistyped parameters.
func ParseFrame(data []byte) (*Frame, error) {
	var raw CommandFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &FrameError{
			CommandID: RecoverCommandID(data),
			Message:   "Invalid JSON message: " + err.Error(),
		}
	}

	id := normalizeID(raw.CommandID)

	name := CommandName(raw.Command)
	if !name.Valid() {
		return nil, &FrameError{
			CommandID: id,
			Message:   fmt.Sprintf("Unknown command: %s", raw.Command),
			Unknown:   true,
		}
	}

	if id == nil {
		return nil, &FrameError{Message: "command_id is required"}
	}

	params, err := decodeParams(name, raw.Params)
	if err != nil {
		return nil, &FrameError{
			CommandID: id,
			Message:   fmt.Sprintf("invalid params for %s: %v", name, err),
		}
	}

	rawParams := bytes.TrimSpace(raw.Params)
	if len(rawParams) == 0 || bytes.Equal(rawParams, []byte("null")) {
		rawParams = json.RawMessage(`{}`)
	}

	return &Frame{Name: name, CommandID: id, Params: params, RawParams: rawParams}, nil
}

func decodeParams(name CommandName, data json.RawMessage) (Params, error) {
	var p Params
	switch name {
	case CommandScreenshot:
		p = &ScreenshotParams{}
	case CommandClick:
		p = &ClickParams{}
	case CommandType:
		p = &TypeParams{}
	case CommandKeypress:
		p = &KeypressParams{}
	case CommandMove:
		p = &MoveParams{}
	case CommandScroll:
		p = &ScrollParams{}
	case CommandDrag:
		p = &DragParams{}
	default:
		return nil, fmt.Errorf("no parameter record for %s", name)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if trimmed[0] != '{' {
			return nil, fmt.Errorf("params must be an object")
		}
		if err := json.Unmarshal(trimmed, p); err != nil {
			return nil, err
		}
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	return deref(p), nil
}

// deref converts the decode target back into its value form so that
// consumers can type-switch on ClickParams rather than *ClickParams.
func deref(p Params) Params {
	switch v := p.(type) {
	case *ScreenshotParams:
		return *v
	case *ClickParams:
		return *v
	case *TypeParams:
		return *v
	case *KeypressParams:
		return *v
	case *MoveParams:
		return *v
	case *ScrollParams:
		return *v
	case *DragParams:
		return *v
	}
	return p
}

// normalizeID returns nil for a missing or null id. Any other value,
// the empty string included, is echoed as sent.
func normalizeID(id json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(id)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return trimmed
}

// RecoverCommandID scans the top level of a possibly malformed object and
// returns the command_id value if it was read before the input went bad.
func RecoverCommandID(data []byte) json.RawMessage {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil
		}
		if key == "command_id" {
			return normalizeID(value)
		}
	}
	return nil
}
