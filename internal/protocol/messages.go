// Package protocol defines the command channel protocol between orchestrators and the executor.
//
// A client sends one Command Frame per command:
//
//	{"command": "click", "command_id": "cmd_1", "params": {"x": 10, "y": 20}}
//
// and receives exactly one Response Frame echoing the command_id:
//
//	{"command_id": "cmd_1", "success": true}
package protocol

import "encoding/json"

// CommandName identifies one of the known commands.
type CommandName string

// Known commands
const (
	CommandScreenshot CommandName = "screenshot"
	CommandClick      CommandName = "click"
	CommandType       CommandName = "type"
	CommandKeypress   CommandName = "keypress"
	CommandMove       CommandName = "move"
	CommandScroll     CommandName = "scroll"
	CommandDrag       CommandName = "drag"
)

// Commands lists every known command in a stable order.
var Commands = []CommandName{
	CommandScreenshot,
	CommandClick,
	CommandType,
	CommandKeypress,
	CommandMove,
	CommandScroll,
	CommandDrag,
}

// Valid reports whether c is a known command.
func (c CommandName) Valid() bool {
	for _, known := range Commands {
		if c == known {
			return true
		}
	}
	return false
}

// CommandFrame is the wire shape of a client request.
type CommandFrame struct {
	Command   string          `json:"command"`
	CommandID json.RawMessage `json:"command_id"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// ResponseFrame is the wire shape of the single reply to a command.
// A nil CommandID is encoded as null.
type ResponseFrame struct {
	CommandID json.RawMessage `json:"command_id"`
	Success   bool            `json:"success"`
	*ScreenshotResult
	Error string `json:"error,omitempty"`
}

// ScreenshotResult is the payload of a successful screenshot.
type ScreenshotResult struct {
	Image  string `json:"image"` // base64
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

// Succeeded builds a success frame without payload.
func Succeeded(commandID json.RawMessage) *ResponseFrame {
	return &ResponseFrame{CommandID: commandID, Success: true}
}

// ScreenshotSucceeded builds a success frame carrying an image.
func ScreenshotSucceeded(commandID json.RawMessage, result *ScreenshotResult) *ResponseFrame {
	return &ResponseFrame{CommandID: commandID, Success: true, ScreenshotResult: result}
}

// Failed builds a failure frame. It never carries a payload.
func Failed(commandID json.RawMessage, message string) *ResponseFrame {
	return &ResponseFrame{CommandID: commandID, Success: false, Error: message}
}

// Result is the payload of a successful command. Only screenshots carry data.
type Result struct {
	Screenshot *ScreenshotResult
}

// Respond builds the success frame for result.
func Respond(commandID json.RawMessage, result *Result) *ResponseFrame {
	if result != nil && result.Screenshot != nil {
		return ScreenshotSucceeded(commandID, result.Screenshot)
	}
	return Succeeded(commandID)
}
