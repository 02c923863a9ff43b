package ocpp

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// MessageType discriminates an OCPP-J frame by its first array element.
type MessageType int

const (
	Call       MessageType = 2
	CallResult MessageType = 3
	CallError  MessageType = 4
)

// Frame is the decoded form of any OCPP-J wire message.
//
//	Call:       [2, messageId, action, payload]
//	CallResult: [3, messageId, payload]
//	CallError:  [4, messageId, errorCode, errorDescription, errorDetails]
type Frame struct {
	Type            MessageType
	MessageId       string
	Action          Action
	Payload         json.RawMessage
	ErrorCode       ErrorType
	ErrorDescription string
	ErrorDetails    json.RawMessage
}

// NewMessageId generates a UUID v4 MessageId for an outbound Call.
func NewMessageId() string {
	return uuid.NewString()
}

// EncodeCall builds the wire bytes for a Call frame.
func EncodeCall(messageId string, action Action, payload interface{}) ([]byte, error) {
	arr := [4]interface{}{int(Call), messageId, string(action), payload}
	data, err := json.Marshal(arr)
	if err != nil {
		return nil, fmt.Errorf("encode call %s: %w", action, err)
	}
	return data, nil
}

// EncodeCallResult builds the wire bytes for a CallResult frame.
func EncodeCallResult(messageId string, payload interface{}) ([]byte, error) {
	arr := [3]interface{}{int(CallResult), messageId, payload}
	data, err := json.Marshal(arr)
	if err != nil {
		return nil, fmt.Errorf("encode call result: %w", err)
	}
	return data, nil
}

// EncodeCallError builds the wire bytes for a CallError frame.
func EncodeCallError(messageId string, code ErrorType, description string, details interface{}) ([]byte, error) {
	if details == nil {
		details = struct{}{}
	}
	arr := [5]interface{}{int(CallError), messageId, string(code), description, details}
	data, err := json.Marshal(arr)
	if err != nil {
		return nil, fmt.Errorf("encode call error: %w", err)
	}
	return data, nil
}

// Decode parses raw wire bytes into a Frame, rejecting anything that is not
// a JSON array of the arity its discriminant requires.
//
// On error, Decode returns a nil *Frame when the input is not a JSON array,
// has fewer than two elements, or has a message type field that does not
// parse. Past that point it returns a non-nil *Frame carrying the Type (and
// MessageId once the second array element parses) so a caller can apply
// the OCPP-J error rule: only a Call frame with a recoverable MessageId gets
// a CallError reply. A caller must check err, whether the Frame is nil, and
// the Frame's fields together; the Frame is never a usable decode result
// when err is non-nil.
func Decode(data []byte) (*Frame, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &OCPPError{Code: ErrorProtocolError, Description: "frame is not a JSON array: " + err.Error()}
	}
	if len(raw) < 2 {
		return nil, &OCPPError{Code: ErrorProtocolError, Description: "frame array too short"}
	}

	var msgType int
	if err := json.Unmarshal(raw[0], &msgType); err != nil {
		return nil, &OCPPError{Code: ErrorProtocolError, Description: "invalid message type field"}
	}

	var messageId string
	if err := json.Unmarshal(raw[1], &messageId); err != nil {
		return &Frame{Type: MessageType(msgType)}, &OCPPError{Code: ErrorProtocolError, Description: "invalid messageId field"}
	}

	partial := &Frame{Type: MessageType(msgType), MessageId: messageId}

	switch MessageType(msgType) {
	case Call:
		if len(raw) != 4 {
			return partial, &OCPPError{Code: ErrorProtocolError, Description: "Call frame must have exactly 4 elements"}
		}
		var action string
		if err := json.Unmarshal(raw[2], &action); err != nil {
			return partial, &OCPPError{Code: ErrorProtocolError, Description: "invalid action field"}
		}
		return &Frame{Type: Call, MessageId: messageId, Action: Action(action), Payload: raw[3]}, nil

	case CallResult:
		if len(raw) != 3 {
			return partial, &OCPPError{Code: ErrorProtocolError, Description: "CallResult frame must have exactly 3 elements"}
		}
		return &Frame{Type: CallResult, MessageId: messageId, Payload: raw[2]}, nil

	case CallError:
		if len(raw) < 4 || len(raw) > 5 {
			return partial, &OCPPError{Code: ErrorProtocolError, Description: "CallError frame must have 4 or 5 elements"}
		}
		var code, description string
		if err := json.Unmarshal(raw[2], &code); err != nil {
			return partial, &OCPPError{Code: ErrorProtocolError, Description: "invalid errorCode field"}
		}
		if err := json.Unmarshal(raw[3], &description); err != nil {
			return partial, &OCPPError{Code: ErrorProtocolError, Description: "invalid errorDescription field"}
		}
		f := &Frame{Type: CallError, MessageId: messageId, ErrorCode: ErrorType(code), ErrorDescription: description}
		if len(raw) == 5 {
			f.ErrorDetails = raw[4]
		}
		return f, nil

	default:
		return partial, &OCPPError{Code: ErrorProtocolError, Description: fmt.Sprintf("unknown message type %d", msgType)}
	}
}
