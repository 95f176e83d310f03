package ocpp

import (
	"encoding/json"
	"fmt"
)

// Call is an inbound or outbound request envelope: [2, id, action, payload].
type Call struct {
	ID      string
	Action  Action
	Payload json.RawMessage
}

// CallResult is a response envelope: [3, id, payload].
type CallResult struct {
	ID      string
	Payload json.RawMessage
}

// CallError is an error envelope: [4, id, errorCode, errorDescription,
// errorDetails].
type CallError struct {
	ID          string
	Code        ErrorCode
	Description string
	Details     json.RawMessage
}

// Frame is implemented by the three envelope types.
type Frame interface {
	frame()
}

func (Call) frame()       {}
func (CallResult) frame() {}
func (CallError) frame()  {}

// MarshalCall serializes a Call envelope. The payload must already be a
// JSON document; a nil payload is encoded as an empty object.
func MarshalCall(c Call) ([]byte, error) {
	return marshalFrame(MessageTypeCall, c.ID, string(c.Action), orEmptyObject(c.Payload))
}

// MarshalCallResult serializes a CallResult envelope.
func MarshalCallResult(r CallResult) ([]byte, error) {
	return marshalFrame(MessageTypeCallResult, r.ID, orEmptyObject(r.Payload))
}

// MarshalCallError serializes a CallError envelope.
func MarshalCallError(e CallError) ([]byte, error) {
	return marshalFrame(MessageTypeCallError, e.ID, string(e.Code), e.Description, orEmptyObject(e.Details))
}

func marshalFrame(t MessageType, id string, rest ...any) ([]byte, error) {
	elems := make([]any, 0, 2+len(rest))
	elems = append(elems, int(t), id)
	elems = append(elems, rest...)
	return json.Marshal(elems)
}

func orEmptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}

// DecodeFrame parses a raw text frame into one of Call, CallResult or
// CallError. Frames that are not a JSON array, carry an unknown message
// type, or have the wrong arity for their type are rejected.
func DecodeFrame(data []byte) (Frame, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("frame is not a JSON array: %w", err)
	}
	if len(elems) < 3 {
		return nil, fmt.Errorf("frame has %d elements, need at least 3", len(elems))
	}

	var msgType int
	if err := json.Unmarshal(elems[0], &msgType); err != nil {
		return nil, fmt.Errorf("message type: %w", err)
	}
	var id string
	if err := json.Unmarshal(elems[1], &id); err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}

	switch MessageType(msgType) {
	case MessageTypeCall:
		if len(elems) != 4 {
			return nil, fmt.Errorf("call frame has %d elements, need 4", len(elems))
		}
		var action string
		if err := json.Unmarshal(elems[2], &action); err != nil {
			return nil, fmt.Errorf("action: %w", err)
		}
		return Call{ID: id, Action: Action(action), Payload: elems[3]}, nil
	case MessageTypeCallResult:
		if len(elems) != 3 {
			return nil, fmt.Errorf("call result frame has %d elements, need 3", len(elems))
		}
		return CallResult{ID: id, Payload: elems[2]}, nil
	case MessageTypeCallError:
		if len(elems) != 5 {
			return nil, fmt.Errorf("call error frame has %d elements, need 5", len(elems))
		}
		var code, desc string
		if err := json.Unmarshal(elems[2], &code); err != nil {
			return nil, fmt.Errorf("error code: %w", err)
		}
		if err := json.Unmarshal(elems[3], &desc); err != nil {
			return nil, fmt.Errorf("error description: %w", err)
		}
		return CallError{ID: id, Code: ErrorCode(code), Description: desc, Details: elems[4]}, nil
	default:
		return nil, fmt.Errorf("unknown message type %d", msgType)
	}
}
