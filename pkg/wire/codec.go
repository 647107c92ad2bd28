package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Codec errors.
var (
	// ErrInvalidFrame indicates the data is not a well-formed frame.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrUnknownFrameType indicates an unrecognized type discriminator.
	ErrUnknownFrameType = errors.New("unknown frame type")
)

// Encode marshals a frame to its JSON wire form.
func Encode(frame any) ([]byte, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

// Decode unmarshals raw frame bytes to the appropriate frame type.
// It returns *Request, *Response, or *Event.
func Decode(data []byte) (any, error) {
	// First, decode just the type discriminator
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}

	switch header.Type {
	case FrameRequest:
		var frame Request
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
		return &frame, nil

	case FrameResponse:
		var frame Response
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
		return &frame, nil

	case FrameEvent:
		var frame Event
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
		return &frame, nil

	case "":
		return nil, fmt.Errorf("%w: missing type discriminator", ErrInvalidFrame)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrameType, header.Type)
	}
}
