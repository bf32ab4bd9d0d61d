// Package callback processes moderator interactions coming back from
// the chat platform: card button taps and category selections. The
// action model is closed; payloads that do not decode to a known action
// are rejected without touching any state.
package callback

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownAction is returned for payloads outside the closed
	// action model.
	ErrUnknownAction = errors.New("unknown callback action")
	// ErrMissingField is returned when a known action lacks a required
	// field.
	ErrMissingField = errors.New("callback action missing field")
)

// Event is the card interaction webhook payload. Challenge events are
// handled by the HTTP layer before actions reach this package.
type Event struct {
	OpenID        string        `json:"open_id"`       //nolint:tagliatelle
	UserID        string        `json:"user_id"`       //nolint:tagliatelle
	OpenMessageID string        `json:"open_message_id"` //nolint:tagliatelle
	Action        ActionPayload `json:"action"`
}

// ActionPayload is the raw action part of an event. Value carries the
// static payload embedded at render time; Option is the chosen entry of
// a select element.
type ActionPayload struct {
	Tag    string            `json:"tag"`
	Value  map[string]string `json:"value"`
	Option string            `json:"option"`
}

// VideoSelect assigns a category to a video.
type VideoSelect struct {
	BVID     string
	Category string
}

// DynamicAccept accepts a picture post.
type DynamicAccept struct {
	DynamicID string
}

// DecodeAction maps a payload to one of the known actions.
func DecodeAction(payload ActionPayload) (any, error) {
	switch payload.Value["type"] {
	case "video":
		bvid := payload.Value["bvid"]
		if bvid == "" {
			return nil, fmt.Errorf("%w: bvid", ErrMissingField)
		}

		if payload.Option == "" {
			return nil, fmt.Errorf("%w: option", ErrMissingField)
		}

		return VideoSelect{BVID: bvid, Category: payload.Option}, nil

	case "dynamic":
		id := payload.Value["dynamic_id"]
		if id == "" {
			return nil, fmt.Errorf("%w: dynamic_id", ErrMissingField)
		}

		return DynamicAccept{DynamicID: id}, nil

	default:
		return nil, fmt.Errorf("%w: type %q", ErrUnknownAction, payload.Value["type"])
	}
}
