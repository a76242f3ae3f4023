package client

import (
	"encoding/json"
	"fmt"

	"livesession/internal/core/domain"
)

// decodeAs unmarshals an event payload into its concrete type.
// Malformed payloads must never reach replicated state, so callers
// drop the event when this fails.
func decodeAs[T any](ev domain.Event) (*T, error) {
	var v T
	if len(ev.Payload) == 0 {
		return nil, fmt.Errorf("%w: %s carried no payload", domain.ErrInvalidPayload, ev.Name)
	}
	if err := json.Unmarshal(ev.Payload, &v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidPayload, ev.Name, err)
	}
	return &v, nil
}
