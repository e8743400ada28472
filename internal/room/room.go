// Package room derives the canonical identifier of a two-party conversation.
package room

import (
	"fmt"

	"github.com/campusconnect/messaging/internal/errs"
)

const separator = ":"

// CanonicalID derives the room id for the conversation between two users.
// The two participant ids are sorted before concatenation, so both sides
// compute the same room without a negotiation round-trip:
// CanonicalID(a, b) == CanonicalID(b, a).
func CanonicalID(idA, idB string) (string, error) {
	if idA == "" || idB == "" {
		return "", fmt.Errorf("%w: participant id must not be empty", errs.ErrInvalidParticipant)
	}
	if idA == idB {
		return "", fmt.Errorf("%w: cannot open a conversation with yourself", errs.ErrInvalidParticipant)
	}
	if idB < idA {
		idA, idB = idB, idA
	}
	return idA + separator + idB, nil
}
