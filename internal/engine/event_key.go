package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/RealZimboGuy/leadflow/internal/domain"
)

// EventKey is the de-duplication key of a run. Repeated delivery of the same
// logical event yields the same key, so at most one run starts per graph
// trigger. Events without an id or occurrence time cannot be told apart from
// a genuinely new event and get a fresh key.
func EventKey(e *domain.Event) string {
	if e.EventID != "" {
		return "id:" + e.EventID
	}
	if e.OccurredAt != nil {
		// encoding/json sorts map keys, which keeps the hash stable
		canonical, err := json.Marshal(e.ContextMap())
		if err == nil {
			sum := sha256.Sum256(canonical)
			return "sha256:" + hex.EncodeToString(sum[:])
		}
	}
	return "uuid:" + uuid.NewString()
}
