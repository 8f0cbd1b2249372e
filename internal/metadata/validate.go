package metadata

import (
	"github.com/intersect-mbo/treasury-indexer/internal/domain"
)

// Relevant performs the cheap structural check the listener runs before
// committing to a full decode: the protocol label must be present and hold
// either an inline document with a body or a remote anchor reference. It never
// fetches anything.
func Relevant(labels map[string]domain.Value) bool {
	raw, ok := labels[domain.MetadataLabel]
	if !ok || raw.IsNull() {
		return false
	}
	if _, isMap := raw.AsMapping(); !isMap {
		return false
	}
	return raw.Has("body") || raw.Has("anchorUrl")
}
