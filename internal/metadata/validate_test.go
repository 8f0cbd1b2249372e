package metadata_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/intersect-mbo/treasury-indexer/internal/domain"
	"github.com/intersect-mbo/treasury-indexer/internal/metadata"
)

func TestRelevant(t *testing.T) {
	// Inline document
	assert.True(t, metadata.Relevant(map[string]domain.Value{
		domain.MetadataLabel: mustValue(t, `{"body": {"event": "publish"}}`),
	}))

	// Remote anchor reference
	assert.True(t, metadata.Relevant(map[string]domain.Value{
		domain.MetadataLabel: mustValue(t, `{"anchorUrl": "https://example.org/doc"}`),
	}))

	// Wrong label
	assert.False(t, metadata.Relevant(map[string]domain.Value{
		"721": mustValue(t, `{"body": {}}`),
	}))

	// Label present but not an object
	assert.False(t, metadata.Relevant(map[string]domain.Value{
		domain.MetadataLabel: domain.String("junk"),
	}))

	// Object without body or anchor
	assert.False(t, metadata.Relevant(map[string]domain.Value{
		domain.MetadataLabel: mustValue(t, `{"label": "x"}`),
	}))
}
