package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intersect-mbo/treasury-indexer/internal/domain"
)

func TestFromJSON_Shapes(t *testing.T) {
	v, err := domain.FromJSON([]byte(`{
		"label": "Treasury",
		"active": true,
		"expiration": 123456789012345678,
		"tags": ["a", "b"],
		"nested": {"k": null}
	}`))
	require.NoError(t, err)
	assert.Equal(t, domain.KindMapping, v.Kind())

	label, ok := v.Get("label")
	require.True(t, ok)
	s, ok := label.AsString()
	require.True(t, ok)
	assert.Equal(t, "Treasury", s)

	active, _ := v.Get("active")
	b, ok := active.AsBool()
	require.True(t, ok)
	assert.True(t, b)

	// Large integers survive without precision loss
	expiration, _ := v.Get("expiration")
	i, ok := expiration.AsInt64()
	require.True(t, ok)
	assert.Equal(t, int64(123456789012345678), i)

	tags, _ := v.Get("tags")
	seq, ok := tags.AsSequence()
	require.True(t, ok)
	assert.Len(t, seq, 2)

	nested, _ := v.Get("nested")
	k, ok := nested.Get("k")
	require.True(t, ok)
	assert.True(t, k.IsNull())
}

func TestValue_AccessorsRejectWrongKind(t *testing.T) {
	v := domain.String("hello")

	_, ok := v.AsInt64()
	assert.False(t, ok)
	_, ok = v.AsBool()
	assert.False(t, ok)
	_, ok = v.AsMapping()
	assert.False(t, ok)
	_, ok = v.Get("key")
	assert.False(t, ok)
	assert.False(t, v.Has("key"))
}

func TestValue_MarshalJSON_SortedKeys(t *testing.T) {
	v := domain.Mapping(map[string]domain.Value{
		"b": domain.Int(2),
		"a": domain.Int(1),
	})

	out, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, string(out))
}

func TestLabelsFromRaw(t *testing.T) {
	labels := domain.LabelsFromRaw(map[string]interface{}{
		"1694": map[string]interface{}{
			"body": map[string]interface{}{"event": "publish"},
		},
		"674": "unrelated",
	})

	doc, ok := labels["1694"]
	require.True(t, ok)
	body, ok := doc.Get("body")
	require.True(t, ok)
	assert.True(t, body.Has("event"))

	other := labels["674"]
	s, ok := other.AsString()
	require.True(t, ok)
	assert.Equal(t, "unrelated", s)
}

func TestMetadataEvent_HasTreasuryLabel(t *testing.T) {
	event := &domain.MetadataEvent{
		Metadata: map[string]interface{}{"1694": map[string]interface{}{}},
	}
	assert.True(t, event.HasTreasuryLabel())

	event = &domain.MetadataEvent{
		Metadata: map[string]interface{}{"721": map[string]interface{}{}},
	}
	assert.False(t, event.HasTreasuryLabel())

	event = &domain.MetadataEvent{}
	assert.False(t, event.HasTreasuryLabel())
}
