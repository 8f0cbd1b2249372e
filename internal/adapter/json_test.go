package adapter_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intersect-mbo/treasury-indexer/internal/adapter"
)

func TestRealJSON_UnmarshalPreservesLargeNumbers(t *testing.T) {
	// 2^53+1 is not representable as a float64
	var raw map[string]interface{}
	err := adapter.NewJSON().Unmarshal([]byte(`{"amount": 9007199254740993}`), &raw)
	require.NoError(t, err)

	n, ok := raw["amount"].(json.Number)
	require.True(t, ok)
	assert.Equal(t, "9007199254740993", n.String())
}

func TestRealJSON_UnmarshalTypedStruct(t *testing.T) {
	var header struct {
		Slot        int64  `json:"slot"`
		BlockHeight int64  `json:"block_height"`
		BlockHash   string `json:"block_hash"`
	}
	err := adapter.NewJSON().Unmarshal([]byte(`{"slot": 1500, "block_height": 42, "block_hash": "abc"}`), &header)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), header.Slot)
	assert.Equal(t, "abc", header.BlockHash)
}

func TestRealJSON_UnmarshalRejectsTrailingData(t *testing.T) {
	var raw map[string]interface{}
	err := adapter.NewJSON().Unmarshal([]byte(`{"a": 1} {"b": 2}`), &raw)
	assert.Error(t, err)
}

func TestRealJSON_MarshalRoundTrip(t *testing.T) {
	data, err := adapter.NewJSON().Marshal(map[string]string{"identifier": "PO1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"identifier": "PO1"}`, string(data))
}
