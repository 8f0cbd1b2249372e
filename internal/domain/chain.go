package domain

// MetadataLabel is the transaction metadata label that identifies treasury
// protocol documents.
const MetadataLabel = "1694"

// BlockHeaderEvent is delivered once per block by the chain event source.
type BlockHeaderEvent struct {
	Slot        uint64 `json:"slot"`
	BlockHeight uint64 `json:"block_height"`
	BlockHash   string `json:"block_hash,omitempty"`
}

// TxOutput is one output created by a transaction, as reported by the chain
// event source. ScriptHash is nil for key-locked outputs.
type TxOutput struct {
	Address    string  `json:"address"`
	ScriptHash *string `json:"script_hash,omitempty"`
	Amount     int64   `json:"amount"`
}

// MetadataEvent is delivered per transaction that carries any metadata. The
// label map is the raw, untyped metadata tree keyed by label string; Outputs
// is the transaction's created output set.
type MetadataEvent struct {
	TxHash      string                 `json:"tx_hash"`
	Slot        uint64                 `json:"slot"`
	BlockHeight uint64                 `json:"block_height"`
	Metadata    map[string]interface{} `json:"metadata"`
	Outputs     []TxOutput             `json:"outputs,omitempty"`
}

// HasTreasuryLabel reports whether the event carries the treasury protocol
// metadata label at all. Cheap pre-filter before decoding.
func (e *MetadataEvent) HasTreasuryLabel() bool {
	if len(e.Metadata) == 0 {
		return false
	}
	_, ok := e.Metadata[MetadataLabel]
	return ok
}
