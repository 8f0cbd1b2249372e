package schema

import (
	"time"

	"gorm.io/datatypes"
)

// TreasuryTransaction represents the treasury_transactions table - one
// immutable row per applied on-chain transaction. The unique index on
// tx_hash is the arbiter that makes concurrent application of the same
// transaction impossible.
type TreasuryTransaction struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:tx_id;primaryKey;autoIncrement"`
	// TxHash is the on-chain transaction hash (hex, unique)
	TxHash string `gorm:"column:tx_hash;not null;uniqueIndex;type:text"`
	// Slot is the chain slot the transaction landed in
	Slot int64 `gorm:"column:slot;not null;index"`
	// BlockHeight is the height of the containing block
	BlockHeight *int64 `gorm:"column:block_height"`
	// EventType is the decoded treasury event discriminant
	EventType string `gorm:"column:event_type;not null;type:text;index"`
	// InstanceID references the treasury instance the transaction belongs to
	InstanceID int64 `gorm:"column:instance_id;not null;index"`
	// ProjectID references the project, when the event targets one
	ProjectID *int64 `gorm:"column:project_id;index"`
	// TxAuthor is the author key declared in the metadata document
	TxAuthor *string `gorm:"column:tx_author;type:text"`
	// Metadata is the raw metadata blob as delivered on chain
	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb"`
	// AnchorURL is set when the metadata document was a remote anchor
	AnchorURL *string `gorm:"column:metadata_anchor_url;type:text"`
	// AnchorHash is the declared hash of the anchored document
	AnchorHash *string `gorm:"column:metadata_anchor_hash;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`

	// Associations
	Events []TreasuryEvent `gorm:"foreignKey:TxID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the TreasuryTransaction model
func (TreasuryTransaction) TableName() string {
	return "treasury_transactions"
}
