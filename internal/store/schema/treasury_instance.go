package schema

import (
	"time"

	"gorm.io/datatypes"
)

// TreasuryInstance represents the treasury_instances table - one row per
// deployed treasury contract, identified by its script hash.
type TreasuryInstance struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:instance_id;primaryKey;autoIncrement"`
	// ScriptHash is the treasury contract's script hash (hex, unique)
	ScriptHash string `gorm:"column:script_hash;not null;uniqueIndex;type:text"`
	// PaymentAddress is the treasury contract's payment address (unique)
	PaymentAddress string `gorm:"column:payment_address;not null;uniqueIndex;type:text"`
	// StakeAddress is the optional stake address associated with the contract
	StakeAddress *string `gorm:"column:stake_address;type:text"`
	// Label is the display name from the latest publish event
	Label *string `gorm:"column:label;type:text"`
	// Description is the free-text description from the latest publish event
	Description *string `gorm:"column:description;type:text"`
	// ExpirationSlot is the slot after which the treasury expires
	ExpirationSlot *int64 `gorm:"column:expiration"`
	// Permissions is the opaque permission structure declared by the contract
	Permissions datatypes.JSON `gorm:"column:permissions;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`

	// Associations
	Projects []Project `gorm:"foreignKey:TreasuryInstanceID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the TreasuryInstance model
func (TreasuryInstance) TableName() string {
	return "treasury_instances"
}
