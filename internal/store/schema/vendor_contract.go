package schema

import (
	"time"
)

// VendorContract represents the vendor_contracts table - an append-only
// discovery record per vendor contract address found in a fund transaction's
// outputs.
type VendorContract struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:contract_id;primaryKey;autoIncrement"`
	// ProjectID references the project whose fund event revealed this contract
	ProjectID int64 `gorm:"column:project_id;not null;index"`
	// PaymentAddress is the vendor contract's payment address (unique)
	PaymentAddress string `gorm:"column:payment_address;not null;uniqueIndex;type:text"`
	// ScriptHash is the optional script hash of the vendor contract
	ScriptHash *string `gorm:"column:script_hash;type:text"`
	// DiscoveredFromTxHash is the transaction that first revealed the address
	DiscoveredFromTxHash string `gorm:"column:discovered_from_tx_hash;not null;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
}

// TableName specifies the table name for the VendorContract model
func (VendorContract) TableName() string {
	return "vendor_contracts"
}
