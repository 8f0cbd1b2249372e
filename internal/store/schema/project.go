package schema

import (
	"time"

	"gorm.io/datatypes"
)

// Project represents the projects table - one row per funded project,
// identified by its protocol-level identifier.
type Project struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:project_id;primaryKey;autoIncrement"`
	// Identifier is the protocol-level project identifier (unique system-wide)
	Identifier string `gorm:"column:identifier;not null;uniqueIndex;type:text"`
	// OtherIdentifiers is an ordered JSON array of alternate identifiers
	OtherIdentifiers datatypes.JSON `gorm:"column:other_identifiers;type:jsonb"`
	// Label is the display name from the latest fund/modify event
	Label *string `gorm:"column:label;type:text"`
	// Description is the free-text description
	Description *string `gorm:"column:description;type:text"`
	// VendorLabel is the vendor's display name
	VendorLabel *string `gorm:"column:vendor_label;type:text"`
	// VendorDetails is the opaque vendor descriptor from the fund event
	VendorDetails datatypes.JSON `gorm:"column:vendor_details;type:jsonb"`
	// ContractURL points at the external contract document anchor
	ContractURL *string `gorm:"column:contract_url;type:text"`
	// ContractHash is the declared hash of the contract document
	ContractHash *string `gorm:"column:contract_hash;type:text"`
	// TreasuryInstanceID references the owning treasury instance
	TreasuryInstanceID int64 `gorm:"column:treasury_instance_id;not null;index"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`

	// Associations
	Milestones      []Milestone      `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	VendorContracts []VendorContract `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the Project model
func (Project) TableName() string {
	return "projects"
}
