package schema

import (
	"time"

	"gorm.io/datatypes"
)

// TreasuryEvent represents the treasury_events table - the append-only audit
// log, one row per applied transaction. Rows are never updated or deleted.
type TreasuryEvent struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:event_id;primaryKey;autoIncrement"`
	// TxID references the treasury transaction this event was decoded from
	TxID int64 `gorm:"column:tx_id;not null;index"`
	// EventType is the decoded event discriminant
	EventType string `gorm:"column:event_type;not null;type:text;index"`
	// ProjectID references the targeted project, when applicable
	ProjectID *int64 `gorm:"column:project_id;index"`
	// MilestoneID references the targeted milestone, when applicable
	MilestoneID *int64 `gorm:"column:milestone_id"`
	// EventData is the serialized typed event payload
	EventData datatypes.JSON `gorm:"column:event_data;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
}

// TableName specifies the table name for the TreasuryEvent model
func (TreasuryEvent) TableName() string {
	return "treasury_events"
}
