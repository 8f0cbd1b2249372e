package schema

import (
	"time"
)

// MilestoneStatus is the milestone lifecycle state.
type MilestoneStatus string

const (
	// MilestoneStatusPending means the milestone is funded but not yet delivered
	MilestoneStatusPending MilestoneStatus = "PENDING"
	// MilestoneStatusCompleted means delivery evidence has been accepted
	MilestoneStatusCompleted MilestoneStatus = "COMPLETED"
	// MilestoneStatusPaused means the milestone is administratively on hold
	MilestoneStatusPaused MilestoneStatus = "PAUSED"
	// MilestoneStatusWithdrawn means the allocated funds have been withdrawn
	MilestoneStatusWithdrawn MilestoneStatus = "WITHDRAWN"
)

// Milestone represents the milestones table - one row per (project,
// identifier) pair declared in a fund event.
type Milestone struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:milestone_id;primaryKey;autoIncrement"`
	// ProjectID references the owning project
	ProjectID int64 `gorm:"column:project_id;not null;uniqueIndex:idx_milestones_project_identifier,priority:1"`
	// Identifier is the milestone key inside the fund event body, unique per project
	Identifier string `gorm:"column:identifier;not null;uniqueIndex:idx_milestones_project_identifier,priority:2;type:text"`
	// Label is the milestone display name
	Label *string `gorm:"column:label;type:text"`
	// Description is the free-text description
	Description *string `gorm:"column:description;type:text"`
	// AcceptanceCriteria describes what completing the milestone requires
	AcceptanceCriteria *string `gorm:"column:acceptance_criteria;type:text"`
	// AmountLovelace is the allocated amount in the smallest currency unit
	AmountLovelace int64 `gorm:"column:amount_lovelace;not null;default:0"`
	// MaturitySlot is the chain slot after which withdrawal is permitted.
	// Indexed together with status for the maturity scan.
	MaturitySlot *int64 `gorm:"column:maturity_slot;index:idx_milestones_status_maturity,priority:2"`
	// Status is the lifecycle state
	Status MilestoneStatus `gorm:"column:status;not null;default:'PENDING';type:text;index:idx_milestones_status_maturity,priority:1"`
	// PausedAt is set while the milestone is paused
	PausedAt *time.Time `gorm:"column:paused_at"`
	// PausedReason is the pause reason from the pause event
	PausedReason *string `gorm:"column:paused_reason;type:text"`
	// CompletedAt records when the milestone was first completed
	CompletedAt *time.Time `gorm:"column:completed_at"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`
}

// TableName specifies the table name for the Milestone model
func (Milestone) TableName() string {
	return "milestones"
}
