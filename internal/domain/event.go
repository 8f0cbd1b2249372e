package domain

// EventType represents the treasury protocol event discriminant carried in
// the metadata body.
type EventType string

const (
	EventTypePublish    EventType = "publish"
	EventTypeInitialize EventType = "initialize"
	EventTypeReorganize EventType = "reorganize"
	EventTypeFund       EventType = "fund"
	EventTypeDisburse   EventType = "disburse"
	EventTypeComplete   EventType = "complete"
	EventTypeWithdraw   EventType = "withdraw"
	EventTypePause      EventType = "pause"
	EventTypeResume     EventType = "resume"
	EventTypeModify     EventType = "modify"
	EventTypeCancel     EventType = "cancel"
	EventTypeSweep      EventType = "sweep"
)

// KnownEventTypes is the closed set of event discriminants the decoder
// recognizes.
var KnownEventTypes = map[EventType]bool{
	EventTypePublish:    true,
	EventTypeInitialize: true,
	EventTypeReorganize: true,
	EventTypeFund:       true,
	EventTypeDisburse:   true,
	EventTypeComplete:   true,
	EventTypeWithdraw:   true,
	EventTypePause:      true,
	EventTypeResume:     true,
	EventTypeModify:     true,
	EventTypeCancel:     true,
	EventTypeSweep:      true,
}

// IsValidEventType checks if an event discriminant belongs to the protocol.
func IsValidEventType(t EventType) bool {
	return KnownEventTypes[t]
}

// AnchorRef is a pointer to off-chain metadata: a URL plus the declared hash
// of the document behind it.
type AnchorRef struct {
	URL      string `json:"anchorUrl"`
	DataHash string `json:"anchorDataHash,omitempty"`
}

// ParsedEvent is a fully decoded treasury metadata document. Type is the
// discriminant; Payload holds exactly the fields that event kind carries.
type ParsedEvent struct {
	Context       string    `json:"context,omitempty"`
	HashAlgorithm string    `json:"hashAlgorithm,omitempty"`
	TxAuthor      string    `json:"txAuthor,omitempty"`
	Instance      string    `json:"instance,omitempty"`
	Type          EventType `json:"event"`

	// Anchor is set when the document was dereferenced from a remote anchor
	// rather than carried inline.
	Anchor *AnchorRef `json:"anchor,omitempty"`

	Payload EventPayload `json:"payload"`
}

// EventPayload is the closed variant set for event bodies. One implementation
// exists per event kind; the applier switches exhaustively over them.
type EventPayload interface {
	isEventPayload()
}

// PublishPayload carries treasury instance attributes.
type PublishPayload struct {
	Label            *string `json:"label,omitempty"`
	Description      *string `json:"description,omitempty"`
	Expiration       *int64  `json:"expiration,omitempty"`
	PayoutUpperbound *int64  `json:"payoutUpperbound,omitempty"`
	VendorExpiration *int64  `json:"vendorExpiration,omitempty"`
	Permissions      Value   `json:"permissions,omitempty"`
}

// VendorInfo is the vendor descriptor embedded in fund/modify events.
type VendorInfo struct {
	Label   *string `json:"label,omitempty"`
	Details Value   `json:"details,omitempty"`
}

// FundMilestone is one milestone definition inside a fund event body.
type FundMilestone struct {
	Identifier         *string `json:"identifier,omitempty"`
	Label              *string `json:"label,omitempty"`
	Description        *string `json:"description,omitempty"`
	AcceptanceCriteria *string `json:"acceptanceCriteria,omitempty"`
}

// FundPayload creates or re-funds a project and its milestones.
type FundPayload struct {
	Identifier       string                   `json:"identifier"`
	OtherIdentifiers []string                 `json:"otherIdentifiers,omitempty"`
	Label            *string                  `json:"label,omitempty"`
	Description      *string                  `json:"description,omitempty"`
	Vendor           *VendorInfo              `json:"vendor,omitempty"`
	Contract         *AnchorRef               `json:"contract,omitempty"`
	Milestones       map[string]FundMilestone `json:"milestones,omitempty"`
}

// DisbursePayload describes a one-off disbursement. Log-only in this indexer.
type DisbursePayload struct {
	Label           *string `json:"label,omitempty"`
	Description     *string `json:"description,omitempty"`
	Justification   *string `json:"justification,omitempty"`
	EstimatedReturn *int64  `json:"estimatedReturn,omitempty"`
}

// Evidence is a completion proof pointer attached to a complete event.
type Evidence struct {
	Label          *string `json:"label,omitempty"`
	AnchorURL      *string `json:"anchorUrl,omitempty"`
	AnchorDataHash *string `json:"anchorDataHash,omitempty"`
}

// CompleteMilestone is one milestone entry inside a complete event body.
type CompleteMilestone struct {
	Description *string    `json:"description,omitempty"`
	Evidence    []Evidence `json:"evidence,omitempty"`
}

// CompletePayload marks milestones of a project completed.
type CompletePayload struct {
	Identifier string                       `json:"identifier"`
	Milestones map[string]CompleteMilestone `json:"milestones,omitempty"`
}

// WithdrawMilestone is one milestone entry inside a withdraw event body.
type WithdrawMilestone struct {
	Comment *string `json:"comment,omitempty"`
}

// WithdrawPayload marks milestones of a project withdrawn.
type WithdrawPayload struct {
	Identifier string                       `json:"identifier"`
	Milestones map[string]WithdrawMilestone `json:"milestones,omitempty"`
}

// PauseMilestone is one milestone entry inside a pause event body.
type PauseMilestone struct {
	Reason     *string `json:"reason,omitempty"`
	Resolution *string `json:"resolution,omitempty"`
}

// PausePayload pauses milestones of a project.
type PausePayload struct {
	Identifier string                    `json:"identifier"`
	Milestones map[string]PauseMilestone `json:"milestones,omitempty"`
}

// ResumeMilestone is one milestone entry inside a resume event body.
type ResumeMilestone struct {
	Reason *string `json:"reason,omitempty"`
}

// ResumePayload resumes paused milestones of a project.
type ResumePayload struct {
	Identifier string                     `json:"identifier"`
	Milestones map[string]ResumeMilestone `json:"milestones,omitempty"`
}

// ModifyPayload shares the fund body shape plus a free-text reason. It backs
// both modify and cancel events; ParsedEvent.Type distinguishes them.
type ModifyPayload struct {
	FundPayload
	Reason *string `json:"reason,omitempty"`
}

// SweepPayload records an unclaimed-funds sweep. Log-only.
type SweepPayload struct {
	Comment *string `json:"comment,omitempty"`
}

// ReorganizePayload backs initialize and reorganize events. Log-only.
type ReorganizePayload struct {
	Reason  *string          `json:"reason,omitempty"`
	Outputs map[string]Value `json:"outputs,omitempty"`
}

func (PublishPayload) isEventPayload()    {}
func (FundPayload) isEventPayload()       {}
func (DisbursePayload) isEventPayload()   {}
func (CompletePayload) isEventPayload()   {}
func (WithdrawPayload) isEventPayload()   {}
func (PausePayload) isEventPayload()      {}
func (ResumePayload) isEventPayload()     {}
func (ModifyPayload) isEventPayload()     {}
func (SweepPayload) isEventPayload()      {}
func (ReorganizePayload) isEventPayload() {}
