package store

import (
	"context"
	"errors"

	"github.com/intersect-mbo/treasury-indexer/internal/store/schema"
)

// ErrDuplicateTransaction is returned by CreateTransaction when the
// transaction hash already exists. The unique index on tx_hash is the
// authoritative duplicate arbiter; callers treat this as a short-circuit,
// not a failure.
var ErrDuplicateTransaction = errors.New("transaction already recorded")

// Store defines the interface for database operations
type Store interface {
	// WithTransaction runs fn inside a single database transaction. All
	// mutations for one blockchain transaction go through this so partial
	// application can never be observed.
	WithTransaction(ctx context.Context, fn func(tx Store) error) error

	// GetTransactionByHash retrieves a treasury transaction by its on-chain hash
	GetTransactionByHash(ctx context.Context, txHash string) (*schema.TreasuryTransaction, error)
	// CreateTransaction inserts a treasury transaction row. Returns
	// ErrDuplicateTransaction if the hash is already recorded.
	CreateTransaction(ctx context.Context, tx *schema.TreasuryTransaction) error
	// SetTransactionProject records the project a transaction resolved to
	SetTransactionProject(ctx context.Context, txID int64, projectID int64) error

	// GetInstanceByScriptHash retrieves a treasury instance by script hash
	GetInstanceByScriptHash(ctx context.Context, scriptHash string) (*schema.TreasuryInstance, error)
	// SaveInstance creates or updates a treasury instance
	SaveInstance(ctx context.Context, instance *schema.TreasuryInstance) error

	// GetProjectByIdentifier retrieves a project by its protocol identifier
	GetProjectByIdentifier(ctx context.Context, identifier string) (*schema.Project, error)
	// GetProjectByID retrieves a project by its internal id
	GetProjectByID(ctx context.Context, projectID int64) (*schema.Project, error)
	// SaveProject creates or updates a project
	SaveProject(ctx context.Context, project *schema.Project) error

	// GetMilestone retrieves a milestone by its (project, identifier) natural key
	GetMilestone(ctx context.Context, projectID int64, identifier string) (*schema.Milestone, error)
	// ListMilestonesByProject retrieves all milestones of a project
	ListMilestonesByProject(ctx context.Context, projectID int64) ([]schema.Milestone, error)
	// SaveMilestone creates or updates a milestone
	SaveMilestone(ctx context.Context, milestone *schema.Milestone) error
	// ListMatureMilestones retrieves PENDING milestones whose maturity slot
	// has been reached at currentSlot
	ListMatureMilestones(ctx context.Context, currentSlot int64) ([]schema.Milestone, error)

	// VendorContractExists checks whether a vendor contract address is known
	VendorContractExists(ctx context.Context, paymentAddress string) (bool, error)
	// CreateVendorContract inserts a vendor contract discovery record
	CreateVendorContract(ctx context.Context, contract *schema.VendorContract) error
	// ListVendorContracts retrieves all known vendor contracts
	ListVendorContracts(ctx context.Context) ([]schema.VendorContract, error)

	// CreateEvent appends a row to the treasury event log
	CreateEvent(ctx context.Context, event *schema.TreasuryEvent) error
	// ListEventsByTransaction retrieves the event log rows for a transaction
	ListEventsByTransaction(ctx context.Context, txID int64) ([]schema.TreasuryEvent, error)
}
