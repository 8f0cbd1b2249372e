package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/intersect-mbo/treasury-indexer/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// Open connects to PostgreSQL and returns a gorm handle with error
// translation enabled so unique violations surface as gorm.ErrDuplicatedKey.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to safe defaults.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// AutoMigrate creates or updates the six entity tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&schema.TreasuryInstance{},
		&schema.Project{},
		&schema.Milestone{},
		&schema.VendorContract{},
		&schema.TreasuryTransaction{},
		&schema.TreasuryEvent{},
	)
}

// WithTransaction runs fn inside a single database transaction
func (s *pgStore) WithTransaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&pgStore{db: tx})
	})
}

// GetTransactionByHash retrieves a treasury transaction by its on-chain hash
func (s *pgStore) GetTransactionByHash(ctx context.Context, txHash string) (*schema.TreasuryTransaction, error) {
	var tx schema.TreasuryTransaction
	err := s.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

// CreateTransaction inserts a treasury transaction row
func (s *pgStore) CreateTransaction(ctx context.Context, tx *schema.TreasuryTransaction) error {
	err := s.db.WithContext(ctx).Create(tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// SetTransactionProject records the project a transaction resolved to
func (s *pgStore) SetTransactionProject(ctx context.Context, txID int64, projectID int64) error {
	err := s.db.WithContext(ctx).
		Model(&schema.TreasuryTransaction{}).
		Where("tx_id = ?", txID).
		Update("project_id", projectID).Error
	if err != nil {
		return fmt.Errorf("failed to set transaction project: %w", err)
	}
	return nil
}

// GetInstanceByScriptHash retrieves a treasury instance by script hash
func (s *pgStore) GetInstanceByScriptHash(ctx context.Context, scriptHash string) (*schema.TreasuryInstance, error) {
	var instance schema.TreasuryInstance
	err := s.db.WithContext(ctx).Where("script_hash = ?", scriptHash).First(&instance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get treasury instance: %w", err)
	}
	return &instance, nil
}

// SaveInstance creates or updates a treasury instance
func (s *pgStore) SaveInstance(ctx context.Context, instance *schema.TreasuryInstance) error {
	if err := s.db.WithContext(ctx).Save(instance).Error; err != nil {
		return fmt.Errorf("failed to save treasury instance: %w", err)
	}
	return nil
}

// GetProjectByIdentifier retrieves a project by its protocol identifier
func (s *pgStore) GetProjectByIdentifier(ctx context.Context, identifier string) (*schema.Project, error) {
	var project schema.Project
	err := s.db.WithContext(ctx).Where("identifier = ?", identifier).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

// GetProjectByID retrieves a project by its internal id
func (s *pgStore) GetProjectByID(ctx context.Context, projectID int64) (*schema.Project, error) {
	var project schema.Project
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

// SaveProject creates or updates a project
func (s *pgStore) SaveProject(ctx context.Context, project *schema.Project) error {
	if err := s.db.WithContext(ctx).Save(project).Error; err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

// GetMilestone retrieves a milestone by its (project, identifier) natural key
func (s *pgStore) GetMilestone(ctx context.Context, projectID int64, identifier string) (*schema.Milestone, error) {
	var milestone schema.Milestone
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND identifier = ?", projectID, identifier).
		First(&milestone).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get milestone: %w", err)
	}
	return &milestone, nil
}

// ListMilestonesByProject retrieves all milestones of a project
func (s *pgStore) ListMilestonesByProject(ctx context.Context, projectID int64) ([]schema.Milestone, error) {
	var milestones []schema.Milestone
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("identifier").
		Find(&milestones).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	return milestones, nil
}

// SaveMilestone creates or updates a milestone
func (s *pgStore) SaveMilestone(ctx context.Context, milestone *schema.Milestone) error {
	if err := s.db.WithContext(ctx).Save(milestone).Error; err != nil {
		return fmt.Errorf("failed to save milestone: %w", err)
	}
	return nil
}

// ListMatureMilestones retrieves PENDING milestones whose maturity slot has
// been reached. Served by the composite (status, maturity_slot) index.
func (s *pgStore) ListMatureMilestones(ctx context.Context, currentSlot int64) ([]schema.Milestone, error) {
	var milestones []schema.Milestone
	err := s.db.WithContext(ctx).
		Where("status = ? AND maturity_slot IS NOT NULL AND maturity_slot <= ?", schema.MilestoneStatusPending, currentSlot).
		Find(&milestones).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list mature milestones: %w", err)
	}
	return milestones, nil
}

// VendorContractExists checks whether a vendor contract address is known
func (s *pgStore) VendorContractExists(ctx context.Context, paymentAddress string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&schema.VendorContract{}).
		Where("payment_address = ?", paymentAddress).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check vendor contract: %w", err)
	}
	return count > 0, nil
}

// CreateVendorContract inserts a vendor contract discovery record
func (s *pgStore) CreateVendorContract(ctx context.Context, contract *schema.VendorContract) error {
	err := s.db.WithContext(ctx).Create(contract).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Concurrent discovery of the same address; first writer wins.
			return nil
		}
		return fmt.Errorf("failed to create vendor contract: %w", err)
	}
	return nil
}

// ListVendorContracts retrieves all known vendor contracts
func (s *pgStore) ListVendorContracts(ctx context.Context) ([]schema.VendorContract, error) {
	var contracts []schema.VendorContract
	err := s.db.WithContext(ctx).Order("contract_id").Find(&contracts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list vendor contracts: %w", err)
	}
	return contracts, nil
}

// CreateEvent appends a row to the treasury event log
func (s *pgStore) CreateEvent(ctx context.Context, event *schema.TreasuryEvent) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to create treasury event: %w", err)
	}
	return nil
}

// ListEventsByTransaction retrieves the event log rows for a transaction
func (s *pgStore) ListEventsByTransaction(ctx context.Context, txID int64) ([]schema.TreasuryEvent, error) {
	var events []schema.TreasuryEvent
	err := s.db.WithContext(ctx).
		Where("tx_id = ?", txID).
		Order("event_id").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list treasury events: %w", err)
	}
	return events, nil
}
