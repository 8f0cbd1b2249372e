package applier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/intersect-mbo/treasury-indexer/internal/adapter"
	"github.com/intersect-mbo/treasury-indexer/internal/domain"
	"github.com/intersect-mbo/treasury-indexer/internal/extractor"
	"github.com/intersect-mbo/treasury-indexer/internal/guard"
	"github.com/intersect-mbo/treasury-indexer/internal/logger"
	"github.com/intersect-mbo/treasury-indexer/internal/metrics"
	"github.com/intersect-mbo/treasury-indexer/internal/store"
	"github.com/intersect-mbo/treasury-indexer/internal/store/schema"
)

// TreasuryEventApplier is the state machine of the pipeline. Given a decoded
// event it computes and persists the entity mutations for that event kind,
// records the immutable transaction and event-log rows, and hands fund
// transactions to the vendor contract extractor. Every mutation for one
// on-chain transaction happens inside a single database transaction, and the
// unique tx_hash constraint guarantees at-most-once application even when two
// handlers race on the same hash.
type TreasuryEventApplier struct {
	store     store.Store
	guard     *guard.DuplicateGuard
	extractor *extractor.VendorContractExtractor
	clock     adapter.Clock

	treasuryScriptHash string
	treasuryAddress    string
}

// Result is the outcome of applying one transaction.
type Result struct {
	// TxID is the internal id of the recorded transaction row.
	TxID int64
	// ProjectID is set when the event resolved to a project.
	ProjectID *int64
	// Duplicate is true when the transaction had already been applied and
	// nothing was mutated.
	Duplicate bool
}

// NewTreasuryEventApplier creates an applier bound to the configured treasury
// identity.
func NewTreasuryEventApplier(
	s store.Store,
	g *guard.DuplicateGuard,
	e *extractor.VendorContractExtractor,
	clock adapter.Clock,
	treasuryScriptHash string,
	treasuryAddress string,
) *TreasuryEventApplier {
	return &TreasuryEventApplier{
		store:              s,
		guard:              g,
		extractor:          e,
		clock:              clock,
		treasuryScriptHash: treasuryScriptHash,
		treasuryAddress:    treasuryAddress,
	}
}

// Apply processes one decoded treasury transaction. Reapplying an already
// recorded transaction hash is a no-op that returns the previously resolved
// project id. A returned error means nothing was committed and the event is
// safe to redeliver.
func (a *TreasuryEventApplier) Apply(ctx context.Context, event *domain.MetadataEvent, parsed *domain.ParsedEvent) (*Result, error) {
	if parsed == nil || parsed.Payload == nil {
		return nil, fmt.Errorf("no decoded payload for transaction %s", event.TxHash)
	}

	duplicate, err := a.guard.IsDuplicate(ctx, event.TxHash)
	if err != nil {
		return nil, fmt.Errorf("failed duplicate check for %s: %w", event.TxHash, err)
	}
	if duplicate {
		metrics.DuplicatesSkipped.Inc()
		return a.priorResult(ctx, event.TxHash)
	}

	result := &Result{}
	err = a.store.WithTransaction(ctx, func(tx store.Store) error {
		instance, err := a.getOrCreateInstance(ctx, tx, parsed)
		if err != nil {
			return err
		}

		txRow, err := buildTransactionRow(event, parsed, instance.ID)
		if err != nil {
			return err
		}
		if err := tx.CreateTransaction(ctx, txRow); err != nil {
			return err
		}

		var projectID *int64
		switch p := parsed.Payload.(type) {
		case domain.PublishPayload:
			err = a.applyPublish(ctx, tx, instance, p)
		case domain.FundPayload:
			projectID, err = a.applyFund(ctx, tx, instance.ID, p, event.Outputs)
		case domain.CompletePayload:
			projectID, err = a.applyComplete(ctx, tx, p)
		case domain.WithdrawPayload:
			projectID, err = a.applyWithdraw(ctx, tx, p)
		case domain.PausePayload:
			projectID, err = a.applyPause(ctx, tx, p)
		case domain.ResumePayload:
			projectID, err = a.applyResume(ctx, tx, p)
		case domain.ModifyPayload:
			if parsed.Type == domain.EventTypeModify {
				projectID, err = a.applyModify(ctx, tx, p)
			} else {
				// cancel carries the same shape but is log-only
				projectID, err = a.resolveProject(ctx, tx, p.Identifier)
			}
		case domain.DisbursePayload, domain.SweepPayload, domain.ReorganizePayload:
			// log-only event kinds, recorded in the event log below
		default:
			err = fmt.Errorf("unhandled payload type %T", p)
		}
		if err != nil {
			return err
		}

		if projectID != nil {
			if err := tx.SetTransactionProject(ctx, txRow.ID, *projectID); err != nil {
				return err
			}
		}

		payloadJSON, err := json.Marshal(parsed.Payload)
		if err != nil {
			return fmt.Errorf("failed to serialize event payload: %w", err)
		}
		eventRow := &schema.TreasuryEvent{
			TxID:      txRow.ID,
			EventType: string(parsed.Type),
			ProjectID: projectID,
			EventData: datatypes.JSON(payloadJSON),
		}
		if err := tx.CreateEvent(ctx, eventRow); err != nil {
			return err
		}

		result.TxID = txRow.ID
		result.ProjectID = projectID
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateTransaction) {
			// Another handler won the race on this hash.
			metrics.DuplicatesSkipped.Inc()
			return a.priorResult(ctx, event.TxHash)
		}
		return nil, err
	}

	a.guard.MarkProcessed(event.TxHash)
	metrics.TransactionsProcessed.WithLabelValues(string(parsed.Type)).Inc()

	// Vendor discovery runs after the commit. It is idempotent, so a failure
	// here is logged rather than failing the already-applied transaction.
	if _, isFund := parsed.Payload.(domain.FundPayload); isFund && result.ProjectID != nil {
		if err := a.extractor.Extract(ctx, event.TxHash, *result.ProjectID, event.Outputs); err != nil {
			metrics.ApplyErrors.Inc()
			logger.Error(err, zap.String("tx_hash", event.TxHash))
		}
	}

	return result, nil
}

// priorResult returns the outcome recorded when the transaction was first
// applied.
func (a *TreasuryEventApplier) priorResult(ctx context.Context, txHash string) (*Result, error) {
	prior, err := a.store.GetTransactionByHash(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		return nil, fmt.Errorf("transaction %s flagged duplicate but not found", txHash)
	}
	logger.Debug("skipping already applied transaction",
		zap.String("tx_hash", txHash))
	return &Result{TxID: prior.ID, ProjectID: prior.ProjectID, Duplicate: true}, nil
}

// getOrCreateInstance lazily creates the treasury instance the first time any
// event referencing it arrives.
func (a *TreasuryEventApplier) getOrCreateInstance(ctx context.Context, tx store.Store, parsed *domain.ParsedEvent) (*schema.TreasuryInstance, error) {
	scriptHash := parsed.Instance
	if scriptHash == "" {
		scriptHash = a.treasuryScriptHash
	}

	instance, err := tx.GetInstanceByScriptHash(ctx, scriptHash)
	if err != nil {
		return nil, err
	}
	if instance != nil {
		return instance, nil
	}

	instance = &schema.TreasuryInstance{
		ScriptHash:     scriptHash,
		PaymentAddress: a.treasuryAddress,
	}
	if err := tx.SaveInstance(ctx, instance); err != nil {
		return nil, err
	}
	logger.Info("treasury instance created",
		zap.String("script_hash", scriptHash))
	return instance, nil
}

func (a *TreasuryEventApplier) applyPublish(ctx context.Context, tx store.Store, instance *schema.TreasuryInstance, p domain.PublishPayload) error {
	if p.Label != nil {
		instance.Label = p.Label
	}
	if p.Description != nil {
		instance.Description = p.Description
	}
	if p.Expiration != nil {
		instance.ExpirationSlot = p.Expiration
	}
	if !p.Permissions.IsNull() {
		permissions, err := json.Marshal(p.Permissions)
		if err != nil {
			return fmt.Errorf("failed to serialize permissions: %w", err)
		}
		instance.Permissions = datatypes.JSON(permissions)
	}
	return tx.SaveInstance(ctx, instance)
}

func (a *TreasuryEventApplier) applyFund(ctx context.Context, tx store.Store, instanceID int64, p domain.FundPayload, outputs []domain.TxOutput) (*int64, error) {
	if p.Identifier == "" {
		logger.Warn("fund event without project identifier, nothing to upsert")
		return nil, nil
	}

	project, err := tx.GetProjectByIdentifier(ctx, p.Identifier)
	if err != nil {
		return nil, err
	}
	created := project == nil
	if created {
		project = &schema.Project{
			Identifier:         p.Identifier,
			TreasuryInstanceID: instanceID,
		}
	}

	project.Label = p.Label
	project.Description = p.Description
	if p.Vendor != nil {
		project.VendorLabel = p.Vendor.Label
		if !p.Vendor.Details.IsNull() {
			details, err := json.Marshal(p.Vendor.Details)
			if err != nil {
				return nil, fmt.Errorf("failed to serialize vendor details: %w", err)
			}
			project.VendorDetails = datatypes.JSON(details)
		}
	}
	if p.Contract != nil {
		project.ContractURL = &p.Contract.URL
		if p.Contract.DataHash != "" {
			hash := p.Contract.DataHash
			project.ContractHash = &hash
		}
	}
	if len(p.OtherIdentifiers) > 0 {
		others, err := json.Marshal(p.OtherIdentifiers)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize other identifiers: %w", err)
		}
		project.OtherIdentifiers = datatypes.JSON(others)
	}

	if err := tx.SaveProject(ctx, project); err != nil {
		return nil, err
	}
	if created {
		metrics.ProjectsCreated.Inc()
		logger.Info("project created",
			zap.String("identifier", p.Identifier),
			zap.Int64("project_id", project.ID))
	}

	keys := sortedKeys(p.Milestones)
	amounts := a.extractor.MilestoneAmounts(outputs, keys)
	for _, key := range keys {
		def := p.Milestones[key]
		milestone, err := tx.GetMilestone(ctx, project.ID, key)
		if err != nil {
			return nil, err
		}
		if milestone == nil {
			milestone = &schema.Milestone{
				ProjectID:          project.ID,
				Identifier:         key,
				Label:              def.Label,
				Description:        def.Description,
				AcceptanceCriteria: def.AcceptanceCriteria,
				AmountLovelace:     amounts[key],
				Status:             schema.MilestoneStatusPending,
			}
			if err := tx.SaveMilestone(ctx, milestone); err != nil {
				return nil, err
			}
			metrics.MilestonesCreated.Inc()
			continue
		}

		// Re-fund refreshes descriptive fields only; lifecycle state is
		// driven exclusively by complete/withdraw/pause/resume.
		milestone.Label = def.Label
		milestone.Description = def.Description
		milestone.AcceptanceCriteria = def.AcceptanceCriteria
		if err := tx.SaveMilestone(ctx, milestone); err != nil {
			return nil, err
		}
	}

	return &project.ID, nil
}

func (a *TreasuryEventApplier) applyComplete(ctx context.Context, tx store.Store, p domain.CompletePayload) (*int64, error) {
	return a.transitionMilestones(ctx, tx, p.Identifier, sortedKeys(p.Milestones), func(m *schema.Milestone) {
		m.Status = schema.MilestoneStatusCompleted
		now := a.clock.Now()
		m.CompletedAt = &now
	})
}

func (a *TreasuryEventApplier) applyWithdraw(ctx context.Context, tx store.Store, p domain.WithdrawPayload) (*int64, error) {
	return a.transitionMilestones(ctx, tx, p.Identifier, sortedKeys(p.Milestones), func(m *schema.Milestone) {
		m.Status = schema.MilestoneStatusWithdrawn
	})
}

func (a *TreasuryEventApplier) applyPause(ctx context.Context, tx store.Store, p domain.PausePayload) (*int64, error) {
	keys := sortedKeys(p.Milestones)
	return a.transitionMilestones(ctx, tx, p.Identifier, keys, func(m *schema.Milestone) {
		m.Status = schema.MilestoneStatusPaused
		now := a.clock.Now()
		m.PausedAt = &now
		m.PausedReason = p.Milestones[m.Identifier].Reason
	})
}

// applyResume restores a paused milestone. The prior state is reconstructed
// from the completion timestamp: a milestone that had completed before the
// pause returns to COMPLETED, anything else returns to PENDING.
func (a *TreasuryEventApplier) applyResume(ctx context.Context, tx store.Store, p domain.ResumePayload) (*int64, error) {
	return a.transitionMilestones(ctx, tx, p.Identifier, sortedKeys(p.Milestones), func(m *schema.Milestone) {
		m.PausedAt = nil
		m.PausedReason = nil
		if m.CompletedAt != nil {
			m.Status = schema.MilestoneStatusCompleted
		} else {
			m.Status = schema.MilestoneStatusPending
		}
	})
}

// applyModify refreshes a project's label and description and records the
// stated reason. Milestones and vendor info are not touched by modify.
func (a *TreasuryEventApplier) applyModify(ctx context.Context, tx store.Store, p domain.ModifyPayload) (*int64, error) {
	if p.Identifier == "" {
		logger.Warn("modify event without project identifier, nothing to update")
		return nil, nil
	}
	project, err := tx.GetProjectByIdentifier(ctx, p.Identifier)
	if err != nil {
		return nil, err
	}
	if project == nil {
		logger.Warn("modify event for unknown project",
			zap.String("identifier", p.Identifier))
		return nil, nil
	}

	if p.Label != nil {
		project.Label = p.Label
	}
	if p.Description != nil {
		project.Description = p.Description
	}
	if err := tx.SaveProject(ctx, project); err != nil {
		return nil, err
	}
	if p.Reason != nil {
		logger.Info("project modified",
			zap.String("identifier", p.Identifier),
			zap.Stringp("reason", p.Reason))
	}
	return &project.ID, nil
}

// resolveProject looks up a project id by identifier without mutating it.
func (a *TreasuryEventApplier) resolveProject(ctx context.Context, tx store.Store, identifier string) (*int64, error) {
	if identifier == "" {
		return nil, nil
	}
	project, err := tx.GetProjectByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, nil
	}
	return &project.ID, nil
}

// transitionMilestones applies mutate to every named milestone of the
// project. Unknown milestone keys are logged and skipped, never fatal.
func (a *TreasuryEventApplier) transitionMilestones(ctx context.Context, tx store.Store, identifier string, keys []string, mutate func(*schema.Milestone)) (*int64, error) {
	if identifier == "" {
		logger.Warn("milestone event without project identifier, nothing to update")
		return nil, nil
	}
	project, err := tx.GetProjectByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if project == nil {
		logger.Warn("milestone event for unknown project",
			zap.String("identifier", identifier))
		return nil, nil
	}

	for _, key := range keys {
		milestone, err := tx.GetMilestone(ctx, project.ID, key)
		if err != nil {
			return nil, err
		}
		if milestone == nil {
			logger.Warn("event references unknown milestone, skipping",
				zap.String("project", identifier),
				zap.String("milestone", key))
			continue
		}
		mutate(milestone)
		if err := tx.SaveMilestone(ctx, milestone); err != nil {
			return nil, err
		}
	}
	return &project.ID, nil
}

// buildTransactionRow assembles the immutable transaction record.
func buildTransactionRow(event *domain.MetadataEvent, parsed *domain.ParsedEvent, instanceID int64) (*schema.TreasuryTransaction, error) {
	rawMetadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize raw metadata: %w", err)
	}

	blockHeight := int64(event.BlockHeight)
	row := &schema.TreasuryTransaction{
		TxHash:      event.TxHash,
		Slot:        int64(event.Slot),
		BlockHeight: &blockHeight,
		EventType:   string(parsed.Type),
		InstanceID:  instanceID,
		Metadata:    datatypes.JSON(rawMetadata),
	}
	if parsed.TxAuthor != "" {
		author := parsed.TxAuthor
		row.TxAuthor = &author
	}
	if parsed.Anchor != nil {
		url := parsed.Anchor.URL
		row.AnchorURL = &url
		if parsed.Anchor.DataHash != "" {
			hash := parsed.Anchor.DataHash
			row.AnchorHash = &hash
		}
	}
	return row, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
