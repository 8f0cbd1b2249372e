package applier_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intersect-mbo/treasury-indexer/internal/applier"
	"github.com/intersect-mbo/treasury-indexer/internal/domain"
	"github.com/intersect-mbo/treasury-indexer/internal/extractor"
	"github.com/intersect-mbo/treasury-indexer/internal/guard"
	"github.com/intersect-mbo/treasury-indexer/internal/logger"
	"github.com/intersect-mbo/treasury-indexer/internal/mocks"
	"github.com/intersect-mbo/treasury-indexer/internal/registry"
	"github.com/intersect-mbo/treasury-indexer/internal/store"
	"github.com/intersect-mbo/treasury-indexer/internal/store/schema"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

const (
	treasuryAddress    = "addr_treasury"
	treasuryScriptHash = "script_treasury"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type testApplier struct {
	applier  *applier.TreasuryEventApplier
	store    store.Store
	registry *registry.AddressRegistry
}

func newTestApplier(t *testing.T) *testApplier {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	clock := mocks.NewMockClock(ctrl)
	clock.EXPECT().Now().Return(fixedNow).AnyTimes()

	s := store.NewMemoryStore()
	r := registry.NewAddressRegistry(treasuryAddress, treasuryScriptHash)
	g := guard.NewDuplicateGuard(s, 0)
	e := extractor.NewVendorContractExtractor(s, r, treasuryAddress)

	return &testApplier{
		applier:  applier.NewTreasuryEventApplier(s, g, e, clock, treasuryScriptHash, treasuryAddress),
		store:    s,
		registry: r,
	}
}

func strPtr(s string) *string { return &s }

func metadataEvent(txHash string, outputs ...domain.TxOutput) *domain.MetadataEvent {
	return &domain.MetadataEvent{
		TxHash:      txHash,
		Slot:        1000,
		BlockHeight: 10,
		Metadata: map[string]interface{}{
			domain.MetadataLabel: map[string]interface{}{"body": map[string]interface{}{}},
		},
		Outputs: outputs,
	}
}

func parsedEvent(eventType domain.EventType, payload domain.EventPayload) *domain.ParsedEvent {
	return &domain.ParsedEvent{
		Type:     eventType,
		TxAuthor: "author_key_1",
		Payload:  payload,
	}
}

func fundPO123() *domain.ParsedEvent {
	return parsedEvent(domain.EventTypeFund, domain.FundPayload{
		Identifier: "PO123",
		Label:      strPtr("Design Work"),
		Milestones: map[string]domain.FundMilestone{
			"M1": {Label: strPtr("Design")},
		},
	})
}

func TestApply_FundScenario(t *testing.T) {
	ta := newTestApplier(t)
	ctx := context.Background()

	event := metadataEvent("tx_fund_1",
		domain.TxOutput{Address: treasuryAddress, Amount: 900},
		domain.TxOutput{Address: "addr_vendor1", Amount: 100},
	)

	result, err := ta.applier.Apply(ctx, event, fundPO123())
	require.NoError(t, err)
	require.NotNil(t, result.ProjectID)
	assert.False(t, result.Duplicate)

	project, err := ta.store.GetProjectByIdentifier(ctx, "PO123")
	require.NoError(t, err)
	require.NotNil(t, project)
	assert.Equal(t, *result.ProjectID, project.ID)
	assert.Equal(t, "Design Work", *project.Label)

	milestone, err := ta.store.GetMilestone(ctx, project.ID, "M1")
	require.NoError(t, err)
	require.NotNil(t, milestone)
	assert.Equal(t, schema.MilestoneStatusPending, milestone.Status)
	assert.Equal(t, "Design", *milestone.Label)
	assert.Equal(t, int64(100), milestone.AmountLovelace)

	contracts, err := ta.store.ListVendorContracts(ctx)
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Equal(t, "addr_vendor1", contracts[0].PaymentAddress)
	assert.Equal(t, project.ID, contracts[0].ProjectID)
	assert.True(t, ta.registry.IsTracked("addr_vendor1"))

	tx, err := ta.store.GetTransactionByHash(ctx, "tx_fund_1")
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, "fund", tx.EventType)
	require.NotNil(t, tx.ProjectID)
	assert.Equal(t, project.ID, *tx.ProjectID)

	events, err := ta.store.ListEventsByTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "fund", events[0].EventType)
}

func TestApply_ReplayIsNoOp(t *testing.T) {
	ta := newTestApplier(t)
	ctx := context.Background()

	event := metadataEvent("tx_fund_1", domain.TxOutput{Address: "addr_vendor1", Amount: 100})

	first, err := ta.applier.Apply(ctx, event, fundPO123())
	require.NoError(t, err)

	second, err := ta.applier.Apply(ctx, event, fundPO123())
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	require.NotNil(t, second.ProjectID)
	assert.Equal(t, *first.ProjectID, *second.ProjectID)

	// Exactly one transaction row, one event row, one vendor contract
	tx, err := ta.store.GetTransactionByHash(ctx, "tx_fund_1")
	require.NoError(t, err)
	events, err := ta.store.ListEventsByTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	contracts, err := ta.store.ListVendorContracts(ctx)
	require.NoError(t, err)
	assert.Len(t, contracts, 1)
}

func TestApply_PublishUpsert(t *testing.T) {
	ta := newTestApplier(t)
	ctx := context.Background()

	_, err := ta.applier.Apply(ctx, metadataEvent("tx_pub_1"), parsedEvent(domain.EventTypePublish, domain.PublishPayload{
		Label:       strPtr("Treasury One"),
		Description: strPtr("initial"),
		Expiration:  func() *int64 { v := int64(5000000); return &v }(),
	}))
	require.NoError(t, err)

	instance, err := ta.store.GetInstanceByScriptHash(ctx, treasuryScriptHash)
	require.NoError(t, err)
	require.NotNil(t, instance)
	assert.Equal(t, "Treasury One", *instance.Label)
	assert.Equal(t, treasuryAddress, instance.PaymentAddress)

	// A later publish with only a description leaves other fields untouched
	_, err = ta.applier.Apply(ctx, metadataEvent("tx_pub_2"), parsedEvent(domain.EventTypePublish, domain.PublishPayload{
		Description: strPtr("updated"),
	}))
	require.NoError(t, err)

	instance, err = ta.store.GetInstanceByScriptHash(ctx, treasuryScriptHash)
	require.NoError(t, err)
	assert.Equal(t, "Treasury One", *instance.Label)
	assert.Equal(t, "updated", *instance.Description)
	assert.Equal(t, int64(5000000), *instance.ExpirationSlot)
}

func TestApply_MilestoneLifecycle_PauseResumePending(t *testing.T) {
	ta := newTestApplier(t)
	ctx := context.Background()

	_, err := ta.applier.Apply(ctx, metadataEvent("tx_fund_1"), fundPO123())
	require.NoError(t, err)

	_, err = ta.applier.Apply(ctx, metadataEvent("tx_pause_1"), parsedEvent(domain.EventTypePause, domain.PausePayload{
		Identifier: "PO123",
		Milestones: map[string]domain.PauseMilestone{"M1": {Reason: strPtr("dispute")}},
	}))
	require.NoError(t, err)

	project, _ := ta.store.GetProjectByIdentifier(ctx, "PO123")
	milestone, err := ta.store.GetMilestone(ctx, project.ID, "M1")
	require.NoError(t, err)
	assert.Equal(t, schema.MilestoneStatusPaused, milestone.Status)
	require.NotNil(t, milestone.PausedAt)
	assert.Equal(t, fixedNow, *milestone.PausedAt)
	assert.Equal(t, "dispute", *milestone.PausedReason)

	// Never completed, so resume restores PENDING
	_, err = ta.applier.Apply(ctx, metadataEvent("tx_resume_1"), parsedEvent(domain.EventTypeResume, domain.ResumePayload{
		Identifier: "PO123",
		Milestones: map[string]domain.ResumeMilestone{"M1": {Reason: strPtr("resolved")}},
	}))
	require.NoError(t, err)

	milestone, err = ta.store.GetMilestone(ctx, project.ID, "M1")
	require.NoError(t, err)
	assert.Equal(t, schema.MilestoneStatusPending, milestone.Status)
	assert.Nil(t, milestone.PausedAt)
	assert.Nil(t, milestone.PausedReason)
}

func TestApply_MilestoneLifecycle_ResumeRestoresCompleted(t *testing.T) {
	ta := newTestApplier(t)
	ctx := context.Background()

	_, err := ta.applier.Apply(ctx, metadataEvent("tx_fund_1"), fundPO123())
	require.NoError(t, err)

	_, err = ta.applier.Apply(ctx, metadataEvent("tx_complete_1"), parsedEvent(domain.EventTypeComplete, domain.CompletePayload{
		Identifier: "PO123",
		Milestones: map[string]domain.CompleteMilestone{"M1": {Description: strPtr("done")}},
	}))
	require.NoError(t, err)

	project, _ := ta.store.GetProjectByIdentifier(ctx, "PO123")
	milestone, _ := ta.store.GetMilestone(ctx, project.ID, "M1")
	assert.Equal(t, schema.MilestoneStatusCompleted, milestone.Status)
	require.NotNil(t, milestone.CompletedAt)

	_, err = ta.applier.Apply(ctx, metadataEvent("tx_pause_1"), parsedEvent(domain.EventTypePause, domain.PausePayload{
		Identifier: "PO123",
		Milestones: map[string]domain.PauseMilestone{"M1": {Reason: strPtr("audit")}},
	}))
	require.NoError(t, err)

	// Completion timestamp survived the pause, so resume restores COMPLETED
	_, err = ta.applier.Apply(ctx, metadataEvent("tx_resume_1"), parsedEvent(domain.EventTypeResume, domain.ResumePayload{
		Identifier: "PO123",
		Milestones: map[string]domain.ResumeMilestone{"M1": {}},
	}))
	require.NoError(t, err)

	milestone, _ = ta.store.GetMilestone(ctx, project.ID, "M1")
	assert.Equal(t, schema.MilestoneStatusCompleted, milestone.Status)
	assert.Nil(t, milestone.PausedAt)
}

func TestApply_Withdraw(t *testing.T) {
	ta := newTestApplier(t)
	ctx := context.Background()

	_, err := ta.applier.Apply(ctx, metadataEvent("tx_fund_1"), fundPO123())
	require.NoError(t, err)

	_, err = ta.applier.Apply(ctx, metadataEvent("tx_withdraw_1"), parsedEvent(domain.EventTypeWithdraw, domain.WithdrawPayload{
		Identifier: "PO123",
		Milestones: map[string]domain.WithdrawMilestone{"M1": {Comment: strPtr("claimed")}},
	}))
	require.NoError(t, err)

	project, _ := ta.store.GetProjectByIdentifier(ctx, "PO123")
	milestone, _ := ta.store.GetMilestone(ctx, project.ID, "M1")
	assert.Equal(t, schema.MilestoneStatusWithdrawn, milestone.Status)
}

func TestApply_UnknownMilestoneKeyIgnored(t *testing.T) {
	ta := newTestApplier(t)
	ctx := context.Background()

	_, err := ta.applier.Apply(ctx, metadataEvent("tx_fund_1"), fundPO123())
	require.NoError(t, err)

	// M99 does not exist; the event still applies for the keys that do
	_, err = ta.applier.Apply(ctx, metadataEvent("tx_complete_1"), parsedEvent(domain.EventTypeComplete, domain.CompletePayload{
		Identifier: "PO123",
		Milestones: map[string]domain.CompleteMilestone{
			"M1":  {},
			"M99": {},
		},
	}))
	require.NoError(t, err)

	project, _ := ta.store.GetProjectByIdentifier(ctx, "PO123")
	milestone, _ := ta.store.GetMilestone(ctx, project.ID, "M1")
	assert.Equal(t, schema.MilestoneStatusCompleted, milestone.Status)
}

func TestApply_RefundKeepsMilestoneStatus(t *testing.T) {
	ta := newTestApplier(t)
	ctx := context.Background()

	_, err := ta.applier.Apply(ctx, metadataEvent("tx_fund_1"), fundPO123())
	require.NoError(t, err)

	_, err = ta.applier.Apply(ctx, metadataEvent("tx_complete_1"), parsedEvent(domain.EventTypeComplete, domain.CompletePayload{
		Identifier: "PO123",
		Milestones: map[string]domain.CompleteMilestone{"M1": {}},
	}))
	require.NoError(t, err)

	// Re-fund with a new transaction refreshes descriptive fields only
	refund := parsedEvent(domain.EventTypeFund, domain.FundPayload{
		Identifier: "PO123",
		Label:      strPtr("Design Work v2"),
		Milestones: map[string]domain.FundMilestone{
			"M1": {Label: strPtr("Design revised")},
		},
	})
	_, err = ta.applier.Apply(ctx, metadataEvent("tx_fund_2"), refund)
	require.NoError(t, err)

	project, _ := ta.store.GetProjectByIdentifier(ctx, "PO123")
	assert.Equal(t, "Design Work v2", *project.Label)
	milestone, _ := ta.store.GetMilestone(ctx, project.ID, "M1")
	assert.Equal(t, schema.MilestoneStatusCompleted, milestone.Status)
	assert.Equal(t, "Design revised", *milestone.Label)
}

func TestApply_Modify(t *testing.T) {
	ta := newTestApplier(t)
	ctx := context.Background()

	_, err := ta.applier.Apply(ctx, metadataEvent("tx_fund_1"), fundPO123())
	require.NoError(t, err)

	result, err := ta.applier.Apply(ctx, metadataEvent("tx_modify_1"), parsedEvent(domain.EventTypeModify, domain.ModifyPayload{
		FundPayload: domain.FundPayload{
			Identifier:  "PO123",
			Description: strPtr("rescoped"),
			Milestones: map[string]domain.FundMilestone{
				"M7": {Label: strPtr("should not be created")},
			},
		},
		Reason: strPtr("scope change"),
	}))
	require.NoError(t, err)
	require.NotNil(t, result.ProjectID)

	project, _ := ta.store.GetProjectByIdentifier(ctx, "PO123")
	assert.Equal(t, "rescoped", *project.Description)
	assert.Equal(t, "Design Work", *project.Label)

	// modify never touches milestones
	m7, err := ta.store.GetMilestone(ctx, project.ID, "M7")
	require.NoError(t, err)
	assert.Nil(t, m7)
}

func TestApply_LogOnlyEvents(t *testing.T) {
	ta := newTestApplier(t)
	ctx := context.Background()

	cases := []struct {
		txHash string
		event  *domain.ParsedEvent
		logged string
	}{
		{"tx_sweep_1", parsedEvent(domain.EventTypeSweep, domain.SweepPayload{Comment: strPtr("swept")}), "sweep"},
		{"tx_disburse_1", parsedEvent(domain.EventTypeDisburse, domain.DisbursePayload{Label: strPtr("grant")}), "disburse"},
		{"tx_reorg_1", parsedEvent(domain.EventTypeReorganize, domain.ReorganizePayload{Reason: strPtr("cleanup")}), "reorganize"},
		{"tx_init_1", parsedEvent(domain.EventTypeInitialize, domain.ReorganizePayload{}), "initialize"},
		{"tx_cancel_1", parsedEvent(domain.EventTypeCancel, domain.ModifyPayload{
			FundPayload: domain.FundPayload{Identifier: "PO123"},
			Reason:      strPtr("abandoned"),
		}), "cancel"},
	}

	for _, tc := range cases {
		result, err := ta.applier.Apply(ctx, metadataEvent(tc.txHash), tc.event)
		require.NoError(t, err, tc.logged)

		tx, err := ta.store.GetTransactionByHash(ctx, tc.txHash)
		require.NoError(t, err)
		require.NotNil(t, tx, tc.logged)
		assert.Equal(t, tc.logged, tx.EventType)

		events, err := ta.store.ListEventsByTransaction(ctx, tx.ID)
		require.NoError(t, err)
		assert.Len(t, events, 1, tc.logged)
		assert.False(t, result.Duplicate)
	}

	// None of them created entities
	project, err := ta.store.GetProjectByIdentifier(ctx, "PO123")
	require.NoError(t, err)
	assert.Nil(t, project)
}
