package extractor_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intersect-mbo/treasury-indexer/internal/domain"
	"github.com/intersect-mbo/treasury-indexer/internal/extractor"
	"github.com/intersect-mbo/treasury-indexer/internal/logger"
	"github.com/intersect-mbo/treasury-indexer/internal/registry"
	"github.com/intersect-mbo/treasury-indexer/internal/store"
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

const treasuryAddress = "addr_treasury"

func newTestExtractor() (*extractor.VendorContractExtractor, store.Store, *registry.AddressRegistry) {
	s := store.NewMemoryStore()
	r := registry.NewAddressRegistry(treasuryAddress, "script_treasury")
	return extractor.NewVendorContractExtractor(s, r, treasuryAddress), s, r
}

func TestExtract_DiscoversNonTreasuryOutputs(t *testing.T) {
	e, s, r := newTestExtractor()

	scriptHash := "script_vendor1"
	outputs := []domain.TxOutput{
		{Address: treasuryAddress, Amount: 900},
		{Address: "addr_vendor1", ScriptHash: &scriptHash, Amount: 100},
	}

	require.NoError(t, e.Extract(context.Background(), "tx_1", 42, outputs))

	contracts, err := s.ListVendorContracts(context.Background())
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Equal(t, "addr_vendor1", contracts[0].PaymentAddress)
	assert.Equal(t, int64(42), contracts[0].ProjectID)
	assert.Equal(t, "tx_1", contracts[0].DiscoveredFromTxHash)
	require.NotNil(t, contracts[0].ScriptHash)
	assert.Equal(t, "script_vendor1", *contracts[0].ScriptHash)

	assert.True(t, r.IsTracked("addr_vendor1"))
	assert.True(t, r.IsTrackedScript("script_vendor1"))
	assert.False(t, r.IsTracked("addr_other"))
}

func TestExtract_MultipleVendorsInOneTransaction(t *testing.T) {
	e, s, _ := newTestExtractor()

	outputs := []domain.TxOutput{
		{Address: "addr_vendor1", Amount: 100},
		{Address: "addr_vendor2", Amount: 200},
		{Address: treasuryAddress, Amount: 700},
	}

	require.NoError(t, e.Extract(context.Background(), "tx_1", 42, outputs))

	contracts, err := s.ListVendorContracts(context.Background())
	require.NoError(t, err)
	assert.Len(t, contracts, 2)
}

func TestExtract_Idempotent(t *testing.T) {
	e, s, r := newTestExtractor()

	outputs := []domain.TxOutput{{Address: "addr_vendor1", Amount: 100}}

	require.NoError(t, e.Extract(context.Background(), "tx_1", 42, outputs))
	// Same address rediscovered by a later transaction
	require.NoError(t, e.Extract(context.Background(), "tx_2", 43, outputs))

	contracts, err := s.ListVendorContracts(context.Background())
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	// The first discovery wins
	assert.Equal(t, "tx_1", contracts[0].DiscoveredFromTxHash)
	assert.True(t, r.IsTracked("addr_vendor1"))
}

func TestExtract_OnlyTreasuryOutputs(t *testing.T) {
	e, s, _ := newTestExtractor()

	outputs := []domain.TxOutput{{Address: treasuryAddress, Amount: 1000}}
	require.NoError(t, e.Extract(context.Background(), "tx_1", 42, outputs))

	contracts, err := s.ListVendorContracts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, contracts)
}

func TestMilestoneAmounts(t *testing.T) {
	e, _, _ := newTestExtractor()

	outputs := []domain.TxOutput{
		{Address: treasuryAddress, Amount: 700},
		{Address: "addr_vendor1", Amount: 100},
		{Address: "addr_vendor2", Amount: 200},
	}

	// Keys are paired with vendor outputs in lexical order
	amounts := e.MilestoneAmounts(outputs, []string{"M2", "M1"})
	assert.Equal(t, map[string]int64{"M1": 100, "M2": 200}, amounts)

	// More milestones than outputs leaves the remainder unallocated
	amounts = e.MilestoneAmounts(outputs, []string{"M1", "M2", "M3"})
	assert.Equal(t, map[string]int64{"M1": 100, "M2": 200}, amounts)

	// No vendor outputs, nothing to allocate
	amounts = e.MilestoneAmounts([]domain.TxOutput{{Address: treasuryAddress, Amount: 1}}, []string{"M1"})
	assert.Nil(t, amounts)
}
