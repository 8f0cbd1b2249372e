package extractor

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/intersect-mbo/treasury-indexer/internal/domain"
	"github.com/intersect-mbo/treasury-indexer/internal/logger"
	"github.com/intersect-mbo/treasury-indexer/internal/metrics"
	"github.com/intersect-mbo/treasury-indexer/internal/registry"
	"github.com/intersect-mbo/treasury-indexer/internal/store"
	"github.com/intersect-mbo/treasury-indexer/internal/store/schema"
)

// VendorContractExtractor discovers vendor contract addresses from the
// outputs of fund transactions. Any output not paying back to the treasury's
// own address is a new downstream contract that the registry must begin
// watching.
type VendorContractExtractor struct {
	store           store.Store
	registry        *registry.AddressRegistry
	treasuryAddress string
}

// NewVendorContractExtractor creates an extractor bound to the treasury's
// payment address.
func NewVendorContractExtractor(s store.Store, r *registry.AddressRegistry, treasuryAddress string) *VendorContractExtractor {
	return &VendorContractExtractor{
		store:           s,
		registry:        r,
		treasuryAddress: treasuryAddress,
	}
}

// Extract inspects every output of a fund transaction and records each
// non-treasury address as a VendorContract for the project. The durable
// existence check, not the in-process registry, decides whether an address is
// new, so discovery survives restarts. Re-running extraction for a known
// address is a no-op.
func (e *VendorContractExtractor) Extract(ctx context.Context, txHash string, projectID int64, outputs []domain.TxOutput) error {
	for _, output := range outputs {
		if output.Address == "" || output.Address == e.treasuryAddress {
			continue
		}

		exists, err := e.store.VendorContractExists(ctx, output.Address)
		if err != nil {
			return fmt.Errorf("failed to check vendor contract %s: %w", output.Address, err)
		}
		if exists {
			e.registry.Register(output.Address, output.ScriptHash)
			continue
		}

		contract := &schema.VendorContract{
			ProjectID:            projectID,
			PaymentAddress:       output.Address,
			ScriptHash:           output.ScriptHash,
			DiscoveredFromTxHash: txHash,
		}
		if err := e.store.CreateVendorContract(ctx, contract); err != nil {
			return fmt.Errorf("failed to create vendor contract %s: %w", output.Address, err)
		}

		e.registry.Register(output.Address, output.ScriptHash)
		metrics.VendorContractsDiscovered.Inc()
		logger.Info("vendor contract discovered",
			zap.String("address", output.Address),
			zap.Int64("project_id", projectID),
			zap.String("tx_hash", txHash))
	}
	return nil
}

// MilestoneAmounts pairs the transaction's non-treasury output amounts with
// milestone keys in lexical key order. The protocol emits one vendor output
// per funded milestone; when the counts disagree the shorter side wins and
// the remainder is left unallocated.
func (e *VendorContractExtractor) MilestoneAmounts(outputs []domain.TxOutput, milestoneKeys []string) map[string]int64 {
	var amounts []int64
	for _, output := range outputs {
		if output.Address == "" || output.Address == e.treasuryAddress {
			continue
		}
		amounts = append(amounts, output.Amount)
	}
	if len(amounts) == 0 || len(milestoneKeys) == 0 {
		return nil
	}

	keys := make([]string, len(milestoneKeys))
	copy(keys, milestoneKeys)
	sort.Strings(keys)

	allocated := make(map[string]int64)
	for i, key := range keys {
		if i >= len(amounts) {
			break
		}
		allocated[key] = amounts[i]
	}
	return allocated
}
