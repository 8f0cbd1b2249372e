package registry

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/intersect-mbo/treasury-indexer/internal/logger"
	"github.com/intersect-mbo/treasury-indexer/internal/store"
)

// AddressRegistry is the dynamic set of payment addresses and script hashes
// the pipeline watches. It starts with the treasury's own address and grows as
// vendor contracts are discovered. Membership tests run on every incoming
// event from concurrent handlers, so both sets are lock-free sync.Maps.
type AddressRegistry struct {
	addresses    sync.Map
	scriptHashes sync.Map
}

// NewAddressRegistry creates a registry seeded with the treasury payment
// address and script hash.
func NewAddressRegistry(treasuryAddress, treasuryScriptHash string) *AddressRegistry {
	r := &AddressRegistry{}
	if treasuryAddress != "" {
		r.addresses.Store(treasuryAddress, struct{}{})
	}
	if treasuryScriptHash != "" {
		r.scriptHashes.Store(treasuryScriptHash, struct{}{})
	}
	return r
}

// IsTracked reports whether a payment address is being watched.
func (r *AddressRegistry) IsTracked(address string) bool {
	_, ok := r.addresses.Load(address)
	return ok
}

// IsTrackedScript reports whether a script hash is being watched.
func (r *AddressRegistry) IsTrackedScript(scriptHash string) bool {
	_, ok := r.scriptHashes.Load(scriptHash)
	return ok
}

// Register adds an address and its optional script hash to the watched sets.
// Re-registering an existing address is a no-op.
func (r *AddressRegistry) Register(address string, scriptHash *string) {
	if address != "" {
		r.addresses.Store(address, struct{}{})
	}
	if scriptHash != nil && *scriptHash != "" {
		r.scriptHashes.Store(*scriptHash, struct{}{})
	}
}

// TouchesTracked reports whether any of the given addresses is watched.
func (r *AddressRegistry) TouchesTracked(addresses []string) bool {
	for _, address := range addresses {
		if r.IsTracked(address) {
			return true
		}
	}
	return false
}

// Seed loads every previously discovered vendor contract from the durable
// store into the registry. Run once at startup so discovery survives process
// restarts.
func (r *AddressRegistry) Seed(ctx context.Context, s store.Store) error {
	contracts, err := s.ListVendorContracts(ctx)
	if err != nil {
		return err
	}
	for _, contract := range contracts {
		r.Register(contract.PaymentAddress, contract.ScriptHash)
	}
	logger.Info("address registry seeded",
		zap.Int("vendor_contracts", len(contracts)))
	return nil
}
