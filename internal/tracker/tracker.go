package tracker

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/intersect-mbo/treasury-indexer/internal/logger"
	"github.com/intersect-mbo/treasury-indexer/internal/metrics"
	"github.com/intersect-mbo/treasury-indexer/internal/store"
	"github.com/intersect-mbo/treasury-indexer/internal/store/schema"
)

// SlotTracker maintains the chain progress watermarks: the highest slot seen
// in any block header and the highest slot whose events have been applied.
// Both counters only advance, regardless of the order handlers finish in.
type SlotTracker struct {
	store store.Store

	currentSlot       atomic.Int64
	lastProcessedSlot atomic.Int64
}

// NewSlotTracker creates a tracker starting at startSlot.
func NewSlotTracker(s store.Store, startSlot int64) *SlotTracker {
	t := &SlotTracker{store: s}
	t.currentSlot.Store(startSlot)
	t.lastProcessedSlot.Store(startSlot)
	return t
}

// UpdateCurrentSlot advances the observed slot watermark. Out-of-order block
// headers never regress it.
func (t *SlotTracker) UpdateCurrentSlot(slot int64) {
	for {
		current := t.currentSlot.Load()
		if slot <= current {
			return
		}
		if t.currentSlot.CompareAndSwap(current, slot) {
			metrics.CurrentSlot.Set(float64(slot))
			return
		}
	}
}

// MarkProcessed advances the processed slot watermark after a transaction's
// events have all been applied.
func (t *SlotTracker) MarkProcessed(slot int64) {
	for {
		current := t.lastProcessedSlot.Load()
		if slot <= current {
			return
		}
		if t.lastProcessedSlot.CompareAndSwap(current, slot) {
			metrics.LastProcessedSlot.Set(float64(slot))
			return
		}
	}
}

// CurrentSlot returns the highest slot observed.
func (t *SlotTracker) CurrentSlot() int64 {
	return t.currentSlot.Load()
}

// LastProcessedSlot returns the highest slot fully processed.
func (t *SlotTracker) LastProcessedSlot() int64 {
	return t.lastProcessedSlot.Load()
}

// CheckMaturity scans for pending milestones whose maturity slot has been
// reached. The scan is observational: it surfaces withdrawal eligibility in
// logs and metrics but mutates nothing, since withdrawal still requires an
// explicit on-chain event.
func (t *SlotTracker) CheckMaturity(ctx context.Context) ([]schema.Milestone, error) {
	currentSlot := t.currentSlot.Load()
	mature, err := t.store.ListMatureMilestones(ctx, currentSlot)
	if err != nil {
		return nil, fmt.Errorf("failed to scan mature milestones: %w", err)
	}

	metrics.MatureMilestones.Set(float64(len(mature)))
	for _, m := range mature {
		logger.Info("milestone matured, eligible for withdrawal",
			zap.Int64("project_id", m.ProjectID),
			zap.String("identifier", m.Identifier),
			zap.Int64p("maturity_slot", m.MaturitySlot),
			zap.Int64("current_slot", currentSlot))
	}
	return mature, nil
}
