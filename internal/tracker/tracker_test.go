package tracker_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intersect-mbo/treasury-indexer/internal/logger"
	"github.com/intersect-mbo/treasury-indexer/internal/store"
	"github.com/intersect-mbo/treasury-indexer/internal/store/schema"
	"github.com/intersect-mbo/treasury-indexer/internal/tracker"
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

func TestUpdateCurrentSlot_Monotonic(t *testing.T) {
	tr := tracker.NewSlotTracker(store.NewMemoryStore(), 100)

	tr.UpdateCurrentSlot(150)
	assert.Equal(t, int64(150), tr.CurrentSlot())

	// Out-of-order header never regresses the watermark
	tr.UpdateCurrentSlot(120)
	assert.Equal(t, int64(150), tr.CurrentSlot())

	tr.UpdateCurrentSlot(200)
	assert.Equal(t, int64(200), tr.CurrentSlot())
}

func TestMarkProcessed_Monotonic(t *testing.T) {
	tr := tracker.NewSlotTracker(store.NewMemoryStore(), 0)

	tr.MarkProcessed(50)
	tr.MarkProcessed(30)
	assert.Equal(t, int64(50), tr.LastProcessedSlot())
}

func TestWatermarks_ConcurrentAdvance(t *testing.T) {
	tr := tracker.NewSlotTracker(store.NewMemoryStore(), 0)

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		slot := int64(i)
		go func() {
			defer wg.Done()
			tr.UpdateCurrentSlot(slot)
			tr.MarkProcessed(slot)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), tr.CurrentSlot())
	assert.Equal(t, int64(100), tr.LastProcessedSlot())
}

func TestCheckMaturity(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	matureSlot := int64(500)
	futureSlot := int64(5000)
	require.NoError(t, s.SaveMilestone(ctx, &schema.Milestone{
		ProjectID:    1,
		Identifier:   "M1",
		Status:       schema.MilestoneStatusPending,
		MaturitySlot: &matureSlot,
	}))
	require.NoError(t, s.SaveMilestone(ctx, &schema.Milestone{
		ProjectID:    1,
		Identifier:   "M2",
		Status:       schema.MilestoneStatusPending,
		MaturitySlot: &futureSlot,
	}))
	require.NoError(t, s.SaveMilestone(ctx, &schema.Milestone{
		ProjectID:    1,
		Identifier:   "M3",
		Status:       schema.MilestoneStatusCompleted,
		MaturitySlot: &matureSlot,
	}))

	tr := tracker.NewSlotTracker(s, 0)
	tr.UpdateCurrentSlot(1000)

	mature, err := tr.CheckMaturity(ctx)
	require.NoError(t, err)
	require.Len(t, mature, 1)
	assert.Equal(t, "M1", mature[0].Identifier)

	// The scan is observational, the milestone stays PENDING
	m1, err := s.GetMilestone(ctx, 1, "M1")
	require.NoError(t, err)
	assert.Equal(t, schema.MilestoneStatusPending, m1.Status)
}
