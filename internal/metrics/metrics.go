package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionsProcessed counts treasury transactions fully applied, by
	// event type.
	TransactionsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "treasury_indexer",
		Name:      "transactions_processed_total",
		Help:      "Number of treasury transactions applied, by event type",
	}, []string{"event_type"})

	// DuplicatesSkipped counts redelivered transactions short-circuited by the
	// duplicate guard.
	DuplicatesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "treasury_indexer",
		Name:      "duplicates_skipped_total",
		Help:      "Number of already-applied transactions skipped",
	})

	// DecodeFailures counts metadata documents dropped during decoding.
	DecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "treasury_indexer",
		Name:      "decode_failures_total",
		Help:      "Number of metadata documents that failed to decode",
	})

	// ApplyErrors counts events that failed while mutating entity state.
	ApplyErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "treasury_indexer",
		Name:      "apply_errors_total",
		Help:      "Number of events that failed during application",
	})

	// ProjectsCreated counts new projects created by fund events.
	ProjectsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "treasury_indexer",
		Name:      "projects_created_total",
		Help:      "Number of projects created",
	})

	// MilestonesCreated counts new milestones created by fund events.
	MilestonesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "treasury_indexer",
		Name:      "milestones_created_total",
		Help:      "Number of milestones created",
	})

	// VendorContractsDiscovered counts new vendor contract addresses.
	VendorContractsDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "treasury_indexer",
		Name:      "vendor_contracts_discovered_total",
		Help:      "Number of vendor contract addresses discovered",
	})

	// CurrentSlot is the highest slot observed in any block header.
	CurrentSlot = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "treasury_indexer",
		Name:      "current_slot",
		Help:      "Highest chain slot observed",
	})

	// LastProcessedSlot is the highest slot whose events have been applied.
	LastProcessedSlot = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "treasury_indexer",
		Name:      "last_processed_slot",
		Help:      "Highest chain slot fully processed",
	})

	// MatureMilestones is the number of pending milestones whose maturity slot
	// has been reached, as of the last scan.
	MatureMilestones = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "treasury_indexer",
		Name:      "mature_milestones",
		Help:      "Pending milestones past their maturity slot at last scan",
	})
)
