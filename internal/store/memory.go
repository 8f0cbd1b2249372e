package store

import (
	"context"
	"sort"
	"sync"

	"github.com/intersect-mbo/treasury-indexer/internal/store/schema"
)

// memoryStore is an in-memory Store used by unit tests. It enforces the same
// natural-key uniqueness the Postgres schema does, including the tx_hash
// arbiter, so duplicate-guard and idempotency behavior can be tested without
// a database.
type memoryStore struct {
	mu sync.Mutex

	nextID       int64
	instances    map[int64]*schema.TreasuryInstance
	projects     map[int64]*schema.Project
	milestones   map[int64]*schema.Milestone
	vendors      map[int64]*schema.VendorContract
	transactions map[int64]*schema.TreasuryTransaction
	events       map[int64]*schema.TreasuryEvent
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() Store {
	return &memoryStore{
		instances:    map[int64]*schema.TreasuryInstance{},
		projects:     map[int64]*schema.Project{},
		milestones:   map[int64]*schema.Milestone{},
		vendors:      map[int64]*schema.VendorContract{},
		transactions: map[int64]*schema.TreasuryTransaction{},
		events:       map[int64]*schema.TreasuryEvent{},
	}
}

func (s *memoryStore) nextSeq() int64 {
	s.nextID++
	return s.nextID
}

// WithTransaction runs fn against the same store. The memory store applies
// mutations immediately; tests that need rollback semantics exercise the
// Postgres implementation instead.
func (s *memoryStore) WithTransaction(ctx context.Context, fn func(tx Store) error) error {
	return fn(s)
}

func (s *memoryStore) GetTransactionByHash(ctx context.Context, txHash string) (*schema.TreasuryTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.transactions {
		if tx.TxHash == txHash {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) CreateTransaction(ctx context.Context, tx *schema.TreasuryTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.transactions {
		if existing.TxHash == tx.TxHash {
			return ErrDuplicateTransaction
		}
	}
	tx.ID = s.nextSeq()
	cp := *tx
	s.transactions[tx.ID] = &cp
	return nil
}

func (s *memoryStore) SetTransactionProject(ctx context.Context, txID int64, projectID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx, ok := s.transactions[txID]; ok {
		pid := projectID
		tx.ProjectID = &pid
	}
	return nil
}

func (s *memoryStore) GetInstanceByScriptHash(ctx context.Context, scriptHash string) (*schema.TreasuryInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.instances {
		if inst.ScriptHash == scriptHash {
			cp := *inst
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) SaveInstance(ctx context.Context, instance *schema.TreasuryInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if instance.ID == 0 {
		instance.ID = s.nextSeq()
	}
	cp := *instance
	s.instances[instance.ID] = &cp
	return nil
}

func (s *memoryStore) GetProjectByIdentifier(ctx context.Context, identifier string) (*schema.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.Identifier == identifier {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) GetProjectByID(ctx context.Context, projectID int64) (*schema.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.projects[projectID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (s *memoryStore) SaveProject(ctx context.Context, project *schema.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if project.ID == 0 {
		project.ID = s.nextSeq()
	}
	cp := *project
	s.projects[project.ID] = &cp
	return nil
}

func (s *memoryStore) GetMilestone(ctx context.Context, projectID int64, identifier string) (*schema.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.milestones {
		if m.ProjectID == projectID && m.Identifier == identifier {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) ListMilestonesByProject(ctx context.Context, projectID int64) ([]schema.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []schema.Milestone
	for _, m := range s.milestones {
		if m.ProjectID == projectID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}

func (s *memoryStore) SaveMilestone(ctx context.Context, milestone *schema.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if milestone.ID == 0 {
		milestone.ID = s.nextSeq()
	}
	cp := *milestone
	s.milestones[milestone.ID] = &cp
	return nil
}

func (s *memoryStore) ListMatureMilestones(ctx context.Context, currentSlot int64) ([]schema.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []schema.Milestone
	for _, m := range s.milestones {
		if m.Status == schema.MilestoneStatusPending && m.MaturitySlot != nil && *m.MaturitySlot <= currentSlot {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) VendorContractExists(ctx context.Context, paymentAddress string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.vendors {
		if v.PaymentAddress == paymentAddress {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) CreateVendorContract(ctx context.Context, contract *schema.VendorContract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.vendors {
		if v.PaymentAddress == contract.PaymentAddress {
			return nil
		}
	}
	contract.ID = s.nextSeq()
	cp := *contract
	s.vendors[contract.ID] = &cp
	return nil
}

func (s *memoryStore) ListVendorContracts(ctx context.Context) ([]schema.VendorContract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []schema.VendorContract
	for _, v := range s.vendors {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) CreateEvent(ctx context.Context, event *schema.TreasuryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.ID = s.nextSeq()
	cp := *event
	s.events[event.ID] = &cp
	return nil
}

func (s *memoryStore) ListEventsByTransaction(ctx context.Context, txID int64) ([]schema.TreasuryEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []schema.TreasuryEvent
	for _, e := range s.events {
		if e.TxID == txID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
