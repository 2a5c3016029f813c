package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codyseavey/tcg-market-report/internal/models"
)

var (
	ErrRunNotFound     = errors.New("run not found")
	ErrNoPendingChoice = errors.New("run is not awaiting a choice")
	ErrNotBound        = errors.New("run registry has no orchestrator")
)

const defaultRunHistory = 256

// PendingChoice is an open ambiguity ticket as shown to API clients
type PendingChoice struct {
	TicketID    string                   `json:"ticket_id"`
	Marketplace models.Marketplace       `json:"marketplace"`
	Options     []models.CandidateOption `json:"options"`
	Deadline    time.Time                `json:"deadline"`
}

// RunStatus is a point-in-time view of a run
type RunStatus struct {
	RunID      string               `json:"run_id"`
	State      RunState             `json:"state"`
	Identity   *models.CardIdentity `json:"identity,omitempty"`
	Lang       string               `json:"lang"`
	StartedAt  time.Time            `json:"started_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
	Choice     *PendingChoice       `json:"choice,omitempty"`
	Outcome    *RunOutcome          `json:"outcome,omitempty"`
}

type runEntry struct {
	mu     sync.Mutex
	status RunStatus
	ticket *AmbiguityTicket
}

func (e *runEntry) snapshot() RunStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.status
	if e.ticket != nil && s.State == StateAwaitingChoice {
		s.Choice = &PendingChoice{
			TicketID:    e.ticket.ID,
			Marketplace: e.ticket.Marketplace,
			Options:     e.ticket.Options(),
			Deadline:    e.ticket.Deadline(),
		}
	}
	return s
}

// RunRegistry runs reports in the background and tracks them for the HTTP
// API. It is also the ChoicePresenter: open tickets are held until a client
// answers them through Select.
type RunRegistry struct {
	orchestrator *Orchestrator

	mu      sync.RWMutex
	active  map[string]*runEntry
	history *lru.Cache[string, *runEntry]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunRegistry(historySize int) *RunRegistry {
	if historySize <= 0 {
		historySize = defaultRunHistory
	}
	history, err := lru.New[string, *runEntry](historySize)
	if err != nil {
		log.Printf("Run registry: failed to create history cache: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RunRegistry{
		active:  make(map[string]*runEntry),
		history: history,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Bind sets the orchestrator runs are started on. The orchestrator is
// normally built with this registry as its presenter.
func (r *RunRegistry) Bind(o *Orchestrator) {
	r.orchestrator = o
}

// Start begins a run for a known identity and returns its ID
func (r *RunRegistry) Start(card models.CardIdentity, lang string) (string, error) {
	identity := card.Normalized()
	return r.start(&identity, lang, func(ctx context.Context, id string, observe RunObserver) (*RunOutcome, error) {
		return r.orchestrator.Run(ctx, id, card, lang, observe)
	})
}

// StartImage begins a run from a card photo
func (r *RunRegistry) StartImage(image []byte, lang string) (string, error) {
	return r.start(nil, lang, func(ctx context.Context, id string, observe RunObserver) (*RunOutcome, error) {
		return r.orchestrator.RunImage(ctx, id, image, lang, observe)
	})
}

func (r *RunRegistry) start(identity *models.CardIdentity, lang string, run func(context.Context, string, RunObserver) (*RunOutcome, error)) (string, error) {
	if r.orchestrator == nil {
		return "", ErrNotBound
	}
	if r.ctx.Err() != nil {
		return "", fmt.Errorf("run registry is shut down: %w", r.ctx.Err())
	}

	id := uuid.New().String()
	now := time.Now()
	entry := &runEntry{status: RunStatus{
		RunID:     id,
		State:     StateIdentified,
		Identity:  identity,
		Lang:      NormalizeReportLang(lang),
		StartedAt: now,
		UpdatedAt: now,
	}}

	r.mu.Lock()
	r.active[id] = entry
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		var outcome *RunOutcome
		defer func() {
			if p := recover(); p != nil {
				log.Printf("Run registry: run %s panicked: %v", id, p)
				outcome = &RunOutcome{RunID: id, State: StateFailed, Error: "internal error"}
			}
			r.finish(entry, outcome)
		}()
		outcome, _ = run(r.ctx, id, r.observer(entry))
	}()
	return id, nil
}

func (r *RunRegistry) observer(entry *runEntry) RunObserver {
	return func(state RunState, ticket *AmbiguityTicket) {
		entry.mu.Lock()
		defer entry.mu.Unlock()
		entry.status.State = state
		entry.status.UpdatedAt = time.Now()
		if state == StateAwaitingChoice {
			entry.ticket = ticket
		} else {
			entry.ticket = nil
		}
	}
}

func (r *RunRegistry) finish(entry *runEntry, outcome *RunOutcome) {
	entry.mu.Lock()
	now := time.Now()
	if outcome != nil {
		entry.status.State = outcome.State
		entry.status.Outcome = outcome
		if outcome.Report != nil {
			identity := outcome.Report.Identity
			entry.status.Identity = &identity
		}
	}
	entry.status.UpdatedAt = now
	entry.status.FinishedAt = &now
	entry.ticket = nil
	id := entry.status.RunID
	entry.mu.Unlock()

	r.mu.Lock()
	delete(r.active, id)
	if r.history != nil {
		r.history.Add(id, entry)
	}
	r.mu.Unlock()
}

func (r *RunRegistry) lookup(id string) (*runEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.active[id]; ok {
		return e, true
	}
	if r.history != nil {
		return r.history.Get(id)
	}
	return nil, false
}

// Get returns the status of an active or recently finished run
func (r *RunRegistry) Get(id string) (RunStatus, error) {
	e, ok := r.lookup(id)
	if !ok {
		return RunStatus{}, ErrRunNotFound
	}
	return e.snapshot(), nil
}

// Candidates returns the open choice of a run
func (r *RunRegistry) Candidates(id string) (*PendingChoice, error) {
	status, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if status.Choice == nil {
		return nil, ErrNoPendingChoice
	}
	return status.Choice, nil
}

// Select answers a run's open choice. An empty URL declines every candidate.
func (r *RunRegistry) Select(id, productURL string) error {
	e, ok := r.lookup(id)
	if !ok {
		return ErrRunNotFound
	}
	e.mu.Lock()
	ticket := e.ticket
	e.mu.Unlock()
	if ticket == nil {
		return ErrNoPendingChoice
	}
	if productURL == "" {
		return ticket.Decline()
	}
	return ticket.Choose(productURL)
}

// PresentCandidates parks the ticket on its run until a client answers
func (r *RunRegistry) PresentCandidates(_ context.Context, ticket *AmbiguityTicket) error {
	r.mu.RLock()
	e, ok := r.active[ticket.RunID]
	r.mu.RUnlock()
	if !ok {
		return ErrRunNotFound
	}
	e.mu.Lock()
	e.ticket = ticket
	e.mu.Unlock()
	log.Printf("Run registry: run %s awaiting choice between %d %s products", ticket.RunID, len(ticket.Candidates), ticket.Marketplace.DisplayName())
	return nil
}

// ActiveCount returns how many runs are in flight
func (r *RunRegistry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// Shutdown cancels every run and waits for them to finish or ctx to expire
func (r *RunRegistry) Shutdown(ctx context.Context) error {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
