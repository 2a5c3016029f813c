package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codyseavey/tcg-market-report/internal/models"
)

var (
	ErrSelectionTimeout  = errors.New("no selection made before the deadline")
	ErrSelectionDeclined = errors.New("selection declined")
	ErrUnknownCandidate  = errors.New("url is not one of the candidates")
	ErrTicketClosed      = errors.New("selection is already closed")
)

// ChoicePresenter shows ambiguous candidates to a human. The reply comes back
// through the ticket's Choose or Decline.
type ChoicePresenter interface {
	PresentCandidates(ctx context.Context, ticket *AmbiguityTicket) error
}

// AmbiguityTicket is a one-shot request for a human choice between products.
// It resolves exactly once: to a chosen URL, a decline, or expiry.
type AmbiguityTicket struct {
	ID          string
	RunID       string
	Marketplace models.Marketplace
	Candidates  []models.SearchCandidate
	CreatedAt   time.Time
	timeout     time.Duration

	reply chan string // buffered, "" means declined
	once  sync.Once

	mu      sync.Mutex
	options []models.CandidateOption
}

// NewAmbiguityTicket creates a ticket over candidates, dropping repeated URLs
func NewAmbiguityTicket(runID string, market models.Marketplace, candidates []models.SearchCandidate, timeout time.Duration) *AmbiguityTicket {
	seen := make(map[string]bool, len(candidates))
	unique := make([]models.SearchCandidate, 0, len(candidates))
	options := make([]models.CandidateOption, 0, len(candidates))
	for _, c := range candidates {
		if seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		unique = append(unique, c)
		options = append(options, models.CandidateOption{Index: len(unique), URL: c.URL, Slug: c.Slug})
	}

	return &AmbiguityTicket{
		ID:          uuid.New().String(),
		RunID:       runID,
		Marketplace: market,
		Candidates:  unique,
		CreatedAt:   time.Now(),
		timeout:     timeout,
		reply:       make(chan string, 1),
		options:     options,
	}
}

// Deadline is when an unanswered ticket expires
func (t *AmbiguityTicket) Deadline() time.Time {
	return t.CreatedAt.Add(t.timeout)
}

// Options returns the candidates as presented, with thumbnails once known
func (t *AmbiguityTicket) Options() []models.CandidateOption {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.CandidateOption, len(t.options))
	copy(out, t.options)
	return out
}

// SetOptions replaces the presented options, typically after thumbnails load
func (t *AmbiguityTicket) SetOptions(options []models.CandidateOption) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.options = options
}

// Choose selects one of the candidate URLs
func (t *AmbiguityTicket) Choose(productURL string) error {
	found := false
	for _, c := range t.Candidates {
		if c.URL == productURL {
			found = true
			break
		}
	}
	if !found {
		return ErrUnknownCandidate
	}
	return t.send(productURL)
}

// Decline rejects every candidate
func (t *AmbiguityTicket) Decline() error {
	return t.send("")
}

func (t *AmbiguityTicket) send(v string) error {
	sent := false
	t.once.Do(func() {
		t.reply <- v
		sent = true
	})
	if !sent {
		return ErrTicketClosed
	}
	return nil
}

// close marks the ticket expired. It reports false if a reply got there first.
func (t *AmbiguityTicket) close() bool {
	closed := false
	t.once.Do(func() { closed = true })
	return closed
}

func (t *AmbiguityTicket) take() (string, error) {
	v := <-t.reply
	if v == "" {
		return "", ErrSelectionDeclined
	}
	return v, nil
}

// Wait blocks until a reply, the deadline, or ctx is done
func (t *AmbiguityTicket) Wait(ctx context.Context) (string, error) {
	timer := time.NewTimer(time.Until(t.Deadline()))
	defer timer.Stop()

	select {
	case v := <-t.reply:
		if v == "" {
			return "", ErrSelectionDeclined
		}
		return v, nil
	case <-timer.C:
		if t.close() {
			return "", ErrSelectionTimeout
		}
		// a reply raced the deadline
		return t.take()
	case <-ctx.Done():
		if t.close() {
			return "", ctx.Err()
		}
		return t.take()
	}
}
