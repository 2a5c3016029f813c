package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codyseavey/tcg-market-report/internal/metrics"
	"github.com/codyseavey/tcg-market-report/internal/models"
)

// RunState is the position of a run in the report state machine
type RunState string

const (
	StateIdentified     RunState = "identified"
	StateResolving      RunState = "resolving"
	StateAwaitingChoice RunState = "awaiting_choice"
	StateAggregating    RunState = "aggregating"
	StateDone           RunState = "done"
	StateCancelled      RunState = "cancelled"
	StateFailed         RunState = "failed"
)

// Terminal reports whether no further transitions can happen
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateCancelled || s == StateFailed
}

const DefaultChoiceTimeout = 3 * time.Minute

var ErrAnalysisFailed = errors.New("card identity analysis failed")

// IdentityAnalyzer turns a card photo into an identity
type IdentityAnalyzer interface {
	Analyze(ctx context.Context, image []byte, lang string) (models.CardIdentity, error)
}

// Artifact is a file produced by a Visualizer
type Artifact struct {
	Name    string
	Content []byte
}

// Visualizer renders report images. scratchDir is removed when the run ends.
type Visualizer interface {
	Render(ctx context.Context, report *models.Report, data *models.ReportData, scratchDir string) ([]Artifact, error)
}

// RunObserver is told about every state a run enters. ticket is set only
// for StateAwaitingChoice.
type RunObserver func(state RunState, ticket *AmbiguityTicket)

// RunOutcome is the terminal result of a run. Report is set only when State is StateDone.
type RunOutcome struct {
	RunID        string             `json:"run_id"`
	State        RunState           `json:"state"`
	Report       *models.Report     `json:"report,omitempty"`
	Data         *models.ReportData `json:"-"`
	Text         string             `json:"text,omitempty"`
	Artifacts    []string           `json:"artifacts,omitempty"`
	Dir          string             `json:"dir,omitempty"`
	CancelReason string             `json:"cancel_reason,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// OrchestratorDeps wires an Orchestrator. Presenter, Thumbnails, Analyzer,
// Visualizer and Store are optional.
type OrchestratorDeps struct {
	Resolvers  []CatalogResolver
	Aggregator *ReportAggregator
	Presenter  ChoicePresenter
	Thumbnails *ThumbnailProbe
	Analyzer   IdentityAnalyzer
	Visualizer Visualizer
	Store      *ReportStore

	ChoiceTimeout time.Duration
	WorkspaceBase string
}

// Orchestrator drives a run from identity to report
type Orchestrator struct {
	deps OrchestratorDeps
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.ChoiceTimeout <= 0 {
		deps.ChoiceTimeout = DefaultChoiceTimeout
	}
	if deps.Aggregator == nil {
		deps.Aggregator = NewReportAggregator(nil, nil)
	}
	return &Orchestrator{deps: deps}
}

// RunImage analyzes a card photo and runs the report for the resulting identity
func (o *Orchestrator) RunImage(ctx context.Context, runID string, image []byte, lang string, observe RunObserver) (*RunOutcome, error) {
	if o.deps.Analyzer == nil {
		return o.fail(runID, observe, fmt.Errorf("%w: no analyzer configured", ErrAnalysisFailed))
	}
	card, err := o.deps.Analyzer.Analyze(ctx, image, lang)
	if err != nil {
		return o.fail(runID, observe, fmt.Errorf("%w: %v", ErrAnalysisFailed, err))
	}
	return o.Run(ctx, runID, card, lang, observe)
}

func (o *Orchestrator) fail(runID string, observe RunObserver, err error) (*RunOutcome, error) {
	log.Printf("Orchestrator: run %s failed: %v", runID, err)
	metrics.RunsTotal.WithLabelValues(string(StateFailed)).Inc()
	notify(observe, StateFailed, nil)
	return &RunOutcome{RunID: runID, State: StateFailed, Error: err.Error()}, err
}

func notify(observe RunObserver, state RunState, ticket *AmbiguityTicket) {
	if observe != nil {
		observe(state, ticket)
	}
}

// Run resolves both marketplaces for an identity, waits for a human choice
// when needed, and aggregates. A timed out or declined choice yields a
// cancelled outcome, not an error.
func (o *Orchestrator) Run(ctx context.Context, runID string, card models.CardIdentity, lang string, observe RunObserver) (*RunOutcome, error) {
	start := time.Now()
	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()
	defer func() { metrics.RunDuration.Observe(time.Since(start).Seconds()) }()

	card = card.Normalized()
	lang = NormalizeReportLang(lang)
	notify(observe, StateIdentified, nil)
	log.Printf("Orchestrator: run %s for %s #%s (%s, %s)", runID, card.Name, card.Number, card.Grade, card.Category)

	workspace, err := NewRunWorkspace(o.deps.WorkspaceBase)
	if err != nil {
		return o.fail(runID, observe, err)
	}
	defer workspace.Remove()

	runCtx, cancel := context.WithCancel(ctx)
	var probes errgroup.Group
	defer func() { _ = probes.Wait() }()
	defer cancel()

	notify(observe, StateResolving, nil)
	results := o.resolveAll(runCtx, card)

	for i, res := range results {
		if res.Status != StatusAmbiguous {
			continue
		}
		chosen, reason := o.awaitChoice(runCtx, runID, res, &probes, observe)
		if reason != "" {
			log.Printf("Orchestrator: run %s cancelled: %s", runID, reason)
			metrics.RunsTotal.WithLabelValues(string(StateCancelled)).Inc()
			notify(observe, StateCancelled, nil)
			return &RunOutcome{RunID: runID, State: StateCancelled, CancelReason: reason}, nil
		}
		notify(observe, StateResolving, nil)
		results[i] = o.resolver(res.Marketplace).FetchProduct(runCtx, chosen)
	}

	notify(observe, StateAggregating, nil)
	report := o.deps.Aggregator.Build(runCtx, card, results)
	outcome := &RunOutcome{
		RunID:  runID,
		State:  StateDone,
		Report: report,
		Data:   NewReportData(report, results, lang),
		Text:   RenderReportText(report, lang),
	}

	var artifacts []Artifact
	if o.deps.Visualizer != nil {
		artifacts, err = o.deps.Visualizer.Render(runCtx, report, outcome.Data, workspace.Dir)
		if err != nil {
			log.Printf("Orchestrator: run %s visualization failed: %v", runID, err)
		}
		for _, a := range artifacts {
			outcome.Artifacts = append(outcome.Artifacts, a.Name)
		}
	}

	if o.deps.Store != nil {
		dir, err := o.deps.Store.Save(runID, outcome.Data, outcome.Text)
		if err != nil {
			log.Printf("Orchestrator: run %s failed to store report: %v", runID, err)
		}
		if dir != "" && len(artifacts) > 0 {
			if err := o.deps.Store.SaveArtifacts(dir, artifacts); err != nil {
				log.Printf("Orchestrator: run %s failed to store artifacts: %v", runID, err)
			}
		}
		outcome.Dir = dir
	}

	metrics.RunsTotal.WithLabelValues(string(StateDone)).Inc()
	notify(observe, StateDone, nil)
	log.Printf("Orchestrator: run %s done in %v (%d combined sales)", runID, time.Since(start).Round(time.Millisecond), report.Combined.Count)
	return outcome, nil
}

// resolveAll runs every resolver concurrently. A panic in one resolver is
// reported as not found for that marketplace only.
func (o *Orchestrator) resolveAll(ctx context.Context, card models.CardIdentity) []Resolution {
	results := make([]Resolution, len(o.deps.Resolvers))
	var g errgroup.Group
	for i, r := range o.deps.Resolvers {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					log.Printf("Orchestrator: %s resolver panicked: %v", r.Marketplace(), p)
					results[i] = notFound(r.Marketplace())
				}
			}()
			results[i] = r.Resolve(ctx, card)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) resolver(m models.Marketplace) CatalogResolver {
	for _, r := range o.deps.Resolvers {
		if r.Marketplace() == m {
			return r
		}
	}
	return nil
}

// awaitChoice suspends the run on an ambiguity ticket. It returns the chosen
// URL, or a non-empty reason when the run should be cancelled.
func (o *Orchestrator) awaitChoice(ctx context.Context, runID string, res Resolution, probes *errgroup.Group, observe RunObserver) (string, string) {
	ticket := NewAmbiguityTicket(runID, res.Marketplace, res.Candidates, o.deps.ChoiceTimeout)

	if o.deps.Presenter == nil {
		log.Printf("Orchestrator: run %s has no presenter, taking the first of %d candidates", runID, len(ticket.Candidates))
		metrics.DisambiguationsTotal.WithLabelValues("auto").Inc()
		return ticket.Candidates[0].URL, ""
	}

	if o.deps.Thumbnails != nil {
		probes.Go(func() error {
			ticket.SetOptions(o.deps.Thumbnails.Options(ctx, ticket.Candidates))
			return nil
		})
	}

	notify(observe, StateAwaitingChoice, ticket)
	if err := o.deps.Presenter.PresentCandidates(ctx, ticket); err != nil {
		metrics.DisambiguationsTotal.WithLabelValues("undeliverable").Inc()
		return "", fmt.Sprintf("candidates could not be presented: %v", err)
	}

	chosen, err := ticket.Wait(ctx)
	switch {
	case err == nil:
		metrics.DisambiguationsTotal.WithLabelValues("chosen").Inc()
		log.Printf("Orchestrator: run %s chose %s", runID, chosen)
		return chosen, ""
	case errors.Is(err, ErrSelectionTimeout):
		metrics.DisambiguationsTotal.WithLabelValues("timeout").Inc()
	case errors.Is(err, ErrSelectionDeclined):
		metrics.DisambiguationsTotal.WithLabelValues("declined").Inc()
	default:
		metrics.DisambiguationsTotal.WithLabelValues("aborted").Inc()
	}
	return "", err.Error()
}
