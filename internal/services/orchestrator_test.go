package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/codyseavey/tcg-market-report/internal/models"
)

type stubResolver struct {
	market  models.Marketplace
	result  Resolution
	product Resolution
	panics  bool

	mu      sync.Mutex
	fetched []string
}

func (r *stubResolver) Marketplace() models.Marketplace { return r.market }

func (r *stubResolver) Resolve(_ context.Context, _ models.CardIdentity) Resolution {
	if r.panics {
		panic("boom")
	}
	return r.result
}

func (r *stubResolver) FetchProduct(_ context.Context, productURL string) Resolution {
	r.mu.Lock()
	r.fetched = append(r.fetched, productURL)
	r.mu.Unlock()
	res := r.product
	res.URL = productURL
	return res
}

// scriptedPresenter answers every ticket with reply: a URL, "" to decline, or nothing when silent
type scriptedPresenter struct {
	reply   string
	silent  bool
	err     error
	tickets []*AmbiguityTicket
}

func (p *scriptedPresenter) PresentCandidates(_ context.Context, ticket *AmbiguityTicket) error {
	p.tickets = append(p.tickets, ticket)
	if p.err != nil {
		return p.err
	}
	if p.silent {
		return nil
	}
	if p.reply == "" {
		return ticket.Decline()
	}
	return ticket.Choose(p.reply)
}

type stateRecorder struct {
	states []RunState
}

func (s *stateRecorder) observe(state RunState, _ *AmbiguityTicket) {
	s.states = append(s.states, state)
}

func fiveRecords(m models.Marketplace, price float64) []models.PriceRecord {
	var out []models.PriceRecord
	for i := 0; i < 5; i++ {
		if m == models.MarketplaceSNKRDUNK {
			out = append(out, snkrRecord("2025/05/01", price, "S"))
		} else {
			out = append(out, pcRecord("2025-05-01", price, models.GradePSA10))
		}
	}
	return out
}

func resolvedStub(m models.Marketplace, price float64) *stubResolver {
	return &stubResolver{
		market: m,
		result: Resolution{Marketplace: m, Status: StatusResolved, URL: "https://example.com/" + string(m), Records: fiveRecords(m, price)},
	}
}

func ambiguousPC() *stubResolver {
	return &stubResolver{
		market: models.MarketplacePriceCharting,
		result: Resolution{
			Marketplace: models.MarketplacePriceCharting,
			Status:      StatusAmbiguous,
			Candidates: []models.SearchCandidate{
				{URL: "https://www.pricecharting.com/game/one-piece-op05/luffy-op05-119"},
				{URL: "https://www.pricecharting.com/game/one-piece-op05/luffy-manga-op05-119"},
			},
		},
		product: Resolution{
			Marketplace: models.MarketplacePriceCharting,
			Status:      StatusResolved,
			Records:     fiveRecords(models.MarketplacePriceCharting, 200),
		},
	}
}

func newTestOrchestrator(t *testing.T, deps OrchestratorDeps) *Orchestrator {
	t.Helper()
	deps.Aggregator = NewReportAggregator(nil, func() time.Time { return testEpoch })
	if deps.WorkspaceBase == "" {
		deps.WorkspaceBase = t.TempDir()
	}
	return NewOrchestrator(deps)
}

func assertWorkspaceRemoved(t *testing.T, base string) {
	t.Helper()
	entries, err := os.ReadDir(base)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace not removed: %d entries left in %s", len(entries), base)
	}
}

var luffy = models.CardIdentity{Name: "Monkey.D.Luffy", Number: "OP05-119", SetCode: "OP05", Grade: "PSA 10", Category: models.CategoryOnePiece}

func TestOrchestratorRunCombinesMarketplaces(t *testing.T) {
	base := t.TempDir()
	o := newTestOrchestrator(t, OrchestratorDeps{
		Resolvers: []CatalogResolver{
			resolvedStub(models.MarketplacePriceCharting, 100),
			resolvedStub(models.MarketplaceSNKRDUNK, 30000),
		},
		WorkspaceBase: base,
	})
	rec := &stateRecorder{}

	outcome, err := o.Run(context.Background(), "run-1", models.CardIdentity{Name: "Pikachu", Number: "025", Grade: "PSA 10"}, "en", rec.observe)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome.State != StateDone {
		t.Fatalf("State = %s, want done", outcome.State)
	}
	if outcome.Report.Combined.Count != 10 {
		t.Errorf("Combined.Count = %d, want 10", outcome.Report.Combined.Count)
	}
	// 5 x $100 and 5 x ¥30000 at the fallback rate of 150
	if !approxEqual(outcome.Report.Combined.Mean, 150) {
		t.Errorf("Combined.Mean = %v, want 150", outcome.Report.Combined.Mean)
	}
	if outcome.Text == "" || len(outcome.Data.SNKRRecords) != 5 {
		t.Errorf("outcome = %+v", outcome)
	}

	want := []RunState{StateIdentified, StateResolving, StateAggregating, StateDone}
	if !reflect.DeepEqual(rec.states, want) {
		t.Errorf("states = %v, want %v", rec.states, want)
	}
	assertWorkspaceRemoved(t, base)
}

func TestOrchestratorChoiceTimeoutCancelsRun(t *testing.T) {
	base := t.TempDir()
	presenter := &scriptedPresenter{silent: true}
	o := newTestOrchestrator(t, OrchestratorDeps{
		Resolvers:     []CatalogResolver{ambiguousPC(), resolvedStub(models.MarketplaceSNKRDUNK, 30000)},
		Presenter:     presenter,
		ChoiceTimeout: 20 * time.Millisecond,
		WorkspaceBase: base,
	})
	rec := &stateRecorder{}

	outcome, err := o.Run(context.Background(), "run-2", luffy, "zh", rec.observe)
	if err != nil {
		t.Fatalf("Run() error = %v, want a cancelled outcome", err)
	}
	if outcome.State != StateCancelled || outcome.Report != nil {
		t.Errorf("outcome = %+v, want cancelled without report", outcome)
	}
	if len(presenter.tickets) != 1 || len(presenter.tickets[0].Candidates) != 2 {
		t.Fatalf("presenter saw %d tickets", len(presenter.tickets))
	}
	if err := presenter.tickets[0].Choose(presenter.tickets[0].Candidates[0].URL); !errors.Is(err, ErrTicketClosed) {
		t.Errorf("late Choose() error = %v, want ErrTicketClosed", err)
	}
	if last := rec.states[len(rec.states)-1]; last != StateCancelled {
		t.Errorf("last state = %s, want cancelled", last)
	}
	assertWorkspaceRemoved(t, base)
}

func TestOrchestratorChoiceResumesResolution(t *testing.T) {
	pc := ambiguousPC()
	chosen := pc.result.Candidates[1].URL
	o := newTestOrchestrator(t, OrchestratorDeps{
		Resolvers: []CatalogResolver{pc, resolvedStub(models.MarketplaceSNKRDUNK, 30000)},
		Presenter: &scriptedPresenter{reply: chosen},
	})
	rec := &stateRecorder{}

	outcome, err := o.Run(context.Background(), "run-3", luffy, "en", rec.observe)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome.State != StateDone {
		t.Fatalf("State = %s, want done", outcome.State)
	}
	if len(pc.fetched) != 1 || pc.fetched[0] != chosen {
		t.Errorf("fetched = %v, want [%s]", pc.fetched, chosen)
	}
	if outcome.Report.SourceURLs[models.MarketplacePriceCharting] != chosen {
		t.Errorf("PriceCharting URL = %s", outcome.Report.SourceURLs[models.MarketplacePriceCharting])
	}

	want := []RunState{StateIdentified, StateResolving, StateAwaitingChoice, StateResolving, StateAggregating, StateDone}
	if !reflect.DeepEqual(rec.states, want) {
		t.Errorf("states = %v, want %v", rec.states, want)
	}
}

func TestOrchestratorDeclineAndUndeliverable(t *testing.T) {
	tests := []struct {
		name      string
		presenter *scriptedPresenter
	}{
		{"declined", &scriptedPresenter{reply: ""}},
		{"presenter error", &scriptedPresenter{err: errors.New("chat closed")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := ambiguousPC()
			o := newTestOrchestrator(t, OrchestratorDeps{
				Resolvers: []CatalogResolver{pc, resolvedStub(models.MarketplaceSNKRDUNK, 30000)},
				Presenter: tt.presenter,
			})

			outcome, err := o.Run(context.Background(), "run-4", luffy, "en", nil)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if outcome.State != StateCancelled || outcome.CancelReason == "" {
				t.Errorf("outcome = %+v, want cancelled with a reason", outcome)
			}
			if len(pc.fetched) != 0 {
				t.Errorf("fetched = %v, want nothing", pc.fetched)
			}
		})
	}
}

func TestOrchestratorWithoutPresenterTakesFirstCandidate(t *testing.T) {
	pc := ambiguousPC()
	o := newTestOrchestrator(t, OrchestratorDeps{
		Resolvers: []CatalogResolver{pc, resolvedStub(models.MarketplaceSNKRDUNK, 30000)},
	})

	outcome, err := o.Run(context.Background(), "run-5", luffy, "en", nil)
	if err != nil || outcome.State != StateDone {
		t.Fatalf("Run() = %+v, %v", outcome, err)
	}
	if len(pc.fetched) != 1 || pc.fetched[0] != pc.result.Candidates[0].URL {
		t.Errorf("fetched = %v", pc.fetched)
	}
}

func TestOrchestratorOneMarketplaceFailing(t *testing.T) {
	o := newTestOrchestrator(t, OrchestratorDeps{
		Resolvers: []CatalogResolver{
			&stubResolver{market: models.MarketplacePriceCharting, panics: true},
			resolvedStub(models.MarketplaceSNKRDUNK, 30000),
		},
	})

	outcome, err := o.Run(context.Background(), "run-6", models.CardIdentity{Name: "Pikachu", Number: "025", Grade: "PSA 10"}, "en", nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	pc := outcome.Report.Market(models.MarketplacePriceCharting)
	snkr := outcome.Report.Market(models.MarketplaceSNKRDUNK)
	if !pc.NoData {
		t.Error("PriceCharting should be marked no data")
	}
	if snkr.NoData || snkr.Stats.Count != 5 {
		t.Errorf("SNKRDUNK section = %+v", snkr)
	}
}

type stubAnalyzer struct {
	card models.CardIdentity
	err  error
}

func (a stubAnalyzer) Analyze(_ context.Context, _ []byte, _ string) (models.CardIdentity, error) {
	return a.card, a.err
}

func TestOrchestratorRunImage(t *testing.T) {
	t.Run("analysis failure", func(t *testing.T) {
		o := newTestOrchestrator(t, OrchestratorDeps{Analyzer: stubAnalyzer{err: errors.New("blurry")}})
		rec := &stateRecorder{}

		outcome, err := o.RunImage(context.Background(), "run-7", []byte("jpeg"), "en", rec.observe)
		if !errors.Is(err, ErrAnalysisFailed) {
			t.Fatalf("error = %v, want ErrAnalysisFailed", err)
		}
		if outcome.State != StateFailed || outcome.Error == "" {
			t.Errorf("outcome = %+v", outcome)
		}
		if !reflect.DeepEqual(rec.states, []RunState{StateFailed}) {
			t.Errorf("states = %v", rec.states)
		}
	})

	t.Run("analysis success", func(t *testing.T) {
		o := newTestOrchestrator(t, OrchestratorDeps{
			Analyzer:  stubAnalyzer{card: models.CardIdentity{Name: "Pikachu", Number: "025", Grade: "PSA 10"}},
			Resolvers: []CatalogResolver{resolvedStub(models.MarketplacePriceCharting, 100)},
		})

		outcome, err := o.RunImage(context.Background(), "run-8", []byte("jpeg"), "en", nil)
		if err != nil || outcome.State != StateDone {
			t.Fatalf("RunImage() = %+v, %v", outcome, err)
		}
		if outcome.Report.Identity.Category != models.CategoryPokemon {
			t.Errorf("identity not normalized: %+v", outcome.Report.Identity)
		}
	})
}

type stubVisualizer struct {
	scratch string
}

func (v *stubVisualizer) Render(_ context.Context, _ *models.Report, _ *models.ReportData, scratchDir string) ([]Artifact, error) {
	v.scratch = scratchDir
	return []Artifact{{Name: "profile.png", Content: []byte("png")}}, nil
}

func TestOrchestratorStoresReportAndArtifacts(t *testing.T) {
	outDir := t.TempDir()
	vis := &stubVisualizer{}
	o := newTestOrchestrator(t, OrchestratorDeps{
		Resolvers:  []CatalogResolver{resolvedStub(models.MarketplacePriceCharting, 100)},
		Visualizer: vis,
		Store:      NewReportStore(outDir, nil),
	})

	outcome, err := o.Run(context.Background(), "run-9", models.CardIdentity{Name: "Pikachu", Number: "025", Grade: "PSA 10"}, "en", nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome.Dir != filepath.Join(outDir, "Pikachu_025") {
		t.Errorf("Dir = %s", outcome.Dir)
	}
	for _, name := range []string{ReportDataFile, ReportTextFile, "profile.png"} {
		if _, err := os.Stat(filepath.Join(outcome.Dir, name)); err != nil {
			t.Errorf("%s not stored: %v", name, err)
		}
	}
	if vis.scratch == "" {
		t.Fatal("visualizer did not get a scratch directory")
	}
	if _, err := os.Stat(vis.scratch); !os.IsNotExist(err) {
		t.Errorf("scratch directory %s not removed", vis.scratch)
	}
}
