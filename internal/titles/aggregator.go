package titles

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/assusa/viabot/internal/audit"
)

// enrichLimit bounds concurrent per-title enrichment calls so a user with
// many open titles cannot fan out unbounded requests against one backend.
const enrichLimit = 4

// ProviderOutcome records how one provider behaved during an aggregation
// call, letting the caller distinguish "no titles anywhere" from "every
// backend was down".
type ProviderOutcome struct {
	Bank   Bank
	Titles int
	Err    error
}

// FindResult is the merged outcome of one aggregation call.
type FindResult struct {
	Titles   []Title
	Outcomes []ProviderOutcome
}

// AllFailed reports whether every provider returned an error.
func (r FindResult) AllFailed() bool {
	if len(r.Outcomes) == 0 {
		return false
	}
	for _, o := range r.Outcomes {
		if o.Err == nil {
			return false
		}
	}
	return true
}

// Aggregator queries all configured providers in parallel and merges their
// open titles. A single provider failure degrades to an empty list for that
// provider; it is logged and recorded in the result, never escalated.
type Aggregator struct {
	providers []Provider
	audit     audit.Appender
	logger    *slog.Logger
}

// NewAggregator creates an Aggregator over the given providers. Merge order
// follows the provider order given here.
func NewAggregator(providers []Provider, auditLog audit.Appender) *Aggregator {
	return &Aggregator{
		providers: providers,
		audit:     auditLog,
		logger:    slog.Default(),
	}
}

// FindOpenTitles fans out to every provider concurrently, enriches coarse
// records where the provider supports it, filters to open titles, merges in
// provider order, and assigns each title a fresh per-call ID. Cross-bank
// pairs with matching rounded amount and due month are flagged to the audit
// log but both titles stay in the result.
func (a *Aggregator) FindOpenTitles(ctx context.Context, identifier, identifierHash string) FindResult {
	results := make([][]Title, len(a.providers))
	outcomes := make([]ProviderOutcome, len(a.providers))

	var wg sync.WaitGroup
	for i, p := range a.providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			titles, err := a.queryProvider(ctx, p, identifier)
			outcomes[i] = ProviderOutcome{Bank: p.Bank(), Titles: len(titles), Err: err}
			if err != nil {
				a.logger.Warn("provider query failed, degrading to empty list",
					"bank", p.Bank(),
					"identifier_hash", shortHash(identifierHash),
					"error", err,
				)
				return
			}
			results[i] = titles
		}(i, p)
	}
	wg.Wait()

	var merged []Title
	for i, list := range results {
		bank := a.providers[i].Bank()
		for _, t := range list {
			t.ID = uuid.NewString()
			t.Bank = bank
			merged = append(merged, t)
		}
	}

	a.flagCrossBankDuplicates(ctx, identifierHash, merged)

	a.logger.Debug("aggregation complete",
		"identifier_hash", shortHash(identifierHash),
		"titles", len(merged),
		"providers", len(a.providers),
	)

	return FindResult{Titles: merged, Outcomes: outcomes}
}

// queryProvider lists one provider's titles, enriches them when supported,
// and keeps only open ones.
func (a *Aggregator) queryProvider(ctx context.Context, p Provider, identifier string) ([]Title, error) {
	listed, err := p.ListOpenTitles(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("listing titles: %w", err)
	}

	var open []Title
	for _, t := range listed {
		if t.Open() {
			open = append(open, t)
		}
	}
	if len(open) == 0 {
		return nil, nil
	}

	enricher, ok := p.(TitleEnricher)
	if !ok {
		return open, nil
	}

	// Enrichment is best-effort: a failed detail call falls back to the
	// coarse list record instead of dropping the title.
	enriched := make([]Title, len(open))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(enrichLimit)
	for i, t := range open {
		i, t := i, t
		g.Go(func() error {
			full, err := enricher.EnrichTitle(gCtx, t)
			if err != nil {
				a.logger.Warn("title enrichment failed, using coarse record",
					"bank", p.Bank(),
					"nosso_numero", t.NossoNumero,
					"error", err,
				)
				enriched[i] = t
				return nil
			}
			enriched[i] = full
			return nil
		})
	}
	g.Wait()

	// Re-filter: an enriched record may have flipped status.
	var out []Title
	for _, t := range enriched {
		if t.Open() {
			out = append(out, t)
		}
	}
	return out, nil
}

// flagCrossBankDuplicates emits one DUPLICATE_TITLE audit event per pair of
// titles from different banks whose amounts are equal after rounding to two
// decimal places and whose due dates fall in the same calendar month.
// Same-bank pairs are never compared.
func (a *Aggregator) flagCrossBankDuplicates(ctx context.Context, identifierHash string, merged []Title) {
	for i := 0; i < len(merged); i++ {
		for j := i + 1; j < len(merged); j++ {
			ti, tj := merged[i], merged[j]
			if ti.Bank == tj.Bank {
				continue
			}
			if round2(ti.Amount) != round2(tj.Amount) {
				continue
			}
			if ti.DueDate.Year() != tj.DueDate.Year() || ti.DueDate.Month() != tj.DueDate.Month() {
				continue
			}

			extra, err := json.Marshal(map[string]any{
				"banks":  []string{string(ti.Bank), string(tj.Bank)},
				"month":  ti.DueDate.Format("2006-01"),
				"amount": round2(ti.Amount),
			})
			if err != nil {
				a.logger.Error("marshaling duplicate-title details", "error", err)
				continue
			}
			payload := audit.Payload{
				audit.KeyIdentifierHash: identifierHash,
				audit.KeyStatus:         audit.StatusFlagged,
				audit.KeyExtra:          string(extra),
			}
			if err := a.audit.Append(ctx, audit.EventDuplicateTitle, payload); err != nil {
				// Fail-open on audit: the titles are still surfaced.
				a.logger.Error("appending duplicate-title event",
					"banks", []string{string(ti.Bank), string(tj.Bank)},
					"error", err,
				)
			}
		}
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8] + "..."
	}
	return hash
}

// Timeout wraps a provider so every call carries a bounded deadline. A call
// that exceeds the deadline surfaces as a provider failure and is degraded by
// the aggregator like any other error.
type timeoutProvider struct {
	Provider
	d time.Duration
}

// WithTimeout decorates p so all its calls are bounded by d.
func WithTimeout(p Provider, d time.Duration) Provider {
	return &timeoutProvider{Provider: p, d: d}
}

func (t *timeoutProvider) ListOpenTitles(ctx context.Context, identifier string) ([]Title, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.Provider.ListOpenTitles(ctx, identifier)
}

func (t *timeoutProvider) GetDocument(ctx context.Context, title Title) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.Provider.GetDocument(ctx, title)
}

func (t *timeoutProvider) GetBillData(ctx context.Context, title Title) (*BillData, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.Provider.GetBillData(ctx, title)
}

func (t *timeoutProvider) EnrichTitle(ctx context.Context, title Title) (Title, error) {
	if e, ok := t.Provider.(TitleEnricher); ok {
		ctx, cancel := context.WithTimeout(ctx, t.d)
		defer cancel()
		return e.EnrichTitle(ctx, title)
	}
	return title, nil
}
