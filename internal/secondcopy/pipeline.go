// Package secondcopy turns a selected open title into a deliverable
// second-copy PDF: fetch from the issuing bank (native PDF when the bank has
// one, reconstructed from bill data otherwise), persist the artifact, and
// record the audit trail.
package secondcopy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/assusa/viabot/internal/audit"
	"github.com/assusa/viabot/internal/document"
	"github.com/assusa/viabot/internal/titles"
)

// ErrSourceUnavailable indicates the issuing bank returned neither a native
// PDF nor enough bill data to reconstruct one.
var ErrSourceUnavailable = errors.New("no document source available for title")

// Storage persists generated artifacts.
type Storage interface {
	Save(ctx context.Context, data []byte, filename string) (string, error)
	Delete(ctx context.Context, ref string) error
}

// Clock lets tests pin the timestamp embedded in filenames.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Result is a generated second copy ready for delivery.
type Result struct {
	Document   []byte
	Filename   string
	StorageRef string
}

// Pipeline generates and stores second-copy documents.
type Pipeline struct {
	providers map[titles.Bank]titles.Provider
	storage   Storage
	audit     audit.Appender
	logger    *slog.Logger
	clock     Clock
}

// New builds a pipeline over the given bank providers.
func New(providers []titles.Provider, storage Storage, auditLog audit.Appender, logger *slog.Logger) *Pipeline {
	byBank := make(map[titles.Bank]titles.Provider, len(providers))
	for _, p := range providers {
		byBank[p.Bank()] = p
	}
	return &Pipeline{
		providers: byBank,
		storage:   storage,
		audit:     auditLog,
		logger:    logger,
		clock:     realClock{},
	}
}

// WithClock replaces the pipeline clock. Test hook.
func (p *Pipeline) WithClock(c Clock) *Pipeline {
	p.clock = c
	return p
}

// Generate produces the second-copy PDF for a title, stores it, and appends
// the sent event to the audit trail. The audit append is best-effort: a
// failed append is logged but does not fail the delivery.
func (p *Pipeline) Generate(ctx context.Context, identityMasked, identifierHash, identifierMasked string, title titles.Title) (*Result, error) {
	provider, ok := p.providers[title.Bank]
	if !ok {
		return nil, fmt.Errorf("no provider registered for bank %s", title.Bank)
	}

	doc, err := p.buildDocument(ctx, provider, title)
	if err != nil {
		return nil, err
	}

	filename := p.buildFilename(identifierMasked, identifierHash)
	ref, err := p.storage.Save(ctx, doc, filename)
	if err != nil {
		return nil, fmt.Errorf("storing second copy: %w", err)
	}

	extra, _ := json.Marshal(map[string]string{
		"correlationId": audit.CorrelationFrom(ctx),
		"titleRef":      title.NossoNumero,
		"filename":      filename,
	})
	if err := p.audit.Append(ctx, audit.EventSecondCopyRequest, audit.Payload{
		audit.KeyMaskedIdentity:   identityMasked,
		audit.KeyIdentifierHash:   identifierHash,
		audit.KeyMaskedIdentifier: identifierMasked,
		audit.KeyStatus:           audit.StatusSent,
		audit.KeyStorageRef:       ref,
		audit.KeyExtra:            string(extra),
	}); err != nil {
		p.logger.Error("audit append failed for sent second copy", "error", err)
	}

	return &Result{Document: doc, Filename: filename, StorageRef: ref}, nil
}

// buildDocument prefers the bank's native PDF and falls back to rebuilding
// one from structured bill data.
func (p *Pipeline) buildDocument(ctx context.Context, provider titles.Provider, title titles.Title) ([]byte, error) {
	raw, err := provider.GetDocument(ctx, title)
	if err != nil {
		p.logger.Warn("native document fetch failed, trying bill data",
			"bank", title.Bank, "error", err)
	} else if raw != nil {
		doc, err := document.BuildFromBankPDF(raw)
		if err != nil {
			p.logger.Warn("native document invalid, trying bill data",
				"bank", title.Bank, "error", err)
		} else {
			return doc, nil
		}
	}

	data, err := provider.GetBillData(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("fetching bill data: %w", err)
	}
	if data == nil {
		return nil, ErrSourceUnavailable
	}
	doc, err := document.BuildFromData(*data)
	if err != nil {
		return nil, fmt.Errorf("building document from bill data: %w", err)
	}
	return doc, nil
}

// buildFilename derives a privacy-safe artifact name: the digits visible in
// the masked identifier, a hash prefix, and the generation timestamp. The
// raw identifier is never available here, so nothing more specific than the
// mask's visible digits can ever appear in a filename.
func (p *Pipeline) buildFilename(identifierMasked, identifierHash string) string {
	tail := visibleDigits(identifierMasked)
	if tail == "" {
		tail = "anon"
	}
	hash8 := identifierHash
	if len(hash8) > 8 {
		hash8 = hash8[:8]
	}
	now := p.clock.Now()
	return fmt.Sprintf("%s_%s_H%d_D%02d-%02d-%04d.pdf",
		tail, hash8, now.Hour(), now.Day(), int(now.Month()), now.Year())
}

func visibleDigits(masked string) string {
	var b strings.Builder
	for _, r := range masked {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
