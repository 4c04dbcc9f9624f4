// Package titles aggregates outstanding bill records across independent bank
// backends.
package titles

import (
	"context"
	"strings"
	"time"
)

// Bank tags a title with its origin backend.
type Bank string

const (
	BankSicoob   Bank = "SICOOB"
	BankBradesco Bank = "BRADESCO"
)

// Title is one normalized outstanding bill. ID is generated at aggregation
// time and exists only for the duration of one conversation turn; providers
// never persist it.
type Title struct {
	ID          string
	NossoNumero string
	DocumentRef string
	Amount      float64
	DueDate     time.Time
	Status      string
	Bank        Bank
}

// Open reports whether the title's status marks it as outstanding.
func (t Title) Open() bool {
	return strings.EqualFold(t.Status, "open")
}

// BillData is the structured payload needed to render a second-copy document
// when the bank cannot produce a ready-made one.
type BillData struct {
	DigitableLine string
	Amount        float64
	DueDate       time.Time
	NossoNumero   string
	Beneficiary   string
	Payer         string
}

// Provider is one bank backend. Implementations must distinguish "no data"
// (nil result, nil error) from "call failed" (non-nil error).
type Provider interface {
	Bank() Bank
	ListOpenTitles(ctx context.Context, identifier string) ([]Title, error)
	GetDocument(ctx context.Context, title Title) ([]byte, error)
	GetBillData(ctx context.Context, title Title) (*BillData, error)
}

// TitleEnricher is implemented by providers whose list call returns coarse
// records that can be completed with a per-title detail call.
type TitleEnricher interface {
	EnrichTitle(ctx context.Context, title Title) (Title, error)
}
