package conversation

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/assusa/viabot/internal/audit"
	"github.com/assusa/viabot/internal/document"
	"github.com/assusa/viabot/internal/identifier"
	"github.com/assusa/viabot/internal/ratelimit"
	"github.com/assusa/viabot/internal/secondcopy"
	"github.com/assusa/viabot/internal/storage"
	"github.com/assusa/viabot/internal/titles"
)

// bankStub serves two open titles and a ready-made PDF for each.
type bankStub struct {
	doc []byte
}

func (b *bankStub) Bank() titles.Bank { return titles.BankBradesco }

func (b *bankStub) ListOpenTitles(ctx context.Context, id string) ([]titles.Title, error) {
	return []titles.Title{
		{NossoNumero: "111", Amount: 50, DueDate: time.Date(2026, 9, 5, 0, 0, 0, 0, time.UTC), Status: "OPEN", Bank: titles.BankBradesco},
		{NossoNumero: "222", Amount: 75.5, DueDate: time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), Status: "OPEN", Bank: titles.BankBradesco},
	}, nil
}

func (b *bankStub) GetDocument(ctx context.Context, t titles.Title) ([]byte, error) {
	return b.doc, nil
}

func (b *bankStub) GetBillData(ctx context.Context, t titles.Title) (*titles.BillData, error) {
	return nil, nil
}

// Full stack minus HTTP and the real banks: aggregator, pipeline, SQLite
// audit log, and disk storage all run for real.
func TestEndToEndSecondCopyWithRealPipeline(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	auditStore, err := audit.Open(":memory:")
	if err != nil {
		t.Fatalf("opening audit store: %v", err)
	}
	defer auditStore.Close()

	disk, err := storage.NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}

	pdf, err := document.BuildFromData(titles.BillData{
		DigitableLine: "23790.00009 01234.567895 67890.101112 1 23450000010050",
		Amount:        75.5,
		DueDate:       time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
		NossoNumero:   "222",
	})
	if err != nil {
		t.Fatalf("building fixture PDF: %v", err)
	}
	bank := &bankStub{doc: pdf}

	hasher, err := identifier.NewHasher(testPepper)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	aggregator := titles.NewAggregator([]titles.Provider{bank}, auditStore)
	pipeline := secondcopy.New([]titles.Provider{bank}, disk, auditStore, logger)

	sender := &fakeSender{}
	router := NewRouter(
		NewMemoryStore(time.Minute),
		ratelimit.New(),
		DefaultLimits,
		hasher,
		aggregator,
		pipeline,
		&fakeLinks{},
		sender,
		auditStore,
		disk,
		logger,
	)

	for _, m := range []string{"oi", "1", "1", "529.982.247-25", "2", "1", "1"} {
		router.HandleIncomingMessage(context.Background(), testIdentity, m, "")
	}

	if len(sender.docs) != 1 {
		t.Fatalf("documents sent = %d (texts: %q)", len(sender.docs), sender.texts)
	}
	if err := document.Validate(sender.docs[0].data); err != nil {
		t.Fatalf("delivered document invalid: %v", err)
	}
	if strings.Contains(sender.docs[0].filename, testCPF) {
		t.Fatalf("delivered filename carries the raw identifier: %q", sender.docs[0].filename)
	}

	// exactly one SENT-or-ERROR second-copy event, and it is SENT
	rows, err := auditStore.RowsByIdentifierHash(context.Background(), hasher.Hash(testCPF))
	if err != nil {
		t.Fatalf("reading audit rows: %v", err)
	}
	outcomes := 0
	for _, row := range rows {
		if row.EventType != audit.EventSecondCopyRequest {
			continue
		}
		if row.Status != audit.StatusSent && row.Status != audit.StatusError {
			continue
		}
		outcomes++
		if row.Status != audit.StatusSent {
			t.Fatalf("outcome status = %q", row.Status)
		}
		if row.StorageRef == "" {
			t.Fatal("sent event missing storage reference")
		}
	}
	if outcomes != 1 {
		t.Fatalf("second-copy outcome events = %d, want exactly 1", outcomes)
	}
}
