package audit

import (
	"context"
	"errors"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	payload := Payload{
		KeyMaskedIdentity:   "5511*****9999",
		KeyIdentifierHash:   "abc123hash",
		KeyMaskedIdentifier: "***.***.***-25",
		KeyStatus:           StatusSent,
		KeyStorageRef:       "ref-001",
		KeyExtra:            `{"filename":"2725_abc12345_H14_D01-02-2026.pdf"}`,
	}
	if err := s.Append(ctx, EventSecondCopyRequest, payload); err != nil {
		t.Fatalf("Append: %v", err)
	}

	rows, err := s.RowsByIdentifierHash(ctx, "abc123hash")
	if err != nil {
		t.Fatalf("RowsByIdentifierHash: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	r := rows[0]
	if r.EventType != EventSecondCopyRequest {
		t.Errorf("EventType = %q", r.EventType)
	}
	if r.Status != StatusSent || r.StorageRef != "ref-001" || r.MaskedIdentifier != "***.***.***-25" {
		t.Errorf("row fields not persisted in order: %+v", r)
	}
	if r.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestAppendRejectsForbiddenKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Append(ctx, EventSecondCopyRequest, Payload{
		KeyIdentifierHash: "abc",
		"rawIdentifier":   "52998224725",
	})
	if !errors.Is(err, ErrForbiddenField) {
		t.Fatalf("Append error = %v, want ErrForbiddenField", err)
	}

	rows, err := s.RowsByIdentifierHash(ctx, "abc")
	if err != nil {
		t.Fatalf("RowsByIdentifierHash: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("rejected event was written: %d rows", len(rows))
	}
}

func TestAppendRejectsRawIdentifierValue(t *testing.T) {
	s := openTestStore(t)

	// 52998224725 is a checksum-valid identifier; it must not pass even in
	// an allow-listed field.
	err := s.Append(context.Background(), EventContactRequest, Payload{
		KeyExtra: `{"message":"meu cpf é 52998224725"}`,
	})
	if !errors.Is(err, ErrForbiddenField) {
		t.Fatalf("Append error = %v, want ErrForbiddenField", err)
	}
}

func TestAppendAllowsMaskedAndInvalidDigits(t *testing.T) {
	s := openTestStore(t)

	err := s.Append(context.Background(), EventContactRequest, Payload{
		KeyMaskedIdentifier: "***.***.***-25",
		// Not checksum-valid, so this is an unrelated number, not a CPF.
		KeyExtra: `{"order":"12345678901"}`,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestDeleteByIdentifierHash(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Append(ctx, EventSecondCopyRequest, Payload{KeyIdentifierHash: "h1", KeyStatus: StatusSent}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := s.Append(ctx, EventSecondCopyRequest, Payload{KeyIdentifierHash: "h2", KeyStatus: StatusSent}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	n, err := s.DeleteByIdentifierHash(ctx, "h1")
	if err != nil {
		t.Fatalf("DeleteByIdentifierHash: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted %d rows, want 3", n)
	}

	rows, err := s.RowsByIdentifierHash(ctx, "h2")
	if err != nil {
		t.Fatalf("RowsByIdentifierHash: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("h2 rows = %d, want 1 (unaffected)", len(rows))
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	s2.Close()
}
