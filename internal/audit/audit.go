// Package audit provides the append-only operational event log. Payloads are
// validated against a key allow-list before they are written: the log rejects
// anything that could carry a raw identifier instead of silently redacting it.
package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/assusa/viabot/internal/identifier"
)

// Event types recorded by the service.
const (
	EventSecondCopyRequest = "SECOND_COPY_REQUEST"
	EventContactRequest    = "CONTACT_REQUEST"
	EventDuplicateTitle    = "DUPLICATE_TITLE"
	EventDataDeletion      = "DATA_DELETION"
)

// Statuses recorded in the status column.
const (
	StatusSent     = "SENT"
	StatusError    = "ERROR"
	StatusReceived = "RECEIVED"
	StatusFlagged  = "FLAGGED"
)

// Payload keys permitted by the allow-list.
const (
	KeyIdentifierHash   = "identifierHash"
	KeyMaskedIdentifier = "maskedIdentifier"
	KeyMaskedIdentity   = "maskedIdentity"
	KeyStatus           = "status"
	KeyStorageRef       = "storageRef"
	KeyErrorCode        = "errorCode"
	KeyExtra            = "extra" // free-form JSON of already-sanitized fields
)

// ErrForbiddenField indicates a payload carried a key outside the allow-list
// or a value containing a raw identifier. The call hard-fails; the caller's
// data-side effects stand and the audit gap must be logged at error level.
var ErrForbiddenField = errors.New("audit payload contains a forbidden field")

var allowedKeys = map[string]bool{
	KeyIdentifierHash:   true,
	KeyMaskedIdentifier: true,
	KeyMaskedIdentity:   true,
	KeyStatus:           true,
	KeyStorageRef:       true,
	KeyErrorCode:        true,
	KeyExtra:            true,
}

// Payload is one event's field set. Only allow-listed keys may appear.
type Payload map[string]string

// Appender is the event-log port consumed by the aggregator, the pipeline,
// and the conversation use cases.
type Appender interface {
	Append(ctx context.Context, eventType string, payload Payload) error
}

// validate hard-fails on any key outside the allow-list and on any value that
// still contains an unmasked identifier.
func validate(payload Payload) error {
	for k, v := range payload {
		if !allowedKeys[k] {
			return fmt.Errorf("%w: key %q", ErrForbiddenField, k)
		}
		if identifier.MaskText(v) != v {
			return fmt.Errorf("%w: value for %q contains a raw identifier", ErrForbiddenField, k)
		}
	}
	return nil
}
