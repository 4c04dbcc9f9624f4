package conversation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/assusa/viabot/internal/audit"
	"github.com/assusa/viabot/internal/identifier"
	"github.com/assusa/viabot/internal/ratelimit"
	"github.com/assusa/viabot/internal/secondcopy"
	"github.com/assusa/viabot/internal/sitelink"
	"github.com/assusa/viabot/internal/titles"
	"github.com/assusa/viabot/internal/whatsapp"
)

// TitleFinder aggregates open titles across banks.
type TitleFinder interface {
	FindOpenTitles(ctx context.Context, identifier, identifierHash string) titles.FindResult
}

// Generator produces and stores second-copy documents.
type Generator interface {
	Generate(ctx context.Context, identityMasked, identifierHash, identifierMasked string, title titles.Title) (*secondcopy.Result, error)
}

// LinkService issues portal links.
type LinkService interface {
	GenerateLink(identifierHash string) sitelink.Result
}

// AuditLog is the slice of the event store the dialogue needs: appending
// events plus reading and purging rows for the data-deletion flow.
type AuditLog interface {
	Append(ctx context.Context, eventType string, payload audit.Payload) error
	RowsByIdentifierHash(ctx context.Context, hash string) ([]audit.Row, error)
	DeleteByIdentifierHash(ctx context.Context, hash string) (int, error)
}

// ArtifactStore deletes stored artifacts during data deletion.
type ArtifactStore interface {
	Delete(ctx context.Context, ref string) error
}

// Limits bounds inbound traffic and message sizes.
type Limits struct {
	MessagesPerWindow int
	WindowSeconds     int
	ContactMaxChars   int
}

// DefaultLimits matches the production configuration.
var DefaultLimits = Limits{
	MessagesPerWindow: 20,
	WindowSeconds:     60,
	ContactMaxChars:   500,
}

// Router receives inbound messages and advances the per-user step machine.
type Router struct {
	store    *MemoryStore
	limiter  *ratelimit.Limiter
	limits   Limits
	hasher   *identifier.Hasher
	finder   TitleFinder
	pipeline Generator
	links    LinkService
	sender   whatsapp.Sender
	audit    AuditLog
	storage  ArtifactStore
	logger   *slog.Logger
}

// NewRouter wires the dialogue over its collaborators.
func NewRouter(
	store *MemoryStore,
	limiter *ratelimit.Limiter,
	limits Limits,
	hasher *identifier.Hasher,
	finder TitleFinder,
	pipeline Generator,
	links LinkService,
	sender whatsapp.Sender,
	auditLog AuditLog,
	storage ArtifactStore,
	logger *slog.Logger,
) *Router {
	if limits.MessagesPerWindow <= 0 {
		limits.MessagesPerWindow = DefaultLimits.MessagesPerWindow
	}
	if limits.WindowSeconds <= 0 {
		limits.WindowSeconds = DefaultLimits.WindowSeconds
	}
	if limits.ContactMaxChars <= 0 {
		limits.ContactMaxChars = DefaultLimits.ContactMaxChars
	}
	return &Router{
		store:    store,
		limiter:  limiter,
		limits:   limits,
		hasher:   hasher,
		finder:   finder,
		pipeline: pipeline,
		links:    links,
		sender:   sender,
		audit:    auditLog,
		storage:  storage,
		logger:   logger,
	}
}

// HandleIncomingMessage processes one inbound text from identity. An empty
// correlationID gets a fresh one. It never panics outward: unexpected
// failures are logged with the correlation id and answered with a generic
// apology so the webhook can always be acknowledged.
func (r *Router) HandleIncomingMessage(ctx context.Context, identity, text, correlationID string) {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	ctx = audit.WithCorrelation(ctx, correlationID)

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic while handling message",
				"identity", maskIdentity(identity), "correlation_id", correlationID, "panic", rec)
			r.send(ctx, identity, msgUnexpectedError)
		}
	}()

	if hit := r.limiter.Hit(identity, r.limits.MessagesPerWindow, r.limits.WindowSeconds); !hit.Allowed {
		r.send(ctx, identity, msgRateLimited)
		return
	}

	unlock := r.store.Lock(identity)
	defer unlock()

	text = strings.TrimSpace(text)

	st := r.store.Get(identity)
	if st == nil || st.Step == StepDone {
		st = NewState()
		r.store.Set(identity, st)
		r.send(ctx, identity, msgMenu)
		return
	}

	switch st.Step {
	case StepMenu:
		r.handleMenu(ctx, identity, st, text)
	case StepLGPDNotice:
		r.handleLGPDNotice(ctx, identity, st, text)
	case StepWaitingIdentifier:
		r.handleWaitingIdentifier(ctx, identity, st, text)
	case StepWaitingSelection:
		r.handleWaitingSelection(ctx, identity, st, text)
	case StepWaitingFormat:
		r.handleWaitingFormat(ctx, identity, st, text)
	case StepConfirm:
		r.handleConfirm(ctx, identity, st, text)
	case StepWaitingContactMessage:
		r.handleContactMessage(ctx, identity, st, text)
	default:
		r.logger.Warn("unknown conversation step, resetting", "step", st.Step)
		r.reset(ctx, identity)
	}
}

// reset drops the state and shows the menu again.
func (r *Router) reset(ctx context.Context, identity string) {
	st := NewState()
	r.store.Set(identity, st)
	r.send(ctx, identity, msgMenu)
}

func (r *Router) send(ctx context.Context, identity, body string) {
	if err := r.sender.SendText(ctx, identity, body); err != nil {
		r.logger.Error("sending reply failed",
			"identity", maskIdentity(identity), "error", err)
	}
}

// maskIdentity hides the middle of a phone-style identity for logs and the
// audit trail.
func maskIdentity(identity string) string {
	if len(identity) <= 8 {
		return strings.Repeat("*", len(identity))
	}
	return identity[:4] + strings.Repeat("*", len(identity)-8) + identity[len(identity)-4:]
}
