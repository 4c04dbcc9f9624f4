package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/assusa/viabot/internal/audit"
	"github.com/assusa/viabot/internal/identifier"
	"github.com/assusa/viabot/internal/storage"
)

func (r *Router) handleMenu(ctx context.Context, identity string, st *State, text string) {
	switch text {
	case "1":
		st.Flow = FlowSecondCopy
		st.Step = StepLGPDNotice
		r.store.Set(identity, st)
		r.send(ctx, identity, msgLGPDNotice)
	case "2":
		st.Flow = FlowContact
		st.Step = StepWaitingContactMessage
		r.store.Set(identity, st)
		r.send(ctx, identity, msgAskContactMessage)
	case "3":
		link := r.links.GenerateLink(st.IdentifierHash)
		r.store.Set(identity, st)
		r.send(ctx, identity, formatSiteLink(link.URL))
	case "4":
		st.Flow = FlowDataDeletion
		st.Step = StepWaitingIdentifier
		r.store.Set(identity, st)
		r.send(ctx, identity, msgAskIdentifierForDeletion)
	default:
		r.store.Set(identity, st)
		r.send(ctx, identity, msgMenuInvalid)
	}
}

func (r *Router) handleLGPDNotice(ctx context.Context, identity string, st *State, text string) {
	switch text {
	case "1":
		st.Step = StepWaitingIdentifier
		r.store.Set(identity, st)
		r.send(ctx, identity, msgAskIdentifier)
	case "2":
		r.send(ctx, identity, msgLGPDDeclined)
		r.reset(ctx, identity)
	default:
		r.store.Set(identity, st)
		r.send(ctx, identity, msgLGPDNotice)
	}
}

// handleWaitingIdentifier is the only place the raw document number exists.
// It is validated, immediately reduced to hash and mask, and never stored.
func (r *Router) handleWaitingIdentifier(ctx context.Context, identity string, st *State, text string) {
	normalized := identifier.Normalize(text)
	if !identifier.Validate(normalized) {
		r.store.Set(identity, st)
		r.send(ctx, identity, msgIdentifierInvalid)
		return
	}

	st.IdentifierHash = r.hasher.Hash(normalized)
	st.IdentifierMasked = identifier.MaskDisplay(normalized)

	if st.Flow == FlowDataDeletion {
		r.deleteUserData(ctx, identity, st)
		return
	}

	result := r.finder.FindOpenTitles(ctx, normalized, st.IdentifierHash)
	if result.AllFailed() {
		r.send(ctx, identity, msgBanksUnavailable)
		r.reset(ctx, identity)
		return
	}
	if len(result.Titles) == 0 {
		r.send(ctx, identity, msgNoOpenTitles)
		r.reset(ctx, identity)
		return
	}

	st.Titles = result.Titles
	st.Step = StepWaitingSelection
	r.store.Set(identity, st)
	r.send(ctx, identity, formatTitleList(result.Titles))
}

func (r *Router) handleWaitingSelection(ctx context.Context, identity string, st *State, text string) {
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 || n > len(st.Titles) {
		r.store.Set(identity, st)
		r.send(ctx, identity, msgSelectionInvalid)
		return
	}

	st.SelectedID = st.Titles[n-1].ID
	st.Step = StepWaitingFormat
	r.store.Set(identity, st)
	r.send(ctx, identity, msgAskFormat)
}

func (r *Router) handleWaitingFormat(ctx context.Context, identity string, st *State, text string) {
	switch text {
	case "1":
		st.Format = FormatPDF
	case "2":
		st.Format = FormatLink
	default:
		r.store.Set(identity, st)
		r.send(ctx, identity, msgFormatInvalid)
		return
	}

	selected := st.Selected()
	if selected == nil {
		r.logger.Error("selected title missing from state", "identity", maskIdentity(identity))
		r.send(ctx, identity, msgUnexpectedError)
		r.reset(ctx, identity)
		return
	}

	st.Step = StepConfirm
	r.store.Set(identity, st)
	r.send(ctx, identity, formatConfirmation(*selected, st.Format))
}

func (r *Router) handleConfirm(ctx context.Context, identity string, st *State, text string) {
	switch text {
	case "1":
		r.deliverSecondCopy(ctx, identity, st)
	case "2":
		r.send(ctx, identity, msgCancelled)
		r.reset(ctx, identity)
	default:
		r.store.Set(identity, st)
		r.send(ctx, identity, msgConfirmInvalid)
	}
}

// deliverSecondCopy runs the pipeline for the confirmed title. Delivery
// failures append an error event; the sent event is the pipeline's to write.
func (r *Router) deliverSecondCopy(ctx context.Context, identity string, st *State) {
	selected := st.Selected()
	if selected == nil {
		r.logger.Error("selected title missing at confirmation", "identity", maskIdentity(identity))
		r.send(ctx, identity, msgUnexpectedError)
		r.reset(ctx, identity)
		return
	}

	// The flow ends here either way; completed conversations hold no state.
	defer r.store.Clear(identity)

	if st.Format == FormatLink {
		link := r.links.GenerateLink(st.IdentifierHash)
		r.send(ctx, identity, formatSiteLink(link.URL))
		return
	}

	masked := maskIdentity(identity)
	result, err := r.pipeline.Generate(ctx, masked, st.IdentifierHash, st.IdentifierMasked, *selected)
	if err != nil {
		r.logger.Error("second copy generation failed",
			"identity", masked, "bank", selected.Bank,
			"correlation_id", audit.CorrelationFrom(ctx), "error", err)
		r.appendErrorEvent(ctx, st, masked, "GENERATE_FAILED")
		r.send(ctx, identity, msgGenerateFailed)
		return
	}

	if err := r.sender.SendDocument(ctx, identity, result.Document, result.Filename, msgDocumentCaption); err != nil {
		r.logger.Error("second copy delivery failed",
			"identity", masked, "error", err)
		r.appendErrorEvent(ctx, st, masked, "SEND_FAILED")
		r.send(ctx, identity, msgGenerateFailed)
	}
}

func (r *Router) appendErrorEvent(ctx context.Context, st *State, identityMasked, code string) {
	extra, _ := json.Marshal(map[string]string{"correlationId": audit.CorrelationFrom(ctx)})
	err := r.audit.Append(ctx, audit.EventSecondCopyRequest, audit.Payload{
		audit.KeyMaskedIdentity:   identityMasked,
		audit.KeyIdentifierHash:   st.IdentifierHash,
		audit.KeyMaskedIdentifier: st.IdentifierMasked,
		audit.KeyStatus:           audit.StatusError,
		audit.KeyErrorCode:        code,
		audit.KeyExtra:            string(extra),
	})
	if err != nil {
		r.logger.Error("audit append failed for error event", "error", err)
	}
}

func (r *Router) handleContactMessage(ctx context.Context, identity string, st *State, text string) {
	if len([]rune(text)) > r.limits.ContactMaxChars {
		r.store.Set(identity, st)
		r.send(ctx, identity, msgContactTooLong)
		return
	}

	masked := maskIdentity(identity)
	extra, _ := json.Marshal(map[string]string{"message": identifier.MaskText(text)})
	err := r.audit.Append(ctx, audit.EventContactRequest, audit.Payload{
		audit.KeyMaskedIdentity: masked,
		audit.KeyStatus:         audit.StatusReceived,
		audit.KeyExtra:          string(extra),
	})
	if err != nil {
		r.logger.Error("audit append failed for contact request",
			"identity", masked, "error", err)
	}

	r.send(ctx, identity, msgContactReceived)
	r.store.Clear(identity)
}

// deleteUserData purges every stored trace of the identifier: first the
// artifacts referenced by audit rows, then the rows themselves. A truncated
// hash is left behind as the only record that a deletion happened.
func (r *Router) deleteUserData(ctx context.Context, identity string, st *State) {
	hash := st.IdentifierHash

	rows, err := r.audit.RowsByIdentifierHash(ctx, hash)
	if err != nil {
		r.logger.Error("listing rows for data deletion failed", "error", err)
		r.send(ctx, identity, msgDataDeletionFailed)
		r.reset(ctx, identity)
		return
	}

	artifacts := 0
	for _, row := range rows {
		if row.StorageRef == "" {
			continue
		}
		if err := r.storage.Delete(ctx, row.StorageRef); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			r.logger.Error("deleting artifact failed",
				"ref", row.StorageRef, "error", err)
			r.send(ctx, identity, msgDataDeletionFailed)
			r.reset(ctx, identity)
			return
		}
		artifacts++
	}

	deleted, err := r.audit.DeleteByIdentifierHash(ctx, hash)
	if err != nil {
		r.logger.Error("deleting audit rows failed", "error", err)
		r.send(ctx, identity, msgDataDeletionFailed)
		r.reset(ctx, identity)
		return
	}

	extra, _ := json.Marshal(map[string]int{
		"deletedEvents":    deleted,
		"deletedArtifacts": artifacts,
	})
	if err := r.audit.Append(ctx, audit.EventDataDeletion, audit.Payload{
		audit.KeyIdentifierHash: truncateHash(hash),
		audit.KeyStatus:         audit.StatusSent,
		audit.KeyExtra:          string(extra),
	}); err != nil {
		r.logger.Error("audit append failed for data deletion", "error", err)
	}

	r.send(ctx, identity, msgDataDeleted)
	r.store.Clear(identity)
}

func truncateHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
