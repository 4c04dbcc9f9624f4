// Package conversation drives the per-user dialogue: a step machine keyed by
// the WhatsApp identity, holding only privacy-safe derivatives of the user's
// document number.
package conversation

import (
	"time"

	"github.com/assusa/viabot/internal/titles"
)

// Step names the point a user is at in the dialogue.
type Step string

const (
	StepMenu                  Step = "MENU"
	StepLGPDNotice            Step = "LGPD_NOTICE"
	StepWaitingIdentifier     Step = "WAITING_IDENTIFIER"
	StepWaitingSelection      Step = "WAITING_SELECTION"
	StepWaitingFormat         Step = "WAITING_FORMAT"
	StepConfirm               Step = "CONFIRM"
	StepWaitingContactMessage Step = "WAITING_CONTACT_MESSAGE"
	StepDone                  Step = "DONE"
)

// Flow marks which service the user is walking through, since several share
// the identifier-collection step.
type Flow string

const (
	FlowNone         Flow = ""
	FlowSecondCopy   Flow = "SECOND_COPY"
	FlowDataDeletion Flow = "DATA_DELETION"
	FlowContact      Flow = "CONTACT"
)

// Format is the delivery format the user picked for a second copy.
type Format string

const (
	FormatPDF  Format = "PDF"
	FormatLink Format = "LINK"
)

// State is everything remembered about a user between messages. It never
// holds the raw document number: only the hash and the mask survive the
// message that carried it.
type State struct {
	Step             Step
	Flow             Flow
	IdentifierHash   string
	IdentifierMasked string
	Titles           []titles.Title
	SelectedID       string
	Format           Format
	UpdatedAt        time.Time
}

// NewState returns a fresh state positioned at the menu.
func NewState() *State {
	return &State{Step: StepMenu}
}

// Selected returns the title the user picked, or nil if none is selected.
func (s *State) Selected() *titles.Title {
	for i := range s.Titles {
		if s.Titles[i].ID == s.SelectedID {
			return &s.Titles[i]
		}
	}
	return nil
}
