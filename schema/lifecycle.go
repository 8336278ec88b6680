package schema

import (
	"time"

	"hseproject/models"
)

// ActionInput is the caller-side context of a lifecycle action.
type ActionInput struct {
	Payload models.Document
	Actor   models.Actor
	Now     time.Time
}

// Action is one row of a lifecycle transition table.
type Action struct {
	Name     string
	From     []string // empty allows every state
	To       string   // empty leaves the status unchanged
	Fields   []string // payload fields copied onto the record
	Requires []string // must be filled in once Fields are copied
	Payload  []string // must be filled in on the payload itself
	Check    func(doc models.Document, in ActionInput) error
	Apply    func(doc models.Document, in ActionInput)
}

func (a Action) Allows(from string) bool {
	return len(a.From) == 0 || contains(a.From, from)
}

// Lifecycle is a record kind's state machine.
type Lifecycle struct {
	Field   string // status field; "status" when empty
	States  []string
	Initial string
	Draft   string   // empty when the kind has no draft state
	Entry   []string // states a record may be created in; Entry[0] is the default
	Actions []Action
}

func (l Lifecycle) StatusField() string {
	if l.Field == "" {
		return models.FieldStatus
	}
	return l.Field
}

func (l Lifecycle) Valid(state string) bool {
	return contains(l.States, state)
}

func (l Lifecycle) HasDraft() bool {
	return l.Draft != ""
}

// CreateStatus resolves the status of a record created through the
// submit path from the status the caller asked for.
func (l Lifecycle) CreateStatus(requested string) (string, bool) {
	if requested == "" {
		if len(l.Entry) > 0 {
			return l.Entry[0], true
		}
		return l.Initial, true
	}
	if requested == l.Initial || requested == l.Draft || contains(l.Entry, requested) {
		return requested, true
	}
	return "", false
}

func (l Lifecycle) Action(name string) (Action, bool) {
	for _, a := range l.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return Action{}, false
}

// ActionTo finds the action that moves a record from one state to another.
func (l Lifecycle) ActionTo(from, to string) (Action, bool) {
	for _, a := range l.Actions {
		if a.To == to && a.Allows(from) {
			return a, true
		}
	}
	return Action{}, false
}

// Stamp sets field to now unless it already holds a time.
func Stamp(doc models.Document, field string, now time.Time) {
	if _, ok := doc.Time(field); !ok {
		doc.Set(field, now)
	}
}

// StampActor fills a free-text "by" field with the actor when it is empty.
func StampActor(doc models.Document, field string, actor models.Actor) {
	if !doc.Present(field) && actor.Label() != "" {
		doc.Set(field, actor.Label())
	}
}
