// Package models holds the cache data model shared by the store, the
// reconciler and the view.
package models

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Label category values as reported by Gmail.
const (
	LabelTypeSystem = "system"
	LabelTypeUser   = "user"
)

// InboxLabelID is the well-known Gmail inbox label.
const InboxLabelID = "INBOX"

// Message is a cached mail message. The remote-assigned ID is stable and
// globally unique in the cache; ThreadID groups messages for display only.
// All fields are plain values, so an assignment is a deep copy.
type Message struct {
	ID           string
	ThreadID     string
	From         string
	To           string
	Subject      string
	Snippet      string
	BodyPlain    string
	BodyHTML     string
	InternalDate int64
	IsRead       bool
}

// Label is a Gmail label definition. Immutable from the core's point of
// view except for wholesale replacement during label sync.
type Label struct {
	ID              string
	Name            string
	Type            string
	ColorForeground string
	ColorBackground string
}

var titleCaser = cases.Title(language.English)

// DisplayName returns a human-friendly rendering of the label name.
// System labels come back upper-cased from the API ("INBOX", "SENT").
func (l Label) DisplayName() string {
	if l.Name == "" {
		return l.ID
	}
	return titleCaser.String(l.Name)
}

// MessageRef is a lightweight (id, internal date) pair used by the
// reconciler to diff a remote listing against the cache without fetching
// full message content.
type MessageRef struct {
	ID           string
	InternalDate int64
}
