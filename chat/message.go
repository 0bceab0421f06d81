package chat

import (
	"github.com/onnwee/chatfeed/badges"
	"github.com/onnwee/chatfeed/emotes"
)

// Message is a display-ready chat message. It is not modified after the
// Enricher builds it.
type Message struct {
	ID                 string         `json:"id"`
	Username           string         `json:"username"`
	DisplayName        string         `json:"displayName"`
	Color              string         `json:"color"`
	Badges             []badges.Badge `json:"badges"`
	Text               string         `json:"text"`
	RawText            string         `json:"rawText"`
	TimestampMs        int64          `json:"timestamp"`
	IsAction           bool           `json:"isAction"`
	InlineEmotes       []InlineEmote  `json:"inlineEmotes,omitempty"`
	SubstitutionEmotes []emotes.Match `json:"substitutionEmotes,omitempty"`
	Bits               int            `json:"bits,omitempty"`
	HasBits            bool           `json:"hasBits,omitempty"`
	Cheer              *CheerTier     `json:"cheer,omitempty"`
}

// InlineEmote is a native Twitch emote occupying the runes [Start, End] of Text.
type InlineEmote struct {
	ID       string `json:"id"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	ImageURL string `json:"imageUrl"`
}

// CheerTier is one bits threshold of a cheermote prefix.
type CheerTier struct {
	Prefix   string `json:"prefix"`
	MinBits  int    `json:"minBits"`
	ImageURL string `json:"imageUrl"`
	Color    string `json:"color,omitempty"`
}

// EventKind names a Store mutation.
type EventKind string

const (
	EventAppended    EventKind = "appended"
	EventRemovedID   EventKind = "removed_id"
	EventRemovedUser EventKind = "removed_user"
	EventEvicted     EventKind = "evicted"
	EventCleared     EventKind = "cleared"
)

// StoreEvent describes one Store mutation. Seq increases by one per event
// within a Store.
type StoreEvent struct {
	Kind     EventKind `json:"kind"`
	Channel  string    `json:"channel"`
	Seq      uint64    `json:"seq"`
	Message  *Message  `json:"message,omitempty"`
	IDs      []string  `json:"ids,omitempty"`
	Username string    `json:"username,omitempty"`
}

// Notifier receives Store mutations. Notify is called with the Store lock
// held: it must not block and must not call back into the Store.
type Notifier interface {
	Notify(StoreEvent)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(StoreEvent)

func (f NotifierFunc) Notify(ev StoreEvent) { f(ev) }
