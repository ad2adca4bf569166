// Package chat holds the conversation value types and maps protocol dialogs
// onto them together with the thumbnail tasks they imply.
package chat

import "strconv"

// SelfName is the display name given to the conversation with oneself.
const SelfName = "Saved Messages"

// IconKind classifies how a chat's thumbnail can be resolved.
type IconKind int

const (
	// IconNone means there is nothing to fetch; the icon stays the identity.
	IconNone IconKind = iota
	// IconScrape means a public handle and a photo: try the preview page.
	IconScrape
	// IconPhoto means a photo only reachable through an authorized download.
	IconPhoto
)

func (k IconKind) String() string {
	switch k {
	case IconScrape:
		return "scrape"
	case IconPhoto:
		return "photo"
	default:
		return "none"
	}
}

// Icon references a chat's thumbnail.
type Icon struct {
	Kind    IconKind `json:"kind"`
	Handle  string   `json:"handle,omitempty"`
	PhotoID string   `json:"photo_id,omitempty"`
}

// Chat is one conversation as shown to the user. A sync pass replaces the
// whole list; chats are never patched in place.
type Chat struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Self       bool   `json:"self"`
	Muted      bool   `json:"muted"`
	MuteUntil  int64  `json:"mute_until,omitempty"`
	LastReadID int    `json:"last_read_id"`
	Icon       Icon   `json:"icon"`
}

// Key returns the chat identity in its string form.
func (c Chat) Key() string { return strconv.FormatInt(c.ID, 10) }

// Preference is the per-chat record merged into the cache on every sync.
type Preference struct {
	ChatID   int64
	Muted    bool
	ScrollAt int
}

// Channel tags which resolution path a task starts on.
type Channel int

const (
	ChannelScrape Channel = iota
	ChannelWorker
)

func (c Channel) String() string {
	if c == ChannelWorker {
		return "worker"
	}
	return "scrape"
}

// Origin points at a message whose sender can stand in for a chat photo.
type Origin struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

// MediaTask asks for one thumbnail. Tasks live for one dispatch call.
type MediaTask struct {
	PhotoID string
	ChatID  int64
	Handle  string
	Origin  *Origin
	Channel Channel
}

// Escalate returns a copy of t moved to the worker channel.
func (t MediaTask) Escalate() MediaTask {
	t.Channel = ChannelWorker
	if t.Origin != nil {
		o := *t.Origin
		t.Origin = &o
	}
	return t
}
