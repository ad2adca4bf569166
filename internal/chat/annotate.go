package chat

import (
	"strconv"
	"time"

	"github.com/matheus3301/tgchats/internal/telegram"
)

// Batch is what one sync pass produces.
type Batch struct {
	Chats       []Chat
	ScrapeTasks []MediaTask
	WorkerTasks []MediaTask
	Prefs       []Preference
}

// Annotate maps dialogs, in order, to chats and derives the thumbnail tasks
// and preference updates. selfID is the authorized user's id.
func Annotate(dialogs []telegram.Dialog, selfID int64, now time.Time) Batch {
	b := Batch{Chats: make([]Chat, 0, len(dialogs))}
	for _, d := range dialogs {
		c := annotate(d, selfID, now)
		b.Chats = append(b.Chats, c)
		b.Prefs = append(b.Prefs, Preference{ChatID: c.ID, Muted: c.Muted, ScrollAt: c.LastReadID})

		// Both task kinds carry the origin; Escalate keeps it.
		switch c.Icon.Kind {
		case IconScrape:
			b.ScrapeTasks = append(b.ScrapeTasks, MediaTask{
				PhotoID: c.Icon.PhotoID,
				ChatID:  c.ID,
				Handle:  c.Icon.Handle,
				Channel: ChannelScrape,
				Origin:  topOrigin(c.ID, d),
			})
		case IconPhoto:
			b.WorkerTasks = append(b.WorkerTasks, MediaTask{
				PhotoID: c.Icon.PhotoID,
				ChatID:  c.ID,
				Channel: ChannelWorker,
				Origin:  topOrigin(c.ID, d),
			})
		}
	}
	return b
}

func topOrigin(chatID int64, d telegram.Dialog) *Origin {
	if d.TopMessage <= 0 {
		return nil
	}
	return &Origin{ChatID: chatID, MessageID: d.TopMessage}
}

func annotate(d telegram.Dialog, selfID int64, now time.Time) Chat {
	c := Chat{
		ID:         d.ID(),
		Name:       d.Name,
		LastReadID: d.ReadInboxMaxID,
	}
	if d.Peer.Kind == telegram.PeerUser && d.Peer.ID == selfID {
		c.Self = true
		c.Name = SelfName
	}
	if ns := d.NotifySettings; ns != nil {
		c.MuteUntil = ns.MuteUntil
		c.Muted = ns.MuteUntil > now.Unix()
	}
	c.Icon = classify(d)
	return c
}

func classify(d telegram.Dialog) Icon {
	handle := d.Username
	if handle == "" && d.Phone != "" {
		handle = "+" + d.Phone
	}
	if d.PhotoID == 0 {
		return Icon{Kind: IconNone, Handle: handle}
	}
	photo := strconv.FormatInt(d.PhotoID, 10)
	if handle != "" {
		return Icon{Kind: IconScrape, Handle: handle, PhotoID: photo}
	}
	return Icon{Kind: IconPhoto, PhotoID: photo}
}
