package telegram

import (
	"errors"
	"sync"

	"github.com/gotd/td/tg"
)

// errSkipDialog marks dialog entries that are not conversations (folders).
var errSkipDialog = errors.New("skip dialog")

// entities caches the users, chats and channels seen in responses so later
// calls can build input peers (which need access hashes) from a marked id.
type entities struct {
	mu       sync.RWMutex
	users    map[int64]*tg.User
	chats    map[int64]*tg.Chat
	channels map[int64]*tg.Channel
}

func newEntities() *entities {
	return &entities{
		users:    make(map[int64]*tg.User),
		chats:    make(map[int64]*tg.Chat),
		channels: make(map[int64]*tg.Channel),
	}
}

func (e *entities) add(users []tg.UserClass, chats []tg.ChatClass) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			e.users[user.ID] = user
		}
	}
	for _, c := range chats {
		switch c := c.(type) {
		case *tg.Chat:
			e.chats[c.ID] = c
		case *tg.Channel:
			e.channels[c.ID] = c
		}
	}
}

func (e *entities) inputPeer(markedID int64) (tg.InputPeerClass, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p := PeerFromMarked(markedID)
	switch p.Kind {
	case PeerUser:
		u, ok := e.users[p.ID]
		if !ok {
			return nil, ErrUnknownPeer
		}
		if u.Self {
			return &tg.InputPeerSelf{}, nil
		}
		return &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash}, nil
	case PeerChat:
		if _, ok := e.chats[p.ID]; !ok {
			return nil, ErrUnknownPeer
		}
		return &tg.InputPeerChat{ChatID: p.ID}, nil
	default:
		c, ok := e.channels[p.ID]
		if !ok {
			return nil, ErrUnknownPeer
		}
		return &tg.InputPeerChannel{ChannelID: c.ID, AccessHash: c.AccessHash}, nil
	}
}

// photoID returns the current profile photo id of a cached peer, or 0.
func (e *entities) photoID(markedID int64) int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p := PeerFromMarked(markedID)
	switch p.Kind {
	case PeerUser:
		if u, ok := e.users[p.ID]; ok {
			return userPhotoID(u.Photo)
		}
	case PeerChat:
		if c, ok := e.chats[p.ID]; ok {
			return chatPhotoID(c.Photo)
		}
	case PeerChannel:
		if c, ok := e.channels[p.ID]; ok {
			return chatPhotoID(c.Photo)
		}
	}
	return 0
}

// dialog flattens a dialog entry with its peer entity.
func (e *entities) dialog(d tg.DialogClass) (Dialog, error) {
	dlg, ok := d.(*tg.Dialog)
	if !ok {
		return Dialog{}, errSkipDialog
	}
	peer, ok := peerOf(dlg.Peer)
	if !ok {
		return Dialog{}, &ProtocolError{Op: "getDialogs", Field: "dialog.peer"}
	}

	out := Dialog{
		Peer:           peer,
		TopMessage:     dlg.TopMessage,
		ReadInboxMaxID: dlg.ReadInboxMaxID,
	}
	if until, ok := dlg.NotifySettings.GetMuteUntil(); ok {
		out.NotifySettings = &NotifySettings{MuteUntil: int64(until)}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	switch peer.Kind {
	case PeerUser:
		u, ok := e.users[peer.ID]
		if !ok {
			return Dialog{}, &ProtocolError{Op: "getDialogs", Field: "users[peer]"}
		}
		out.Peer.AccessHash = u.AccessHash
		out.Name = convertUser(u).DisplayName()
		out.Username = u.Username
		out.Phone = u.Phone
		out.PhotoID = userPhotoID(u.Photo)
	case PeerChat:
		c, ok := e.chats[peer.ID]
		if !ok {
			return Dialog{}, &ProtocolError{Op: "getDialogs", Field: "chats[peer]"}
		}
		out.Name = c.Title
		out.PhotoID = chatPhotoID(c.Photo)
	case PeerChannel:
		c, ok := e.channels[peer.ID]
		if !ok {
			return Dialog{}, &ProtocolError{Op: "getDialogs", Field: "channels[peer]"}
		}
		out.Peer.AccessHash = c.AccessHash
		out.Name = c.Title
		out.Username = c.Username
		out.PhotoID = chatPhotoID(c.Photo)
	}
	return out, nil
}

func peerOf(p tg.PeerClass) (Peer, bool) {
	switch p := p.(type) {
	case *tg.PeerUser:
		return Peer{Kind: PeerUser, ID: p.UserID}, true
	case *tg.PeerChat:
		return Peer{Kind: PeerChat, ID: p.ChatID}, true
	case *tg.PeerChannel:
		return Peer{Kind: PeerChannel, ID: p.ChannelID}, true
	}
	return Peer{}, false
}

func userPhotoID(p tg.UserProfilePhotoClass) int64 {
	if ph, ok := p.(*tg.UserProfilePhoto); ok {
		return ph.PhotoID
	}
	return 0
}

func chatPhotoID(p tg.ChatPhotoClass) int64 {
	if ph, ok := p.(*tg.ChatPhoto); ok {
		return ph.PhotoID
	}
	return 0
}

func convertUser(u *tg.User) User {
	return User{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		Phone:     u.Phone,
		PhotoID:   userPhotoID(u.Photo),
	}
}

// convertMessage keeps service messages out; the sender falls back to the
// peer for private chats where from_id is omitted.
func convertMessage(chatID int64, m tg.MessageClass) (Message, bool) {
	msg, ok := m.(*tg.Message)
	if !ok {
		return Message{}, false
	}
	out := Message{ID: msg.ID, ChatID: chatID}
	if from, ok := msg.GetFromID(); ok {
		if p, ok := peerOf(from); ok {
			out.SenderID = p.MarkedID()
		}
	} else if p, ok := peerOf(msg.PeerID); ok && p.Kind == PeerUser {
		out.SenderID = p.MarkedID()
	}
	if media, ok := msg.GetMedia(); ok {
		out.Media = mediaRef(media)
	}
	return out, true
}

func mediaRef(m tg.MessageMediaClass) *MediaRef {
	switch m := m.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := m.Photo.(*tg.Photo)
		if !ok {
			return nil
		}
		thumb := ""
		if n := len(photo.Sizes); n > 0 {
			thumb = photo.Sizes[n-1].GetType()
		}
		return &MediaRef{Kind: "photo", loc: &tg.InputPhotoFileLocation{
			ID:            photo.ID,
			AccessHash:    photo.AccessHash,
			FileReference: photo.FileReference,
			ThumbSize:     thumb,
		}}
	case *tg.MessageMediaDocument:
		doc, ok := m.Document.(*tg.Document)
		if !ok {
			return nil
		}
		return &MediaRef{Kind: "document", loc: &tg.InputDocumentFileLocation{
			ID:            doc.ID,
			AccessHash:    doc.AccessHash,
			FileReference: doc.FileReference,
		}}
	}
	return nil
}

// eventKinds maps an update batch to the distinct event kinds it carries.
func eventKinds(u tg.UpdatesClass) []EventKind {
	var updates []tg.UpdateClass
	switch u := u.(type) {
	case *tg.UpdatesTooLong:
		return []EventKind{EventUpdatesTooLong}
	case *tg.UpdateShortMessage, *tg.UpdateShortChatMessage:
		return []EventKind{EventNewMessage}
	case *tg.UpdateShort:
		updates = []tg.UpdateClass{u.Update}
	case *tg.Updates:
		updates = u.Updates
	case *tg.UpdatesCombined:
		updates = u.Updates
	}

	var kinds []EventKind
	seen := make(map[EventKind]bool)
	for _, upd := range updates {
		k, ok := updateKind(upd)
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		kinds = append(kinds, k)
	}
	return kinds
}

func updateKind(u tg.UpdateClass) (EventKind, bool) {
	switch u.(type) {
	case *tg.UpdateNewMessage, *tg.UpdateNewChannelMessage:
		return EventNewMessage, true
	case *tg.UpdateEditMessage, *tg.UpdateEditChannelMessage:
		return EventEditMessage, true
	case *tg.UpdateDeleteMessages, *tg.UpdateDeleteChannelMessages:
		return EventDeleteMessages, true
	case *tg.UpdateReadHistoryInbox, *tg.UpdateReadChannelInbox:
		return EventReadInbox, true
	case *tg.UpdateFolderPeers:
		return EventFolderPeers, true
	}
	return "", false
}
