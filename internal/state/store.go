// Package state holds the read-only view the daemon exposes to its clients.
// Every mutation is announced on the bus under the "state." namespace.
package state

import (
	"slices"
	"sync"

	"github.com/matheus3301/tgchats/internal/bus"
	"github.com/matheus3301/tgchats/internal/chat"
	"github.com/matheus3301/tgchats/internal/store"
	"github.com/matheus3301/tgchats/internal/telegram"
)

// ThumbnailEvent is the payload of state.thumbnail.
type ThumbnailEvent struct {
	PhotoID  string
	MIMEType string
	Size     int
}

// MediaEvent is the payload of media.downloaded.
type MediaEvent struct {
	ChatID    int64
	MessageID int
	Hash      string
	Size      int
}

// AuthProgress is the payload of session.auth_progress.
type AuthProgress struct {
	Stage string // code_sent, authorized, failed
	Phone string
	Error string
}

// Snapshot is a detached copy of the state.
type Snapshot struct {
	Connected  bool
	Authorized bool
	Self       *telegram.User
	Chats      []chat.Chat
	Thumbnails map[string]*store.Photo
}

// Store is the UI-facing state.
type Store struct {
	bus *bus.Bus

	mu         sync.RWMutex
	connected  bool
	authorized bool
	self       *telegram.User
	chats      []chat.Chat
	thumbs     map[string]*store.Photo
}

func New(b *bus.Bus) *Store {
	return &Store{bus: b, thumbs: make(map[string]*store.Photo)}
}

func (s *Store) SetConnected(v bool) {
	s.mu.Lock()
	changed := s.connected != v
	s.connected = v
	s.mu.Unlock()
	if changed {
		s.bus.Emit(bus.KindConnectivity, v)
	}
}

func (s *Store) SetAuthorized(v bool) {
	s.mu.Lock()
	changed := s.authorized != v
	s.authorized = v
	s.mu.Unlock()
	if changed {
		s.bus.Emit(bus.KindAuthorization, v)
	}
}

func (s *Store) SetSelf(u *telegram.User) {
	var cp *telegram.User
	if u != nil {
		v := *u
		cp = &v
	}
	s.mu.Lock()
	s.self = cp
	s.mu.Unlock()
	s.bus.Emit(bus.KindSelf, cp)
}

// SetChats replaces the chat list wholesale.
func (s *Store) SetChats(chats []chat.Chat) {
	cp := slices.Clone(chats)
	s.mu.Lock()
	s.chats = cp
	s.mu.Unlock()
	s.bus.Emit(bus.KindChats, len(cp))
}

// ThumbnailUpdated records a resolved photo for every chat sharing photoID.
func (s *Store) ThumbnailUpdated(photoID string, p *store.Photo) {
	if p == nil {
		return
	}
	s.mu.Lock()
	s.thumbs[photoID] = p
	s.mu.Unlock()
	s.bus.Emit(bus.KindThumbnail, ThumbnailEvent{PhotoID: photoID, MIMEType: p.MIMEType, Size: len(p.Data)})
}

// MediaDownloaded announces downloaded message media. Payloads are not kept.
func (s *Store) MediaDownloaded(chatID int64, messageID int, hash string, data []byte) {
	s.bus.Emit(bus.KindMediaDownloaded, MediaEvent{ChatID: chatID, MessageID: messageID, Hash: hash, Size: len(data)})
}

// AuthProgress announces a login step.
func (s *Store) AuthProgress(p AuthProgress) {
	s.bus.Emit(bus.KindAuthProgress, p)
}

// LoadThumbnails seeds the thumbnail map from the cache without events.
func (s *Store) LoadThumbnails(photos []store.Photo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range photos {
		p := photos[i]
		s.thumbs[p.ID] = &p
	}
}

func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Store) Authorized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authorized
}

func (s *Store) Chats() []chat.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.chats)
}

func (s *Store) Thumbnail(photoID string) (*store.Photo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.thumbs[photoID]
	return p, ok
}

// Snapshot returns a copy of the whole state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Connected:  s.connected,
		Authorized: s.authorized,
		Chats:      slices.Clone(s.chats),
		Thumbnails: make(map[string]*store.Photo, len(s.thumbs)),
	}
	if s.self != nil {
		u := *s.self
		snap.Self = &u
	}
	for k, v := range s.thumbs {
		snap.Thumbnails[k] = v
	}
	return snap
}
