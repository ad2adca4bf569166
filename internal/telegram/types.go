package telegram

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// PeerKind distinguishes the three Telegram peer namespaces.
type PeerKind int

const (
	PeerUser PeerKind = iota
	PeerChat
	PeerChannel
)

// channelOffset is the base subtracted from channel ids to build marked ids.
const channelOffset int64 = 1_000_000_000_000

// Peer identifies a conversation partner as returned by the server.
type Peer struct {
	Kind       PeerKind
	ID         int64
	AccessHash int64
}

// MarkedID returns the normalized identity: users keep their id, basic groups
// are negated and channels are shifted below -1e12.
func (p Peer) MarkedID() int64 {
	switch p.Kind {
	case PeerChat:
		return -p.ID
	case PeerChannel:
		return -(channelOffset + p.ID)
	default:
		return p.ID
	}
}

// PeerFromMarked reverses MarkedID. The access hash is unknown.
func PeerFromMarked(id int64) Peer {
	switch {
	case id <= -channelOffset:
		return Peer{Kind: PeerChannel, ID: -id - channelOffset}
	case id < 0:
		return Peer{Kind: PeerChat, ID: -id}
	default:
		return Peer{Kind: PeerUser, ID: id}
	}
}

// NotifySettings carries the subset of peer notify settings we consume.
type NotifySettings struct {
	MuteUntil int64 // unix seconds; 0 = not muted
}

// Dialog is one entry of the dialog list, flattened with its peer entity.
type Dialog struct {
	Peer           Peer
	Name           string
	Username       string
	Phone          string
	PhotoID        int64 // 0 = no photo
	NotifySettings *NotifySettings
	TopMessage     int
	ReadInboxMaxID int
}

// ID returns the dialog's marked identity.
func (d Dialog) ID() int64 { return d.Peer.MarkedID() }

// User is the authorized account or a message sender.
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
	Phone     string
	PhotoID   int64
}

// DisplayName joins the first and last name.
func (u User) DisplayName() string {
	switch {
	case u.LastName == "":
		return u.FirstName
	case u.FirstName == "":
		return u.LastName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// MediaRef is an opaque handle to downloadable message media.
type MediaRef struct {
	Kind string // photo, document
	loc  any
}

// Message is a fetched message reduced to what media resolution needs.
type Message struct {
	ID       int
	ChatID   int64
	SenderID int64 // marked id; 0 when unknown
	Media    *MediaRef
}

// DialogOptions mirrors the dialog listing request.
type DialogOptions struct {
	Limit         int
	ExcludePinned bool
	FolderID      int
}

// PhotoOptions selects which profile photo to download.
type PhotoOptions struct {
	PhotoID int64 // 0 = current photo of the peer
	Big     bool
}

// SessionData is the material needed to re-establish an authorized
// connection in another execution context.
type SessionData struct {
	DC      int    `json:"dc"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	AuthKey []byte `json:"auth_key,omitempty"`
}

// Addr returns host:port.
func (s SessionData) Addr() string {
	if s.Host == "" {
		return ""
	}
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Clone returns a deep copy so the receiver can be handed to another context.
func (s SessionData) Clone() SessionData {
	c := s
	if s.AuthKey != nil {
		c.AuthKey = append([]byte(nil), s.AuthKey...)
	}
	return c
}

// WithoutKey returns a copy with the auth key stripped.
func (s SessionData) WithoutKey() SessionData {
	c := s
	c.AuthKey = nil
	return c
}

// HasKey reports whether the session carries an auth key.
func (s SessionData) HasKey() bool { return len(s.AuthKey) > 0 }

func parseAddr(addr string) (string, int, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return "", 0, fmt.Errorf("parse port %q: %w", port, err)
	}
	return host, p, nil
}

// EventKind enumerates the protocol events the daemon reacts to.
type EventKind string

const (
	EventNewMessage     EventKind = "new_message"
	EventEditMessage    EventKind = "edit_message"
	EventDeleteMessages EventKind = "delete_messages"
	EventReadInbox      EventKind = "read_inbox"
	EventFolderPeers    EventKind = "folder_peers"
	EventUpdatesTooLong EventKind = "too_long"
	EventConnected      EventKind = "connected"
	EventDisconnected   EventKind = "disconnected"
)

// Event is a named update or connectivity transition.
type Event struct {
	Kind EventKind
	Err  error // set on EventDisconnected when the connection failed
}

var (
	ErrNotConnected    = errors.New("telegram client not connected")
	ErrNotAuthorized   = errors.New("telegram client not authorized")
	ErrUnknownPeer     = errors.New("peer not in local entity cache")
	ErrNoPhoto         = errors.New("peer has no profile photo")
	ErrNoMedia         = errors.New("message has no downloadable media")
	ErrPasswordNeeded  = errors.New("two-factor password required")
	ErrCodeNotSent     = errors.New("sign in requested before a code was sent")
	ErrMessageNotFound = errors.New("message not found")
)

// ProtocolError reports a server response missing a field we depend on.
type ProtocolError struct {
	Op    string
	Field string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: response missing %s", e.Op, e.Field)
}
