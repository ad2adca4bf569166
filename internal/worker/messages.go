package worker

import (
	"bytes"
	"fmt"

	"github.com/matheus3301/tgchats/internal/chat"
	"github.com/matheus3301/tgchats/internal/telegram"
)

// RequestKind tags messages sent from the daemon to a worker.
type RequestKind int

const (
	KindConnect    RequestKind = 0
	KindMedia      RequestKind = 1
	KindPhoto      RequestKind = 2
	KindSendCode   RequestKind = 3
	KindSignIn     RequestKind = 4
	KindDisconnect RequestKind = -100
)

func (k RequestKind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindMedia:
		return "media"
	case KindPhoto:
		return "photo"
	case KindSendCode:
		return "send_code"
	case KindSignIn:
		return "sign_in"
	case KindDisconnect:
		return "disconnect"
	}
	return fmt.Sprintf("request(%d)", int(k))
}

// Request is the closed set of daemon-to-worker messages.
type Request interface {
	Kind() RequestKind
	request()
}

// Connect hands the session over and opens the worker's connection.
type Connect struct {
	Session telegram.SessionData
}

// MediaRequest asks for the media attached to a message.
type MediaRequest struct {
	ChatID    int64
	MessageID int
}

// PhotoRequest asks for a profile photo, with an optional origin fallback.
type PhotoRequest struct {
	PhotoID string
	ChatID  int64
	Origin  *chat.Origin
}

type SendCode struct {
	Phone string
}

type SignIn struct {
	Phone    string
	Code     string
	Password string
}

// Disconnect closes the connection and terminates the worker. It is always
// acknowledged before the worker exits.
type Disconnect struct{}

func (Connect) Kind() RequestKind      { return KindConnect }
func (MediaRequest) Kind() RequestKind { return KindMedia }
func (PhotoRequest) Kind() RequestKind { return KindPhoto }
func (SendCode) Kind() RequestKind     { return KindSendCode }
func (SignIn) Kind() RequestKind       { return KindSignIn }
func (Disconnect) Kind() RequestKind   { return KindDisconnect }

func (Connect) request()      {}
func (MediaRequest) request() {}
func (PhotoRequest) request() {}
func (SendCode) request()     {}
func (SignIn) request()       {}
func (Disconnect) request()   {}

// ReplyKind tags messages sent from a worker back to the daemon.
type ReplyKind int

const (
	ReplyAck        ReplyKind = 0
	ReplyMedia      ReplyKind = 1
	ReplyPhoto      ReplyKind = 2
	ReplyCodeSent   ReplyKind = 3
	ReplyAuthorized ReplyKind = 5
	ReplyError      ReplyKind = -1
	ReplyTerminated ReplyKind = -100
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyAck:
		return "ack"
	case ReplyMedia:
		return "media"
	case ReplyPhoto:
		return "photo"
	case ReplyCodeSent:
		return "code_sent"
	case ReplyAuthorized:
		return "authorized"
	case ReplyError:
		return "error"
	case ReplyTerminated:
		return "terminated"
	}
	return fmt.Sprintf("reply(%d)", int(k))
}

// Reply is the closed set of worker-to-daemon messages.
type Reply interface {
	Kind() ReplyKind
	reply()
}

// Ack confirms a request that has no other result.
type Ack struct {
	For RequestKind
}

// MediaResult carries downloaded message media. Hash is "chatID:messageID".
type MediaResult struct {
	ChatID    int64
	MessageID int
	Hash      string
	Data      []byte
}

type PhotoResult struct {
	PhotoID string
	ChatID  int64
	Data    []byte
}

type CodeSent struct {
	Phone string
}

// Authorized reports a completed sign-in with the session to adopt.
type Authorized struct {
	Session telegram.SessionData
	User    telegram.User
}

// ErrorReply reports a failed request. PhotoID and ChatID are set when the
// failure belongs to a media task.
type ErrorReply struct {
	For     RequestKind
	PhotoID string
	ChatID  int64
	Err     error
}

type Terminated struct{}

func (Ack) Kind() ReplyKind         { return ReplyAck }
func (MediaResult) Kind() ReplyKind { return ReplyMedia }
func (PhotoResult) Kind() ReplyKind { return ReplyPhoto }
func (CodeSent) Kind() ReplyKind    { return ReplyCodeSent }
func (Authorized) Kind() ReplyKind  { return ReplyAuthorized }
func (ErrorReply) Kind() ReplyKind  { return ReplyError }
func (Terminated) Kind() ReplyKind  { return ReplyTerminated }

func (Ack) reply()         {}
func (MediaResult) reply() {}
func (PhotoResult) reply() {}
func (CodeSent) reply()    {}
func (Authorized) reply()  {}
func (ErrorReply) reply()  {}
func (Terminated) reply()  {}

// MediaHash builds the composite key of a media result.
func MediaHash(chatID int64, messageID int) string {
	return fmt.Sprintf("%d:%d", chatID, messageID)
}

// copyRequest detaches a request from the sender's memory.
func copyRequest(r Request) Request {
	switch r := r.(type) {
	case Connect:
		return Connect{Session: r.Session.Clone()}
	case PhotoRequest:
		if r.Origin != nil {
			o := *r.Origin
			r.Origin = &o
		}
		return r
	default:
		return r
	}
}

// copyReply detaches a reply from the worker's memory.
func copyReply(r Reply) Reply {
	switch r := r.(type) {
	case MediaResult:
		r.Data = bytes.Clone(r.Data)
		return r
	case PhotoResult:
		r.Data = bytes.Clone(r.Data)
		return r
	case Authorized:
		r.Session = r.Session.Clone()
		return r
	default:
		return r
	}
}
