package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. The part before the first dot is the namespace subscribers
// filter on.
const (
	// Protocol updates, one per telegram.EventKind.
	KindUpdatePrefix = "tg.update."
	KindConnected    = "tg.connected"
	KindDisconnected = "tg.disconnected"

	KindStatusChanged = "session.status_changed"
	KindRecheckAuth   = "session.recheck_auth"
	KindAuthProgress  = "session.auth_progress"

	KindConnectivity  = "state.connectivity"
	KindAuthorization = "state.authorization"
	KindSelf          = "state.self"
	KindChats         = "state.chats"
	KindThumbnail     = "state.thumbnail"

	KindMediaDownloaded = "media.downloaded"
	KindSyncCompleted   = "sync.completed"
	KindSyncFailed      = "sync.failed"
)
