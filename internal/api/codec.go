package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/tgchats/internal/bus"
	"github.com/matheus3301/tgchats/internal/chat"
	"github.com/matheus3301/tgchats/internal/state"
	"github.com/matheus3301/tgchats/internal/status"
	intsync "github.com/matheus3301/tgchats/internal/sync"
	"github.com/matheus3301/tgchats/internal/telegram"
	"google.golang.org/protobuf/types/known/structpb"
)

// PayloadVersion is bumped whenever an envelope payload changes shape.
const PayloadVersion = 1

// SnapshotView is the decoded form of GetSnapshot, used by clients.
type SnapshotView struct {
	Session       string
	Status        string
	UptimeMs      int64
	Connected     bool
	Authorized    bool
	Self          *UserView
	Chats         []ChatView
	Thumbnails    int
	LastSyncAt    time.Time
	LastSyncChats int
}

type UserView struct {
	ID       int64
	Name     string
	Username string
	Phone    string
}

type ChatView struct {
	ID           int64
	Name         string
	Self         bool
	Muted        bool
	LastReadID   int
	IconKind     string
	Handle       string
	PhotoID      string
	HasThumbnail bool
}

// EventView is the decoded form of a Watch envelope.
type EventView struct {
	ID         string
	Session    string
	Kind       string
	OccurredAt time.Time
	Payload    any
}

func encodeSnapshot(session string, st status.State, uptime time.Duration, snap state.Snapshot, lastSync time.Time, lastChats int) (*structpb.Struct, error) {
	chats := make([]any, 0, len(snap.Chats))
	for _, c := range snap.Chats {
		_, has := snap.Thumbnails[c.Icon.PhotoID]
		chats = append(chats, chatValue(c, has && c.Icon.PhotoID != ""))
	}
	m := map[string]any{
		"session":         session,
		"status":          string(st),
		"uptime_ms":       float64(uptime.Milliseconds()),
		"connected":       snap.Connected,
		"authorized":      snap.Authorized,
		"chats":           chats,
		"thumbnails":      float64(len(snap.Thumbnails)),
		"last_sync_chats": float64(lastChats),
	}
	if !lastSync.IsZero() {
		m["last_sync_at_ms"] = float64(lastSync.UnixMilli())
	}
	if snap.Self != nil {
		m["self"] = userValue(snap.Self)
	}
	return structpb.NewStruct(m)
}

func chatValue(c chat.Chat, hasThumb bool) map[string]any {
	return map[string]any{
		"id":            c.Key(),
		"name":          c.Name,
		"self":          c.Self,
		"muted":         c.Muted,
		"last_read_id":  float64(c.LastReadID),
		"icon_kind":     c.Icon.Kind.String(),
		"handle":        c.Icon.Handle,
		"photo_id":      c.Icon.PhotoID,
		"has_thumbnail": hasThumb,
	}
}

func userValue(u *telegram.User) map[string]any {
	return map[string]any{
		"id":       strconv.FormatInt(u.ID, 10),
		"name":     u.DisplayName(),
		"username": u.Username,
		"phone":    u.Phone,
	}
}

// envelope wraps a bus event for the Watch stream.
func envelope(session string, evt bus.Event) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"event_id":        uuid.New().String(),
		"session":         session,
		"kind":            evt.Kind,
		"occurred_at_ms":  float64(evt.Timestamp.UnixMilli()),
		"payload_version": float64(PayloadVersion),
		"payload":         payloadValue(evt.Payload),
	})
}

// payloadValue flattens known bus payloads into structpb-compatible values.
func payloadValue(p any) any {
	switch v := p.(type) {
	case nil:
		return nil
	case bool, string:
		return v
	case int:
		return float64(v)
	case status.StatusChange:
		return map[string]any{"from": string(v.From), "to": string(v.To)}
	case state.ThumbnailEvent:
		return map[string]any{"photo_id": v.PhotoID, "mime_type": v.MIMEType, "size": float64(v.Size)}
	case state.MediaEvent:
		return map[string]any{
			"chat_id":    strconv.FormatInt(v.ChatID, 10),
			"message_id": float64(v.MessageID),
			"hash":       v.Hash,
			"size":       float64(v.Size),
		}
	case state.AuthProgress:
		return map[string]any{"stage": v.Stage, "phone": v.Phone, "error": v.Error}
	case *telegram.User:
		if v == nil {
			return nil
		}
		return userValue(v)
	case intsync.Result:
		return map[string]any{
			"chats":        float64(v.Chats),
			"scrape_tasks": float64(v.ScrapeTasks),
			"worker_tasks": float64(v.WorkerTasks),
			"took_ms":      float64(v.Took.Milliseconds()),
		}
	case error:
		return v.Error()
	default:
		return fmt.Sprint(v)
	}
}

// DecodeSnapshot reads a GetSnapshot response.
func DecodeSnapshot(s *structpb.Struct) SnapshotView {
	f := s.GetFields()
	v := SnapshotView{
		Session:       f["session"].GetStringValue(),
		Status:        f["status"].GetStringValue(),
		UptimeMs:      int64(f["uptime_ms"].GetNumberValue()),
		Connected:     f["connected"].GetBoolValue(),
		Authorized:    f["authorized"].GetBoolValue(),
		Thumbnails:    int(f["thumbnails"].GetNumberValue()),
		LastSyncChats: int(f["last_sync_chats"].GetNumberValue()),
	}
	if ms := f["last_sync_at_ms"].GetNumberValue(); ms > 0 {
		v.LastSyncAt = time.UnixMilli(int64(ms))
	}
	if self := f["self"].GetStructValue(); self != nil {
		sf := self.GetFields()
		v.Self = &UserView{
			ID:       parseID(sf["id"].GetStringValue()),
			Name:     sf["name"].GetStringValue(),
			Username: sf["username"].GetStringValue(),
			Phone:    sf["phone"].GetStringValue(),
		}
	}
	for _, item := range f["chats"].GetListValue().GetValues() {
		cf := item.GetStructValue().GetFields()
		v.Chats = append(v.Chats, ChatView{
			ID:           parseID(cf["id"].GetStringValue()),
			Name:         cf["name"].GetStringValue(),
			Self:         cf["self"].GetBoolValue(),
			Muted:        cf["muted"].GetBoolValue(),
			LastReadID:   int(cf["last_read_id"].GetNumberValue()),
			IconKind:     cf["icon_kind"].GetStringValue(),
			Handle:       cf["handle"].GetStringValue(),
			PhotoID:      cf["photo_id"].GetStringValue(),
			HasThumbnail: cf["has_thumbnail"].GetBoolValue(),
		})
	}
	return v
}

// DecodeEvent reads a Watch envelope.
func DecodeEvent(s *structpb.Struct) EventView {
	f := s.GetFields()
	return EventView{
		ID:         f["event_id"].GetStringValue(),
		Session:    f["session"].GetStringValue(),
		Kind:       f["kind"].GetStringValue(),
		OccurredAt: time.UnixMilli(int64(f["occurred_at_ms"].GetNumberValue())),
		Payload:    f["payload"].AsInterface(),
	}
}

func parseID(s string) int64 {
	id, _ := strconv.ParseInt(s, 10, 64)
	return id
}
