package state

import (
	"testing"
	"time"

	"github.com/matheus3301/tgchats/internal/bus"
	"github.com/matheus3301/tgchats/internal/chat"
	"github.com/matheus3301/tgchats/internal/store"
	"github.com/matheus3301/tgchats/internal/telegram"
)

func next(t *testing.T, ch <-chan bus.Event) bus.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return bus.Event{}
	}
}

func TestMutationsPublish(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("state.", 10)
	defer unsub()
	s := New(b)

	s.SetConnected(true)
	if evt := next(t, ch); evt.Kind != bus.KindConnectivity || evt.Payload != true {
		t.Errorf("event = %+v", evt)
	}

	// Unchanged values are not re-announced.
	s.SetConnected(true)
	s.SetAuthorized(true)
	if evt := next(t, ch); evt.Kind != bus.KindAuthorization {
		t.Errorf("event = %+v, want authorization", evt)
	}

	s.SetChats([]chat.Chat{{ID: 1}, {ID: 2}})
	if evt := next(t, ch); evt.Kind != bus.KindChats || evt.Payload != 2 {
		t.Errorf("event = %+v", evt)
	}

	s.ThumbnailUpdated("9", &store.Photo{ID: "9", MIMEType: "image/jpeg", Data: []byte("abc")})
	evt := next(t, ch)
	te, ok := evt.Payload.(ThumbnailEvent)
	if !ok || te.PhotoID != "9" || te.Size != 3 {
		t.Errorf("thumbnail event = %+v", evt)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := New(bus.New())
	s.SetSelf(&telegram.User{ID: 1, FirstName: "Me"})
	s.SetChats([]chat.Chat{{ID: 1, Name: "Saved Messages"}})
	s.LoadThumbnails([]store.Photo{{ID: "5", Data: []byte("x")}})

	snap := s.Snapshot()
	snap.Chats[0].Name = "mutated"
	snap.Self.FirstName = "mutated"
	delete(snap.Thumbnails, "5")

	if got := s.Chats()[0].Name; got != "Saved Messages" {
		t.Errorf("chat name = %q, snapshot leaked into store", got)
	}
	if got := s.Snapshot().Self.FirstName; got != "Me" {
		t.Errorf("self = %q, snapshot leaked into store", got)
	}
	if _, ok := s.Thumbnail("5"); !ok {
		t.Error("thumbnail removed through snapshot")
	}
}

func TestMediaAndAuthEvents(t *testing.T) {
	b := bus.New()
	media, unsubMedia := b.Subscribe("media.", 1)
	defer unsubMedia()
	sess, unsubSess := b.Subscribe("session.", 1)
	defer unsubSess()
	s := New(b)

	s.MediaDownloaded(-5, 11, "-5:11", []byte("data"))
	if me, ok := next(t, media).Payload.(MediaEvent); !ok || me.Hash != "-5:11" || me.Size != 4 {
		t.Errorf("media event = %+v", me)
	}

	s.AuthProgress(AuthProgress{Stage: "code_sent", Phone: "+1"})
	if ap, ok := next(t, sess).Payload.(AuthProgress); !ok || ap.Stage != "code_sent" {
		t.Errorf("auth event = %+v", ap)
	}
}
