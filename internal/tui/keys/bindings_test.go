package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestViewBindingsShadowGlobal(t *testing.T) {
	r := NewRegistry()
	var got []string
	r.AddGlobal(&Action{Name: "quit", Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = append(got, "quit") }})
	r.AddGlobal(&Action{Name: "back", Key: tcell.KeyEscape, Handler: func() { got = append(got, "back") }})
	r.AddView("login", &Action{Name: "cancel", Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = append(got, "cancel") }})

	if !r.Handle("chats", tcell.KeyRune, 'q') || !r.Handle("login", tcell.KeyRune, 'q') {
		t.Fatal("q was not handled")
	}
	if !r.Handle("login", tcell.KeyEscape, 0) {
		t.Fatal("Esc was not handled")
	}
	if r.Handle("chats", tcell.KeyRune, 'x') {
		t.Error("unbound key was handled")
	}

	want := []string{"quit", "cancel", "back"}
	if len(got) != len(want) {
		t.Fatalf("handled = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("handled[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
