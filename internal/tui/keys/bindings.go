package keys

import "github.com/gdamore/tcell/v2"

// Action represents a keybinding action.
type Action struct {
	Name        string
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func()
}

// Matches returns true if the key (and rune, for KeyRune) selects this
// action.
func (a *Action) Matches(key tcell.Key, r rune) bool {
	if a.Key != tcell.KeyRune {
		return key == a.Key
	}
	return key == tcell.KeyRune && r == a.Rune
}

// Registry holds keybindings organized by scope. Bindings are matched in
// registration order, view bindings before global ones.
type Registry struct {
	global []*Action
	views  map[string][]*Action
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{views: make(map[string][]*Action)}
}

// AddGlobal registers a binding active on every page.
func (r *Registry) AddGlobal(action *Action) {
	r.global = append(r.global, action)
}

// AddView registers a binding for one page.
func (r *Registry) AddView(view string, action *Action) {
	r.views[view] = append(r.views[view], action)
}

// HandleEvent dispatches a key event to the first matching action for the
// given view. Returns true if a handler ran.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	return r.Handle(view, ev.Key(), ev.Rune())
}

// Handle is HandleEvent for an already decoded key.
func (r *Registry) Handle(view string, key tcell.Key, ch rune) bool {
	for _, a := range r.views[view] {
		if a.Matches(key, ch) {
			a.Handler()
			return true
		}
	}
	for _, a := range r.global {
		if a.Matches(key, ch) {
			a.Handler()
			return true
		}
	}
	return false
}
