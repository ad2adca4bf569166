// Package telegram is the boundary to the remote protocol client. Everything
// past this package works with the value types in types.go; gotd types never
// leak out.
package telegram

import "context"

// Client is the protocol capability consumed by the daemon and its workers.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsAuthorized(ctx context.Context) (bool, error)
	SelfUser(ctx context.Context) (*User, error)
	Dialogs(ctx context.Context, opts DialogOptions) ([]Dialog, error)
	Messages(ctx context.Context, chatID int64, ids ...int) ([]Message, error)
	DownloadMedia(ctx context.Context, ref *MediaRef) ([]byte, error)
	DownloadProfilePhoto(ctx context.Context, peerID int64, opts PhotoOptions) ([]byte, error)

	// SendCode and SignIn drive the phone-code login.
	SendCode(ctx context.Context, phone string) error
	SignIn(ctx context.Context, phone, code, password string) (*User, error)

	// Session exports the current session; Restore replaces it and reconnects.
	Session(ctx context.Context) (SessionData, error)
	Restore(ctx context.Context, s SessionData) error

	OnEvent(fn func(Event))
}

// Factory builds a fresh client seeded with the given session.
type Factory func(s SessionData) (Client, error)
