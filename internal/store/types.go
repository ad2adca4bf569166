package store

import (
	"encoding/base64"
	"errors"
)

// Store names one logical key/value store inside the cache.
type Store string

const (
	// ProfilePhotos maps a photo identity to an encoded image payload.
	ProfilePhotos Store = "profilePhotos"
	// ChatPreferences maps a chat identity to a Preference record.
	ChatPreferences Store = "chatPreferences"
)

// ErrUnknownStore is returned for a store name outside the closed set.
var ErrUnknownStore = errors.New("unknown cache store")

var tables = map[Store]string{
	ProfilePhotos:   "profile_photos",
	ChatPreferences: "chat_preferences",
}

func tableFor(s Store) (string, error) {
	t, ok := tables[s]
	if !ok {
		return "", ErrUnknownStore
	}
	return t, nil
}

// Photo is a cached profile image.
type Photo struct {
	ID       string
	MIMEType string
	Data     []byte
}

// DataURI returns the payload as a data: URI suitable for direct embedding.
func (p *Photo) DataURI() string {
	mime := p.MIMEType
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

// Preference is the persisted per-chat record.
type Preference struct {
	Muted    bool `json:"muted"`
	ScrollAt int  `json:"scrollAt"`
}
