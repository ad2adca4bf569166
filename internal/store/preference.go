package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// GetPreference returns the stored preference for chatID, or nil if absent.
func (db *DB) GetPreference(ctx context.Context, chatID int64) (*Preference, error) {
	raw, ok, err := db.Get(ctx, ChatPreferences, strconv.FormatInt(chatID, 10))
	if err != nil || !ok {
		return nil, err
	}
	var p Preference
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode preference %d: %w", chatID, err)
	}
	return &p, nil
}

// MergePreference read-merge-writes the preference for chatID. An existing
// ScrollAt is kept; Muted always takes the incoming value. The read and the
// write are separate calls, so concurrent mergers on one chat race and the
// last write wins.
func (db *DB) MergePreference(ctx context.Context, chatID int64, in Preference) (*Preference, error) {
	merged := in
	existing, err := db.GetPreference(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		merged.ScrollAt = existing.ScrollAt
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode preference %d: %w", chatID, err)
	}
	if err := db.Put(ctx, ChatPreferences, raw, strconv.FormatInt(chatID, 10)); err != nil {
		return nil, err
	}
	return &merged, nil
}
