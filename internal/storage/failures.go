package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// LastFailureKey is the well-known slot the UI polls after a failed start.
const LastFailureKey = "devserver:last-error"

// FailureRecord is a persisted, classified dev server failure.
type FailureRecord struct {
	ProjectID       string    `json:"projectId"`
	Kind            string    `json:"kind"`
	UserMessage     string    `json:"userMessage"`
	SuggestedAction string    `json:"suggestedAction"`
	Raw             string    `json:"raw"`
	At              time.Time `json:"at"`
}

// FailureSlot reads and writes the last failure record.
type FailureSlot struct {
	store Store
}

// NewFailureSlot wraps store.
func NewFailureSlot(store Store) *FailureSlot {
	return &FailureSlot{store: store}
}

// Save overwrites the slot.
func (f *FailureSlot) Save(ctx context.Context, rec FailureRecord) error {
	data, err := sonic.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode failure record: %w", err)
	}
	return f.store.Set(ctx, LastFailureKey, string(data))
}

// Load returns the current record, if any.
func (f *FailureSlot) Load(ctx context.Context) (*FailureRecord, error) {
	raw, ok, err := f.store.Get(ctx, LastFailureKey)
	if err != nil || !ok {
		return nil, err
	}
	var rec FailureRecord
	if err := sonic.UnmarshalString(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode failure record: %w", err)
	}
	return &rec, nil
}

// Clear empties the slot.
func (f *FailureSlot) Clear(ctx context.Context) error {
	return f.store.Delete(ctx, LastFailureKey)
}
