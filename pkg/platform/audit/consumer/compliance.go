// Package consumer materializes relayed ledger entries into the
// long-retention compliance table.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	id "sanctum/pkg/domain"
	"sanctum/pkg/platform/audit"
)

// Store is the compliance write half of the postgres ledger store.
type Store interface {
	AppendCompliance(ctx context.Context, entry audit.Entry) error
}

// Handler decodes relayed entries and writes compliance copies. Plugged into
// the platform Kafka consumer loop.
type Handler struct {
	store  Store
	logger *slog.Logger
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// Handle processes one relayed message. Malformed messages are logged and
// committed so they cannot wedge the partition; store failures return an
// error so the offset is redelivered. Materialization is idempotent on entry
// ID, so redelivery cannot double up.
func (h *Handler) Handle(ctx context.Context, key, value []byte) error {
	entryID, err := uuid.Parse(string(key))
	if err != nil {
		h.logger.ErrorContext(ctx, "CRITICAL: relayed audit message has a malformed key",
			"key", string(key),
			"error", err,
		)
		return nil
	}

	var entry audit.Entry
	if err := json.Unmarshal(value, &entry); err != nil {
		h.logger.ErrorContext(ctx, "CRITICAL: relayed audit payload failed to decode",
			"entry_id", entryID,
			"error", err,
		)
		return nil
	}
	if entry.ID.IsNil() {
		entry.ID = id.EntryID(entryID)
	}
	if err := entry.Validate(); err != nil {
		h.logger.ErrorContext(ctx, "CRITICAL: relayed audit entry is invalid",
			"entry_id", entryID,
			"error", err,
		)
		return nil
	}

	if err := h.store.AppendCompliance(ctx, entry); err != nil {
		return fmt.Errorf("materialize compliance entry: %w", err)
	}

	h.logger.DebugContext(ctx, "materialized compliance entry",
		"entry_id", entry.ID,
		"event_type", entry.EventType,
	)
	return nil
}
