package repository

import (
	"context"
	"fmt"

	"github.com/HuongNV13/moodle/common/db"
	"github.com/HuongNV13/moodle/common/models"
)

// SyncQueueRepository handles database operations for the outbound sync queue
type SyncQueueRepository struct {
	db *db.DB
}

// NewSyncQueueRepository creates a new sync queue repository
func NewSyncQueueRepository(database *db.DB) *SyncQueueRepository {
	return &SyncQueueRepository{db: database}
}

// Enqueue inserts a new sync entry and returns its id
func (r *SyncQueueRepository) Enqueue(ctx context.Context, entry *models.SyncEntry) (int64, error) {
	query := `
		INSERT INTO communication_sync (type, roomid, customdata, timecreated)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRow(ctx, query, entry.Type, entry.RoomID, entry.CustomData, entry.TimeCreated).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue sync entry: %w", err)
	}

	return id, nil
}

// ListByType retrieves all queued entries of one type, oldest first
func (r *SyncQueueRepository) ListByType(ctx context.Context, syncType models.SyncType) ([]*models.SyncEntry, error) {
	query := `
		SELECT id, type, roomid, customdata, timecreated
		FROM communication_sync
		WHERE type = $1
		ORDER BY timecreated, id
	`

	rows, err := r.db.Query(ctx, query, syncType)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.SyncEntry
	for rows.Next() {
		entry := &models.SyncEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.Type,
			&entry.RoomID,
			&entry.CustomData,
			&entry.TimeCreated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Delete removes a sync entry once it has been dispatched
func (r *SyncQueueRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM communication_sync WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete sync entry: %w", err)
	}

	return nil
}
