package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/HuongNV13/moodle/common/db"
	"github.com/HuongNV13/moodle/common/models"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// RoomRepository handles database operations for shared rooms
type RoomRepository struct {
	db *db.DB
}

// NewRoomRepository creates a new room repository
func NewRoomRepository(database *db.DB) *RoomRepository {
	return &RoomRepository{db: database}
}

// GetByID retrieves a room by its local id
func (r *RoomRepository) GetByID(ctx context.Context, id int64) (*models.Room, error) {
	query := `
		SELECT id, externalid, config
		FROM communication_room
		WHERE id = $1
	`

	room := &models.Room{}
	err := r.db.QueryRow(ctx, query, id).Scan(&room.ID, &room.ExternalID, &room.Config)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	return room, nil
}

// SetExternalID stores the remote identifier assigned when a room is created
func (r *RoomRepository) SetExternalID(ctx context.Context, id int64, externalID string) error {
	query := `UPDATE communication_room SET externalid = $2 WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id, externalID); err != nil {
		return fmt.Errorf("failed to set room external id: %w", err)
	}

	return nil
}

// UpdateConfig replaces the stored room configuration document
func (r *RoomRepository) UpdateConfig(ctx context.Context, id int64, config []byte) error {
	query := `UPDATE communication_room SET config = $2 WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id, config); err != nil {
		return fmt.Errorf("failed to update room config: %w", err)
	}

	return nil
}

// Delete removes a room record after the remote side confirmed deletion
func (r *RoomRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM communication_room WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}

	return nil
}
