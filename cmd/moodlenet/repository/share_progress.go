package repository

import (
	"context"
	"fmt"

	"github.com/HuongNV13/moodle/common/db"
	"github.com/HuongNV13/moodle/common/models"
)

// ShareProgressRepository handles database operations for share audit records
type ShareProgressRepository struct {
	db *db.DB
}

// NewShareProgressRepository creates a new share progress repository
func NewShareProgressRepository(database *db.DB) *ShareProgressRepository {
	return &ShareProgressRepository{db: database}
}

// Insert records the start of a share attempt and returns the new record id
func (r *ShareProgressRepository) Insert(ctx context.Context, share *models.ShareProgress) (int64, error) {
	query := `
		INSERT INTO moodlenet_share_progress (userid, type, courseid, cmid, resourceurl, status, timecreated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRow(
		ctx,
		query,
		share.UserID,
		share.Type,
		share.CourseID,
		share.CMID,
		share.ResourceURL,
		share.Status,
		share.TimeCreated,
	).Scan(&id)

	if err != nil {
		return 0, fmt.Errorf("failed to insert share progress: %w", err)
	}

	return id, nil
}

// UpdateOutcome sets the terminal status and resource URL of a share attempt.
// Terminal records are never mutated again.
func (r *ShareProgressRepository) UpdateOutcome(ctx context.Context, id int64, status models.ShareStatus, resourceURL string) error {
	query := `
		UPDATE moodlenet_share_progress
		SET status = $2, resourceurl = $3
		WHERE id = $1 AND status = $4
	`

	_, err := r.db.Exec(ctx, query, id, status, resourceURL, models.ShareStatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to update share progress: %w", err)
	}

	return nil
}

// CountByUser returns the number of share attempts recorded for a user
func (r *ShareProgressRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM moodlenet_share_progress
		WHERE userid = $1
	`

	var count int64
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count share progress: %w", err)
	}

	return count, nil
}

// ListByUser retrieves a page of share attempts for a user, most significant
// status first, newest first within a status
func (r *ShareProgressRepository) ListByUser(ctx context.Context, userID int64, offset, limit int) ([]*models.ShareProgress, error) {
	query := `
		SELECT id, userid, type, courseid, cmid, resourceurl, status, timecreated
		FROM moodlenet_share_progress
		WHERE userid = $1
		ORDER BY status DESC, timecreated DESC
		OFFSET $2 LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, userID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list share progress: %w", err)
	}
	defer rows.Close()

	var shares []*models.ShareProgress
	for rows.Next() {
		share := &models.ShareProgress{}
		err := rows.Scan(
			&share.ID,
			&share.UserID,
			&share.Type,
			&share.CourseID,
			&share.CMID,
			&share.ResourceURL,
			&share.Status,
			&share.TimeCreated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan share progress: %w", err)
		}
		shares = append(shares, share)
	}

	return shares, rows.Err()
}
