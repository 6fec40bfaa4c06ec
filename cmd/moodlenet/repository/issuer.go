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

// IssuerRepository handles database operations for OAuth 2 issuers
type IssuerRepository struct {
	db *db.DB
}

// NewIssuerRepository creates a new issuer repository
func NewIssuerRepository(database *db.DB) *IssuerRepository {
	return &IssuerRepository{db: database}
}

// GetByID retrieves an issuer by its ID
func (r *IssuerRepository) GetByID(ctx context.Context, id int64) (*models.Issuer, error) {
	query := `
		SELECT id, name, baseurl, clientid, clientsecret,
		       authorizationendpoint, tokenendpoint, enabled, servicetype
		FROM oauth2_issuer
		WHERE id = $1
	`

	issuer := &models.Issuer{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&issuer.ID,
		&issuer.Name,
		&issuer.BaseURL,
		&issuer.ClientID,
		&issuer.ClientSecret,
		&issuer.AuthorizationEndpoint,
		&issuer.TokenEndpoint,
		&issuer.Enabled,
		&issuer.ServiceType,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issuer: %w", err)
	}

	return issuer, nil
}
