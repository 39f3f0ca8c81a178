package postgres

import (
	"context"

	"github.com/and161185/ecoreport/internal/errs"
	"github.com/and161185/ecoreport/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ReportRepo implements ReportRepository using PostgreSQL.
type ReportRepo struct{ db *DB }

// NewReportRepo constructs a report repository.
func NewReportRepo(db *DB) *ReportRepo { return &ReportRepo{db: db} }

// Create inserts a report row.
func (r *ReportRepo) Create(ctx context.Context, rep *model.Report) error {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	const q = `
INSERT INTO reports (id, user_id, image_url, object_key, caption, latitude, longitude)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q,
		rep.ID, rep.UserID, rep.ImageURL, rep.ObjectKey, rep.Caption, rep.Latitude, rep.Longitude,
	).Scan(&rep.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// ListByUser returns the user's reports, newest first.
func (r *ReportRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Report, error) {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	const q = `
SELECT id, user_id, image_url, object_key, caption, latitude, longitude, created_at
FROM reports
WHERE user_id=$1
ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Report
	for rows.Next() {
		var rep model.Report
		if err = rows.Scan(&rep.ID, &rep.UserID, &rep.ImageURL, &rep.ObjectKey, &rep.Caption,
			&rep.Latitude, &rep.Longitude, &rep.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

// ExistsByURL reports whether image_url is already stored.
func (r *ReportRepo) ExistsByURL(ctx context.Context, imageURL string) (bool, error) {
	ctx, cancel := r.db.opCtx(ctx)
	defer cancel()

	const q = `SELECT EXISTS (SELECT 1 FROM reports WHERE image_url=$1)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, imageURL).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}
