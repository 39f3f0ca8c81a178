package repository

import (
	"context"

	"github.com/and161185/ecoreport/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ReportRepository stores submitted image reports.
type ReportRepository interface {
	// Create inserts a report. Returns errs.ErrAlreadyExists on duplicate image URL.
	Create(ctx context.Context, r *model.Report) error
	// ListByUser returns a user's reports, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Report, error)
	// ExistsByURL reports whether an image URL is already stored.
	ExistsByURL(ctx context.Context, imageURL string) (bool, error)
}
