package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/ecoreport/internal/errs"
	"github.com/and161185/ecoreport/internal/model"
	"github.com/gofrs/uuid/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type reportDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"userId"`
	ImageURL  string    `bson:"imageUrl"`
	ObjectKey string    `bson:"objectKey"`
	Caption   string    `bson:"caption"`
	Latitude  float64   `bson:"latitude"`
	Longitude float64   `bson:"longitude"`
	CreatedAt time.Time `bson:"createdAt"`
}

// ReportRepo implements ReportRepository on a MongoDB collection.
type ReportRepo struct{ s *Store }

// NewReportRepo constructs a report repository.
func NewReportRepo(s *Store) *ReportRepo { return &ReportRepo{s: s} }

// Create inserts a report document.
func (r *ReportRepo) Create(ctx context.Context, rep *model.Report) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	rep.CreatedAt = now()
	doc := reportDoc{
		ID:        rep.ID.String(),
		UserID:    rep.UserID.String(),
		ImageURL:  rep.ImageURL,
		ObjectKey: rep.ObjectKey,
		Caption:   rep.Caption,
		Latitude:  rep.Latitude,
		Longitude: rep.Longitude,
		CreatedAt: rep.CreatedAt,
	}
	if _, err := r.s.reports.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errs.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// ListByUser returns the user's reports, newest first.
func (r *ReportRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Report, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	cur, err := r.s.reports.Find(ctx, bson.M{"userId": userID.String()},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []reportDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]model.Report, 0, len(docs))
	for _, d := range docs {
		id, err := uuid.FromString(d.ID)
		if err != nil {
			return nil, fmt.Errorf("report %q: bad id: %w", d.ID, err)
		}
		out = append(out, model.Report{
			ID:        id,
			UserID:    userID,
			ImageURL:  d.ImageURL,
			ObjectKey: d.ObjectKey,
			Caption:   d.Caption,
			Latitude:  d.Latitude,
			Longitude: d.Longitude,
			CreatedAt: d.CreatedAt,
		})
	}
	return out, nil
}

// ExistsByURL reports whether imageURL is already stored.
func (r *ReportRepo) ExistsByURL(ctx context.Context, imageURL string) (bool, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	n, err := r.s.reports.CountDocuments(ctx, bson.M{"imageUrl": imageURL}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
