package service

import (
	"context"
	"fmt"
	"io"
	"math"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/and161185/ecoreport/internal/errs"
	"github.com/and161185/ecoreport/internal/model"
	"github.com/and161185/ecoreport/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// DefaultMaxImageBytes bounds a single report image.
const DefaultMaxImageBytes = 10 << 20

// ObjectStore stores report images.
type ObjectStore interface {
	// Put uploads body under key and returns its public URL.
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// ReportInput carries a new report and its image.
type ReportInput struct {
	Caption     string
	Latitude    float64
	Longitude   float64
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type ReportService struct {
	reports  repository.ReportRepository
	objects  ObjectStore
	maxBytes int64
	log      *zap.Logger
	now      func() time.Time
}

func NewReportService(reports repository.ReportRepository, objects ObjectStore, maxBytes int64, log *zap.Logger) *ReportService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &ReportService{reports: reports, objects: objects, maxBytes: maxBytes, log: log, now: time.Now}
}

// MaxBytes returns the image size limit.
func (s *ReportService) MaxBytes() int64 { return s.maxBytes }

// Create validates in, uploads the image and stores the report.
// If storing the report fails the uploaded object is removed.
func (s *ReportService) Create(ctx context.Context, userID uuid.UUID, in ReportInput) (*model.Report, error) {
	if err := validateReport(in, s.maxBytes); err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	key := objectKey(userID, id, s.now().UTC(), imageExt(in.Filename, in.ContentType))

	url, err := s.objects.Put(ctx, key, in.ContentType, in.Body, in.Size)
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}

	r := &model.Report{
		ID:        id,
		UserID:    userID,
		ImageURL:  url,
		ObjectKey: key,
		Caption:   strings.TrimSpace(in.Caption),
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
	}
	if err := s.reports.Create(ctx, r); err != nil {
		if derr := s.objects.Delete(ctx, key); derr != nil {
			s.log.Warn("orphan report image", zap.String("key", key), zap.Error(derr))
		}
		return nil, err
	}
	s.log.Info("report created", zap.String("report_id", id.String()), zap.String("user_id", userID.String()))
	return r, nil
}

// List returns the user's reports, newest first.
func (s *ReportService) List(ctx context.Context, userID uuid.UUID) ([]model.Report, error) {
	return s.reports.ListByUser(ctx, userID)
}

// Exists reports whether imageURL belongs to an already submitted report.
func (s *ReportService) Exists(ctx context.Context, imageURL string) (bool, error) {
	if err := required("imageUrl", imageURL); err != nil {
		return false, err
	}
	return s.reports.ExistsByURL(ctx, strings.TrimSpace(imageURL))
}

func validateReport(in ReportInput, maxBytes int64) error {
	if err := required("caption", in.Caption); err != nil {
		return err
	}
	if !within(in.Latitude, 90) {
		return fmt.Errorf("%w: latitude out of range", errs.ErrValidation)
	}
	if !within(in.Longitude, 180) {
		return fmt.Errorf("%w: longitude out of range", errs.ErrValidation)
	}
	if in.Body == nil || in.Size <= 0 {
		return fmt.Errorf("%w: image is required", errs.ErrValidation)
	}
	if in.Size > maxBytes {
		return errs.ErrPayloadTooLarge
	}
	mt, _, err := mime.ParseMediaType(in.ContentType)
	if err != nil || !strings.HasPrefix(mt, "image/") {
		return fmt.Errorf("%w: image content type required", errs.ErrValidation)
	}
	return nil
}

// within reports whether v lies in [-limit, limit]. NaN is never within.
func within(v, limit float64) bool {
	return !math.IsNaN(v) && v >= -limit && v <= limit
}

// objectKey lays out images as reports/<user>/<yyyy>/<mm>/<dd>/<id><ext>.
func objectKey(userID, id uuid.UUID, t time.Time, ext string) string {
	return fmt.Sprintf("reports/%s/%04d/%02d/%02d/%s%s", userID, t.Year(), t.Month(), t.Day(), id, ext)
}

func imageExt(filename, contentType string) string {
	if ext := strings.ToLower(path.Ext(filename)); ext != "" && len(ext) <= 6 {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
