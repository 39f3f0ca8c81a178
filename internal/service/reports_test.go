package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/and161185/ecoreport/internal/errs"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func validInput() ReportInput {
	return ReportInput{
		Caption:     "Illegal dumping near the river",
		Latitude:    55.75,
		Longitude:   37.61,
		Filename:    "photo.JPG",
		ContentType: "image/jpeg",
		Size:        4,
		Body:        body("jpeg"),
	}
}

func TestReportService_Create(t *testing.T) {
	reports, objects := newFakeReports(), newFakeObjects()
	s := NewReportService(reports, objects, 0, zaptest.NewLogger(t))
	s.now = func() time.Time { return time.Date(2025, 7, 9, 23, 0, 0, 0, time.UTC) }
	uid := uuid.Must(uuid.NewV4())

	r, err := s.Create(context.Background(), uid, validInput())
	require.NoError(t, err)
	require.Equal(t, uid, r.UserID)
	require.Regexp(t, regexp.MustCompile(`^reports/`+uid.String()+`/2025/07/09/[0-9a-f-]{36}\.jpg$`), r.ObjectKey)
	require.Equal(t, "https://cdn.example.com/"+r.ObjectKey, r.ImageURL)
	require.Equal(t, "jpeg", objects.put[r.ObjectKey])

	list, err := s.List(context.Background(), uid)
	require.NoError(t, err)
	require.Len(t, list, 1)

	ok, err := s.Exists(context.Background(), r.ImageURL)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Exists(context.Background(), "https://cdn.example.com/other.png")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.Exists(context.Background(), " ")
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestReportService_Validation(t *testing.T) {
	reports, objects := newFakeReports(), newFakeObjects()
	s := NewReportService(reports, objects, 8, zaptest.NewLogger(t))
	uid := uuid.Must(uuid.NewV4())

	cases := map[string]struct {
		mut  func(*ReportInput)
		want error
	}{
		"no caption":    {func(in *ReportInput) { in.Caption = "" }, errs.ErrValidation},
		"lat high":      {func(in *ReportInput) { in.Latitude = 90.5 }, errs.ErrValidation},
		"lng low":       {func(in *ReportInput) { in.Longitude = -181 }, errs.ErrValidation},
		"lat NaN":       {func(in *ReportInput) { in.Latitude = math.NaN() }, errs.ErrValidation},
		"lng NaN":       {func(in *ReportInput) { in.Longitude = math.NaN() }, errs.ErrValidation},
		"lat +Inf":      {func(in *ReportInput) { in.Latitude = math.Inf(1) }, errs.ErrValidation},
		"lng -Inf":      {func(in *ReportInput) { in.Longitude = math.Inf(-1) }, errs.ErrValidation},
		"no image":      {func(in *ReportInput) { in.Body = nil }, errs.ErrValidation},
		"not an image":  {func(in *ReportInput) { in.ContentType = "application/pdf" }, errs.ErrValidation},
		"too large":     {func(in *ReportInput) { in.Size = 9 }, errs.ErrPayloadTooLarge},
		"bad mime type": {func(in *ReportInput) { in.ContentType = ";;" }, errs.ErrValidation},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			tc.mut(&in)
			_, err := s.Create(context.Background(), uid, in)
			require.ErrorIs(t, err, tc.want)
		})
	}
	require.Empty(t, objects.put)
	require.Empty(t, reports.byURL)
}

func TestReportService_NonFiniteCoordsNeverStored(t *testing.T) {
	reports, objects := newFakeReports(), newFakeObjects()
	s := NewReportService(reports, objects, 0, zaptest.NewLogger(t))
	uid := uuid.Must(uuid.NewV4())

	in := validInput()
	in.Latitude = math.NaN()
	_, err := s.Create(context.Background(), uid, in)
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = s.Create(context.Background(), uid, validInput())
	require.NoError(t, err)

	list, err := s.List(context.Background(), uid)
	require.NoError(t, err)
	require.Len(t, list, 1)
	_, err = json.Marshal(list)
	require.NoError(t, err)
}

func TestReportService_StoreFailureRemovesObject(t *testing.T) {
	reports, objects := newFakeReports(), newFakeObjects()
	reports.saveErr = errs.ErrAlreadyExists
	s := NewReportService(reports, objects, 0, zaptest.NewLogger(t))

	_, err := s.Create(context.Background(), uuid.Must(uuid.NewV4()), validInput())
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
	require.Len(t, objects.deleted, 1)
	require.Empty(t, objects.put)
}

func TestReportService_UploadFailure(t *testing.T) {
	objects := newFakeObjects()
	objects.putErr = errors.New("s3 down")
	s := NewReportService(newFakeReports(), objects, 0, zaptest.NewLogger(t))

	_, err := s.Create(context.Background(), uuid.Must(uuid.NewV4()), validInput())
	require.Error(t, err)
}

func TestImageExt(t *testing.T) {
	require.Equal(t, ".png", imageExt("a.PNG", "image/png"))
	require.Equal(t, ".gif", imageExt("noext", "image/gif"))
	require.Equal(t, "", imageExt("", "image/x-unknown-kind"))
}
