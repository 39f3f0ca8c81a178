package httpserver

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/and161185/ecoreport/internal/errs"
	"github.com/and161185/ecoreport/internal/model"
	"github.com/and161185/ecoreport/internal/service"
	"github.com/gofiber/fiber/v3"
)

type checkReportRequest struct {
	ImageURL string `json:"imageUrl"`
}

func (s *Server) createReport(c fiber.Ctx) error {
	p := sessionFrom(c)
	if p == nil {
		return errs.ErrUnauthorized
	}

	fh, err := c.FormFile("image")
	if err != nil {
		return fmt.Errorf("%w: image is required", errs.ErrValidation)
	}
	if fh.Size > s.reports.MaxBytes() {
		return errs.ErrPayloadTooLarge
	}
	lat, err := parseCoord(c.FormValue("latitude"), "latitude")
	if err != nil {
		return err
	}
	lng, err := parseCoord(c.FormValue("longitude"), "longitude")
	if err != nil {
		return err
	}

	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	r, err := s.reports.Create(c.Context(), p.UserID, service.ReportInput{
		Caption:     c.FormValue("caption"),
		Latitude:    lat,
		Longitude:   lng,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"report": r})
}

func (s *Server) listReports(c fiber.Ctx) error {
	p := sessionFrom(c)
	if p == nil {
		return errs.ErrUnauthorized
	}
	rs, err := s.reports.List(c.Context(), p.UserID)
	if err != nil {
		return err
	}
	if rs == nil {
		rs = []model.Report{}
	}
	return c.JSON(fiber.Map{"reports": rs})
}

func (s *Server) checkReport(c fiber.Ctx) error {
	var in checkReportRequest
	if err := bind(c, &in); err != nil {
		return err
	}
	ok, err := s.reports.Exists(c.Context(), in.ImageURL)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"exists": ok})
}

func parseCoord(raw, field string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s must be a number", errs.ErrValidation, field)
	}
	return v, nil
}
