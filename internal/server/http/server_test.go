package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/and161185/ecoreport/internal/cache"
	"github.com/and161185/ecoreport/internal/errs"
	"github.com/and161185/ecoreport/internal/model"
	"github.com/and161185/ecoreport/internal/service"
	"github.com/and161185/ecoreport/internal/session"
	"github.com/and161185/ecoreport/internal/token"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeAuth struct {
	registerIn  service.RegisterInput
	registerErr error

	loginIP  string
	loginRes service.LoginResult
	loginErr error

	changeToken string
	changeIn    service.ChangePasswordInput
	changeErr   error

	forgotErr error
	resetErr  error
}

func (f *fakeAuth) Register(_ context.Context, in service.RegisterInput) (uuid.UUID, error) {
	f.registerIn = in
	if f.registerErr != nil {
		return uuid.Nil, f.registerErr
	}
	return uuid.FromStringOrNil("7f1c8a2e-51f4-4c1b-9a57-2f0e1d4c9b10"), nil
}

func (f *fakeAuth) Login(_ context.Context, _, _, ip string) (service.LoginResult, error) {
	f.loginIP = ip
	return f.loginRes, f.loginErr
}

func (f *fakeAuth) ChangePassword(_ context.Context, tok string, in service.ChangePasswordInput) error {
	f.changeToken, f.changeIn = tok, in
	return f.changeErr
}

func (f *fakeAuth) ForgotPassword(context.Context, string) error { return f.forgotErr }

func (f *fakeAuth) ResetPassword(context.Context, string, string) error { return f.resetErr }

type fakeSessions struct {
	byToken   map[string]*model.Projection
	lastUpd   session.ProfileUpdate
	updateErr error
}

func (f *fakeSessions) Resolve(_ context.Context, tok string) (*model.Projection, error) {
	p, ok := f.byToken[tok]
	if !ok {
		return nil, errs.ErrSessionExpired
	}
	return p, nil
}

func (f *fakeSessions) UpdateProfile(_ context.Context, tok string, upd session.ProfileUpdate) (*model.Projection, error) {
	f.lastUpd = upd
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	p, ok := f.byToken[tok]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *p
	if upd.Phone != nil {
		cp.Phone = *upd.Phone
	}
	if upd.Name != nil {
		cp.Name = *upd.Name
	}
	return &cp, nil
}

type fakeReports struct {
	created []service.ReportInput
	body    string
	list    []model.Report
	exists  bool
	err     error
}

func (f *fakeReports) Create(_ context.Context, uid uuid.UUID, in service.ReportInput) (*model.Report, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	f.created = append(f.created, in)
	return &model.Report{ID: uuid.Must(uuid.NewV4()), UserID: uid, ImageURL: "https://cdn/x.jpg", Caption: in.Caption}, nil
}

func (f *fakeReports) List(context.Context, uuid.UUID) ([]model.Report, error) { return f.list, f.err }

func (f *fakeReports) Exists(context.Context, string) (bool, error) { return f.exists, f.err }

func (f *fakeReports) MaxBytes() int64 { return 16 }

type fixedState cache.State

func (s fixedState) State() cache.State { return cache.State(s) }

type harness struct {
	srv      *Server
	auth     *fakeAuth
	sessions *fakeSessions
	reports  *fakeReports
	proj     *model.Projection
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	proj := &model.Projection{
		Name:      "Ann",
		Email:     "ann@example.com",
		Phone:     "111",
		UserID:    uuid.Must(uuid.NewV4()),
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	h := &harness{
		auth:     &fakeAuth{},
		sessions: &fakeSessions{byToken: map[string]*model.Projection{"good": proj}},
		reports:  &fakeReports{},
		proj:     proj,
	}
	h.srv = New(h.auth, h.sessions, h.reports, fixedState(cache.StateConnected), zaptest.NewLogger(t))
	return h
}

func (h *harness) do(t *testing.T, req *http.Request) (int, map[string]any, http.Header) {
	t.Helper()
	resp, err := h.srv.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	}
	return resp.StatusCode, body, resp.Header
}

func jsonReq(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRegister(t *testing.T) {
	h := newHarness(t)

	code, body, _ := h.do(t, jsonReq(http.MethodPost, "/register",
		`{"name":"Ann","email":"ann@example.com","phone":"111","password":"secret1"}`))
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, "7f1c8a2e-51f4-4c1b-9a57-2f0e1d4c9b10", body["userId"])
	require.Equal(t, "ann@example.com", h.auth.registerIn.Email)

	h.auth.registerErr = errs.ErrAlreadyExists
	code, body, _ = h.do(t, jsonReq(http.MethodPost, "/register", `{"name":"Ann"}`))
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "CONFLICT", body["code"])

	code, body, _ = h.do(t, jsonReq(http.MethodPost, "/register", `{not json`))
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "VALIDATION_ERROR", body["code"])
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	h.auth.loginRes = service.LoginResult{
		Token: "tok",
		User:  model.PublicProfile{UserID: h.proj.UserID, Name: "Ann", Email: "ann@example.com", Phone: "111"},
	}

	code, body, _ := h.do(t, jsonReq(http.MethodPost, "/login", `{"email":"ann@example.com","password":"secret1"}`))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "tok", body["token"])
	user := body["user"].(map[string]any)
	require.Equal(t, h.proj.UserID.String(), user["userid"])

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{errs.ErrUserNotFound, http.StatusBadRequest, "INVALID_CREDENTIALS"},
		{errs.ErrInvalidCredentials, http.StatusBadRequest, "INVALID_CREDENTIALS"},
		{errs.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
		{fmt.Errorf("%w: email is required", errs.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{fmt.Errorf("establish session: %w", io.ErrUnexpectedEOF), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		h.auth.loginErr = tc.err
		code, body, _ := h.do(t, jsonReq(http.MethodPost, "/login", `{"email":"a@x.com","password":"p"}`))
		require.Equal(t, tc.status, code, tc.err.Error())
		require.Equal(t, tc.code, body["code"])
	}
}

func TestLogin_InternalErrorHidesDetail(t *testing.T) {
	h := newHarness(t)
	h.auth.loginErr = errors.New("dial tcp 10.0.0.5:5432: connection refused")

	code, body, _ := h.do(t, jsonReq(http.MethodPost, "/login", `{"email":"a@x.com","password":"p"}`))
	require.Equal(t, http.StatusInternalServerError, code)
	require.Equal(t, "internal error", body["error"])
}

func TestUserFromSession(t *testing.T) {
	h := newHarness(t)

	code, body, hdr := h.do(t, httptest.NewRequest(http.MethodGet, "/userfromsession/good", nil))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "111", body["user"].(map[string]any)["phone"])
	etag := hdr.Get("ETag")
	require.Equal(t, `"`+token.Digest(h.proj)+`"`, etag)

	req := httptest.NewRequest(http.MethodGet, "/userfromsession/good", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err := h.srv.App().Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotModified, resp.StatusCode)

	code, body, _ = h.do(t, httptest.NewRequest(http.MethodGet, "/userfromsession/expired", nil))
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "SESSION_EXPIRED", body["code"])
}

func TestUpdateProfile(t *testing.T) {
	h := newHarness(t)

	code, body, _ := h.do(t, jsonReq(http.MethodPut, "/updateprofile", `{"token":"good","phone":"222"}`))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "222", body["user"].(map[string]any)["phone"])
	require.Nil(t, h.sessions.lastUpd.Name)

	code, body, _ = h.do(t, jsonReq(http.MethodPut, "/updateprofile", `{"token":"unknown","phone":"222"}`))
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "NOT_FOUND", body["code"])

	h.sessions.updateErr = errs.ErrSessionExpired
	code, _, _ = h.do(t, jsonReq(http.MethodPut, "/updateprofile", `{"token":"good","phone":"333"}`))
	require.Equal(t, http.StatusUnauthorized, code)
}

func TestChangePassword_TokenSources(t *testing.T) {
	h := newHarness(t)

	req := jsonReq(http.MethodPost, "/password/change", `{"token":"body-tok","currentPassword":"a","newPassword":"b"}`)
	req.Header.Set("Authorization", "Bearer header-tok")
	code, _, _ := h.do(t, req)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "header-tok", h.auth.changeToken)

	code, _, _ = h.do(t, jsonReq(http.MethodPost, "/password/change", `{"token":"body-tok","currentPassword":"a","newPassword":"b"}`))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "body-tok", h.auth.changeToken)

	h.auth.changeErr = errs.ErrUnauthorized
	code, body, _ := h.do(t, jsonReq(http.MethodPost, "/password/change", `{}`))
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "UNAUTHORIZED", body["code"])
}

func TestPasswordReset(t *testing.T) {
	h := newHarness(t)

	code, _, _ := h.do(t, jsonReq(http.MethodPost, "/password/forgot", `{"email":"ann@example.com"}`))
	require.Equal(t, http.StatusOK, code)

	h.auth.resetErr = errs.ErrInvalidToken
	code, body, _ := h.do(t, jsonReq(http.MethodPost, "/password/reset", `{"token":"x","newPassword":"secret1"}`))
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "INVALID_TOKEN", body["code"])
}

func multipartReq(t *testing.T, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if image != nil {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="image"; filename="pic.png"`)
		hdr.Set("Content-Type", "image/png")
		part, err := w.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/reports", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestCreateReport(t *testing.T) {
	h := newHarness(t)
	fields := map[string]string{"caption": "smoke", "latitude": "55.7", "longitude": "37.6"}

	req := multipartReq(t, fields, []byte("png!"))
	code, _, _ := h.do(t, req)
	require.Equal(t, http.StatusUnauthorized, code)

	req = multipartReq(t, fields, []byte("png!"))
	req.Header.Set("Authorization", "Bearer good")
	code, body, _ := h.do(t, req)
	require.Equal(t, http.StatusCreated, code)
	require.Contains(t, body, "report")
	require.Len(t, h.reports.created, 1)
	in := h.reports.created[0]
	require.Equal(t, "image/png", in.ContentType)
	require.Equal(t, 55.7, in.Latitude)
	require.Equal(t, "png!", h.reports.body)

	req = multipartReq(t, fields, bytes.Repeat([]byte("x"), 17))
	req.Header.Set("Authorization", "Bearer good")
	code, body, _ = h.do(t, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, code)
	require.Equal(t, "PAYLOAD_TOO_LARGE", body["code"])

	for _, lat := range []string{"north", "NaN", "+Inf", "-inf"} {
		req = multipartReq(t, map[string]string{"caption": "c", "latitude": lat, "longitude": "1"}, []byte("png!"))
		req.Header.Set("Authorization", "Bearer good")
		code, body, _ = h.do(t, req)
		require.Equal(t, http.StatusBadRequest, code, lat)
		require.Equal(t, "VALIDATION_ERROR", body["code"], lat)
	}
	req = multipartReq(t, map[string]string{"caption": "c", "latitude": "1", "longitude": "NaN"}, []byte("png!"))
	req.Header.Set("Authorization", "Bearer good")
	code, _, _ = h.do(t, req)
	require.Equal(t, http.StatusBadRequest, code)
	require.Len(t, h.reports.created, 1)

	req = multipartReq(t, fields, nil)
	req.Header.Set("Authorization", "Bearer good")
	code, _, _ = h.do(t, req)
	require.Equal(t, http.StatusBadRequest, code)

	req = multipartReq(t, fields, []byte("png!"))
	req.Header.Set("Authorization", "Bearer stale")
	code, body, _ = h.do(t, req)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "SESSION_EXPIRED", body["code"])
}

func TestListAndCheckReports(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	req.Header.Set("Authorization", "Bearer good")
	code, body, _ := h.do(t, req)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, []any{}, body["reports"])

	h.reports.exists = true
	code, body, _ = h.do(t, jsonReq(http.MethodPost, "/reports/check", `{"imageUrl":"https://cdn/x.jpg"}`))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["exists"])
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)

	code, body, _ := h.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "connected", body["cache"])
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t)

	code, body, _ := h.do(t, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "NOT_FOUND", body["code"])
}
