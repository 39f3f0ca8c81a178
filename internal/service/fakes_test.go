package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/and161185/ecoreport/internal/errs"
	"github.com/and161185/ecoreport/internal/limiter"
	"github.com/and161185/ecoreport/internal/model"
	"github.com/and161185/ecoreport/internal/repository"
	"github.com/gofrs/uuid/v5"
)

type fakeUsers struct {
	byEmail map[string]*model.User

	createErr error
	getErr    error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func newFakeUsers(us ...*model.User) *fakeUsers {
	f := &fakeUsers{byEmail: map[string]*model.User{}}
	for _, u := range us {
		cp := *u
		f.byEmail[u.Email] = &cp
	}
	return f
}

func (f *fakeUsers) find(id uuid.UUID) *model.User {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.byEmail[u.Email]; exists {
		return errs.ErrAlreadyExists
	}
	cp := *u
	cp.CreatedAt = time.Now()
	f.byEmail[u.Email] = &cp
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	if u := f.find(id); u != nil {
		c := *u
		return &c, nil
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) GetBySessionKey(_ context.Context, tok string) (*model.User, error) {
	for _, u := range f.byEmail {
		if u.SessionKey == tok {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) SetSessionKey(_ context.Context, id uuid.UUID, tok string) error {
	u := f.find(id)
	if u == nil {
		return errs.ErrNotFound
	}
	u.SessionKey = tok
	return nil
}

func (f *fakeUsers) ClearSessionKey(_ context.Context, tok string) error {
	for _, u := range f.byEmail {
		if u.SessionKey == tok {
			u.SessionKey = ""
		}
	}
	return nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id uuid.UUID, name, phone string) error {
	u := f.find(id)
	if u == nil {
		return errs.ErrNotFound
	}
	u.Name, u.Phone = name, phone
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id uuid.UUID, hash, salt []byte) error {
	u := f.find(id)
	if u == nil {
		return errs.ErrNotFound
	}
	u.PwdHash, u.PwdSalt = hash, salt
	return nil
}

func (f *fakeUsers) MarkResetIssued(_ context.Context, id uuid.UUID, issuedAt time.Time) error {
	u := f.find(id)
	if u == nil {
		return errs.ErrNotFound
	}
	u.ResetTokenUsed = false
	u.ResetTokenTime = &issuedAt
	return nil
}

func (f *fakeUsers) ConsumeReset(_ context.Context, id uuid.UUID, issuedAt time.Time, hash, salt []byte) error {
	u := f.find(id)
	if u == nil || u.ResetTokenUsed || u.ResetTokenTime == nil || !u.ResetTokenTime.Equal(issuedAt) {
		return errs.ErrVersionConflict
	}
	u.PwdHash, u.PwdSalt = hash, salt
	u.ResetTokenUsed = true
	return nil
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
	lastEmail    string
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(_ context.Context, email string, _ []byte) (bool, time.Duration, error) {
	l.allowCalls++
	l.lastEmail = email
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

// fakeSessions maps tokens straight to users through the fake store.
type fakeSessions struct {
	users *fakeUsers

	establishErr error
	issued       int
}

func (s *fakeSessions) Establish(ctx context.Context, u *model.User) (string, *model.Projection, error) {
	if s.establishErr != nil {
		return "", nil, s.establishErr
	}
	s.issued++
	tok := "tok-" + u.ID.String()
	if err := s.users.SetSessionKey(ctx, u.ID, tok); err != nil {
		return "", nil, err
	}
	return tok, model.NewProjection(u), nil
}

func (s *fakeSessions) Resolve(ctx context.Context, tok string) (*model.Projection, error) {
	u, err := s.users.GetBySessionKey(ctx, tok)
	if err != nil {
		return nil, errs.ErrSessionExpired
	}
	return model.NewProjection(u), nil
}

type sentReset struct {
	userID uuid.UUID
	token  string
}

type fakeNotifier struct {
	sent []sentReset
	err  error
}

func (n *fakeNotifier) NotifyReset(_ context.Context, u *model.User, tok string, _ time.Time) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentReset{userID: u.ID, token: tok})
	return nil
}

type fakeReports struct {
	mu      sync.Mutex
	byURL   map[string]model.Report
	saveErr error
}

func newFakeReports() *fakeReports { return &fakeReports{byURL: map[string]model.Report{}} }

func (f *fakeReports) Create(_ context.Context, r *model.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	if _, ok := f.byURL[r.ImageURL]; ok {
		return errs.ErrAlreadyExists
	}
	r.CreatedAt = time.Now()
	f.byURL[r.ImageURL] = *r
	return nil
}

func (f *fakeReports) ListByUser(_ context.Context, userID uuid.UUID) ([]model.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Report
	for _, r := range f.byURL {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReports) ExistsByURL(_ context.Context, url string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.byURL[url]
	return ok, nil
}

type fakeObjects struct {
	put     map[string]string
	deleted []string
	putErr  error
}

func newFakeObjects() *fakeObjects { return &fakeObjects{put: map[string]string{}} }

func (o *fakeObjects) Put(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	if o.putErr != nil {
		return "", o.putErr
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	o.put[key] = string(b)
	return "https://cdn.example.com/" + key, nil
}

func (o *fakeObjects) Delete(_ context.Context, key string) error {
	o.deleted = append(o.deleted, key)
	delete(o.put, key)
	return nil
}

var errBoom = errors.New("boom")

func body(s string) io.Reader { return strings.NewReader(s) }
