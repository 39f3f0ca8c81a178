package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/ecoreport/internal/errs"
	"github.com/and161185/ecoreport/internal/model"
	"github.com/gofrs/uuid/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type userDoc struct {
	ID             string     `bson:"_id"`
	Email          string     `bson:"email"`
	Name           string     `bson:"name"`
	Phone          string     `bson:"phone"`
	PwdHash        []byte     `bson:"pwdHash"`
	PwdSalt        []byte     `bson:"pwdSalt"`
	SessionKey     *string    `bson:"sessionKey,omitempty"`
	ResetTokenUsed bool       `bson:"resetTokenUsed"`
	ResetTokenTime *time.Time `bson:"resetTokenTime"`
	CreatedAt      time.Time  `bson:"createdAt"`
}

func (d *userDoc) toModel() (*model.User, error) {
	id, err := uuid.FromString(d.ID)
	if err != nil {
		return nil, fmt.Errorf("user %q: bad id: %w", d.ID, err)
	}
	u := &model.User{
		ID:             id,
		Email:          d.Email,
		Name:           d.Name,
		Phone:          d.Phone,
		PwdHash:        d.PwdHash,
		PwdSalt:        d.PwdSalt,
		ResetTokenUsed: d.ResetTokenUsed,
		ResetTokenTime: d.ResetTokenTime,
		CreatedAt:      d.CreatedAt,
	}
	if d.SessionKey != nil {
		u.SessionKey = *d.SessionKey
	}
	return u, nil
}

// UserRepo implements UserRepository on a MongoDB collection.
type UserRepo struct{ s *Store }

// NewUserRepo constructs a user repository.
func NewUserRepo(s *Store) *UserRepo { return &UserRepo{s: s} }

// Create inserts a new user document.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	u.CreatedAt = now()
	doc := userDoc{
		ID:        u.ID.String(),
		Email:     u.Email,
		Name:      u.Name,
		Phone:     u.Phone,
		PwdHash:   u.PwdHash,
		PwdSalt:   u.PwdSalt,
		CreatedAt: u.CreatedAt,
	}
	if _, err := r.s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errs.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetByID finds a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

// GetByEmail finds a user by lower-cased email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

// GetBySessionKey finds the user whose session pointer equals token.
func (r *UserRepo) GetBySessionKey(ctx context.Context, token string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"sessionKey": token})
}

func (r *UserRepo) findOne(ctx context.Context, filter bson.M) (*model.User, error) {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	var doc userDoc
	if err := r.s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return doc.toModel()
}

// SetSessionKey points the user's session pointer at token.
func (r *UserRepo) SetSessionKey(ctx context.Context, id uuid.UUID, token string) error {
	return r.updateOne(ctx, bson.M{"_id": id.String()}, bson.M{"sessionKey": token})
}

// ClearSessionKey unsets the session pointer referencing token, if any.
func (r *UserRepo) ClearSessionKey(ctx context.Context, token string) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	_, err := r.s.users.UpdateMany(ctx, bson.M{"sessionKey": token}, bson.M{"$unset": bson.M{"sessionKey": ""}})
	return err
}

// UpdateProfile overwrites name and phone.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, name, phone string) error {
	return r.updateOne(ctx, bson.M{"_id": id.String()}, bson.M{"name": name, "phone": phone})
}

// UpdatePassword replaces the password hash and salt.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash, salt []byte) error {
	return r.updateOne(ctx, bson.M{"_id": id.String()}, bson.M{"pwdHash": hash, "pwdSalt": salt})
}

// MarkResetIssued stores the issue time of a new reset token and marks it unused.
func (r *UserRepo) MarkResetIssued(ctx context.Context, id uuid.UUID, issuedAt time.Time) error {
	return r.updateOne(ctx, bson.M{"_id": id.String()}, bson.M{"resetTokenUsed": false, "resetTokenTime": issuedAt})
}

// ConsumeReset updates the password only if the reset token issued at issuedAt is unused.
func (r *UserRepo) ConsumeReset(ctx context.Context, id uuid.UUID, issuedAt time.Time, hash, salt []byte) error {
	err := r.updateOne(ctx,
		bson.M{"_id": id.String(), "resetTokenUsed": false, "resetTokenTime": issuedAt},
		bson.M{"pwdHash": hash, "pwdSalt": salt, "resetTokenUsed": true},
	)
	if errors.Is(err, errs.ErrNotFound) {
		return errs.ErrVersionConflict
	}
	return err
}

func (r *UserRepo) updateOne(ctx context.Context, filter, set bson.M) error {
	ctx, cancel := r.s.opCtx(ctx)
	defer cancel()

	res, err := r.s.users.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}
