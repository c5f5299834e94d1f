package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/tourism-reservation/internal/model"
)

// UserRepo reads the users table.  Accounts are managed by the identity
// service; only the contact details needed for emails are read here.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// FindUserByID returns a user or a *model.NotFoundError.
func (r *UserRepo) FindUserByID(ctx context.Context, id uint64) (*model.User, error) {
	var (
		u    model.User
		name sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, email, name FROM users WHERE id = ? LIMIT 1", id,
	).Scan(&u.ID, &u.Email, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Entity: "user", ID: id}
	}
	if err != nil {
		return nil, persistErr("get user", err)
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Name = name.String
	return &u, nil
}
