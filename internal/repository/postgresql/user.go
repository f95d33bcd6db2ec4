package postgresql

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"golang.org/x/crypto/bcrypt"

	"laundry-engine/internal/db"
	"laundry-engine/internal/storage"
)

type UserRepo struct {
	db db.DB
}

func NewUserRepo(db db.DB) storage.UserRepository {
	return &UserRepo{db: db}
}

// EnsureUser creates the user if it does not exist yet. Used to seed the
// admin account at startup.
func (r *UserRepo) EnsureUser(ctx context.Context, username, password string) error {
	var count int
	err := r.db.ExecQueryRow(ctx,
		"SELECT COUNT(*) FROM users WHERE username = $1", username).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx,
		"INSERT INTO users (username, password) VALUES ($1, $2)",
		username, string(hashedPassword))
	return err
}

func (r *UserRepo) ValidateUser(ctx context.Context, username, password string) (bool, error) {
	var hashedPassword string
	err := r.db.ExecQueryRow(ctx,
		"SELECT password FROM users WHERE username = $1", username).Scan(&hashedPassword)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)); err != nil {
		return false, nil
	}
	return true, nil
}
