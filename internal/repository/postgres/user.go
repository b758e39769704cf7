package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user. A taken email yields model.ErrUniqueViolation.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id, name, email, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Name, u.Email, u.CreatedAt,
	)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return &model.Error{Kind: model.KindUniqueViolation, Message: "Email must be unique.", Err: err}
		}
		return classify(fmt.Errorf("insert user: %w", err))
	}
	return nil
}

// GetByID returns a single user or model.ErrNotFound.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT id, name, email, created_at FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.NotFound("User not found.")
		}
		return nil, classify(fmt.Errorf("get user: %w", err))
	}
	return u, nil
}

// List returns all users in creation order.
func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	return r.query(ctx, `SELECT id, name, email, created_at FROM users ORDER BY created_at ASC, id ASC`)
}

// ListByEvent returns the users registered for an event in registration order.
func (r *UserRepository) ListByEvent(ctx context.Context, eventID string) ([]model.User, error) {
	return r.query(ctx,
		`SELECT u.id, u.name, u.email, u.created_at
		 FROM registrations r
		 JOIN users u ON u.id = r.user_id
		 WHERE r.event_id = $1
		 ORDER BY r.created_at ASC, u.id ASC`,
		eventID,
	)
}

func (r *UserRepository) query(ctx context.Context, sql string, args ...any) ([]model.User, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("list users: %w", err))
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}
