package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"rapidride/internal/domain"
	"rapidride/internal/repository"
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	q queryer
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{q: db}
}

const userColumns = `id, name, email, password_hash, phone, avatar, role, rating, total_rides,
	online, lat, lng, vehicle, documents, created_at, updated_at`

// Create adds a new user.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	vehicle, err := json.Marshal(user.Vehicle)
	if err != nil {
		return err
	}
	documents, err := json.Marshal(user.Documents)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = r.q.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Phone,
		user.Avatar,
		user.Role,
		user.Rating,
		user.TotalRides,
		user.Online,
		user.Lat,
		user.Lng,
		vehicle,
		documents,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if uniqueViolation(err, usersEmailConstraint) {
		return repository.ErrDuplicateEmail
	}
	return err
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.q.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.q.QueryRowContext(ctx, query, email))
}

// UpdateProfile writes the editable profile fields.
func (r *UserRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	vehicle, err := json.Marshal(user.Vehicle)
	if err != nil {
		return err
	}
	query := `
		UPDATE users SET name = $1, phone = $2, avatar = $3, vehicle = $4, updated_at = $5
		WHERE id = $6
	`
	res, err := r.q.ExecContext(ctx, query, user.Name, user.Phone, user.Avatar, vehicle, user.UpdatedAt, user.ID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// SetOnline updates a driver's availability flag.
func (r *UserRepository) SetOnline(ctx context.Context, id string, online bool) error {
	res, err := r.q.ExecContext(ctx, `UPDATE users SET online = $1, updated_at = now() WHERE id = $2`, online, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// UpdateLocation records a driver's last reported coordinates.
func (r *UserRepository) UpdateLocation(ctx context.Context, id string, lat, lng float64) error {
	res, err := r.q.ExecContext(ctx, `UPDATE users SET lat = $1, lng = $2, updated_at = now() WHERE id = $3`, lat, lng, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// incrementTotalRides bumps a user's completed ride counter.
func (r *UserRepository) incrementTotalRides(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE users SET total_rides = total_rides + 1 WHERE id = $1`, id)
	return err
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var user domain.User
	var vehicle, documents []byte
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Phone,
		&user.Avatar,
		&user.Role,
		&user.Rating,
		&user.TotalRides,
		&user.Online,
		&user.Lat,
		&user.Lng,
		&vehicle,
		&documents,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(vehicle, &user.Vehicle); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(documents, &user.Documents); err != nil {
		return nil, err
	}
	return &user, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
