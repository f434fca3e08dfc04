package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/garnizeh/estate/pkg/models"
	"github.com/garnizeh/estate/pkg/repository"
)

const userColumns = `id, role, name, email, phone, email_verified, password_hash, created, updated`

func (r *SQLiteRepo) CreateUser(ctx context.Context, u *models.User) error {
	if u == nil {
		return fmt.Errorf("user is nil")
	}
	ts := now()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	_, err := r.conn.Exec(ctx, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, string(u.Role), u.Name, u.Email, nullString(u.Phone), boolInt(u.EmailVerified), u.PasswordHash, ts, ts)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	u.CreatedAt = fromMillis(ts)
	u.UpdatedAt = u.CreatedAt
	return nil
}

func (r *SQLiteRepo) GetUser(ctx context.Context, id string) (*models.User, error) {
	return scanUser(r.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *SQLiteRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email))))
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u        models.User
		role     string
		phone    sql.NullString
		verified int
		created  int64
		updated  int64
	)
	if err := row.Scan(&u.ID, &role, &u.Name, &u.Email, &phone, &verified, &u.PasswordHash, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = models.Role(role)
	u.Phone = phone.String
	u.EmailVerified = verified != 0
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return &u, nil
}

// CountUsersByRole returns the number of users per role.
func (r *SQLiteRepo) CountUsersByRole(ctx context.Context) (map[models.Role]int, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT role, COUNT(1) FROM users GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	defer rows.Close()
	out := map[models.Role]int{}
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("scan user count: %w", err)
		}
		out[models.Role(role)] = n
	}
	return out, rows.Err()
}
