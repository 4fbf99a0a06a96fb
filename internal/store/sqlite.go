package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/commitdeck/commitdeck/internal/github"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        email TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        github_token TEXT NOT NULL DEFAULT '',
        tier TEXT NOT NULL DEFAULT 'free' CHECK (tier IN ('free', 'pro')),
        regen_count INTEGER NOT NULL DEFAULT 0,
        regen_date TEXT NOT NULL DEFAULT '',
        repositories TEXT NOT NULL DEFAULT '[]',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

const userColumns = "id, email, password_hash, github_token, tier, regen_count, regen_date, repositories, created_at"

func (s *SQLiteStore) scanUser(row *sql.Row) (*User, error) {
	var user User
	var reposJSON string
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.GitHubToken,
		&user.Tier, &user.RegenCount, &user.RegenDate, &reposJSON, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if err := json.Unmarshal([]byte(reposJSON), &user.Repositories); err != nil {
		return nil, fmt.Errorf("failed to decode repositories for user %d: %w", user.ID, err)
	}
	return &user, nil
}

func (s *SQLiteStore) GetUserByEmail(email string) (*User, error) {
	row := s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE email = ?", email)
	return s.scanUser(row)
}

func (s *SQLiteStore) GetUserByID(id int64) (*User, error) {
	row := s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return s.scanUser(row)
}

func (s *SQLiteStore) CreateUser(email, passwordHash string) (*User, error) {
	res, err := s.db.Exec("INSERT INTO users (email, password_hash) VALUES (?, ?)", email, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetUserByID(id)
}

func (s *SQLiteStore) UpdateGitHubToken(userID int64, token string) error {
	_, err := s.db.Exec("UPDATE users SET github_token = ? WHERE id = ?", token, userID)
	if err != nil {
		return fmt.Errorf("failed to update github token: %w", err)
	}
	return nil
}

// UpdateRepositories replaces the user's configured repository list.
func (s *SQLiteStore) UpdateRepositories(userID int64, repos []github.Repo) error {
	reposJSON, err := json.Marshal(repos)
	if err != nil {
		return fmt.Errorf("failed to encode repositories: %w", err)
	}
	res, err := s.db.Exec("UPDATE users SET repositories = ? WHERE id = ?", string(reposJSON), userID)
	if err != nil {
		return fmt.Errorf("failed to update repositories: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("user not found, repositories not updated")
	}
	return nil
}

// TryReserveRegeneration claims one regeneration slot for today in a single
// conditional UPDATE. A stored date other than today counts as zero, so the
// counter lazily resets at day rollover without a background job. Returns
// false when the ceiling for today is already reached.
func (s *SQLiteStore) TryReserveRegeneration(userID int64, today string, ceiling int) (bool, error) {
	res, err := s.db.Exec(`
        UPDATE users SET
            regen_count = CASE WHEN regen_date = ? THEN regen_count + 1 ELSE 1 END,
            regen_date = ?
        WHERE id = ? AND (regen_date <> ? OR regen_count < ?)
    `, today, today, userID, today, ceiling)
	if err != nil {
		return false, fmt.Errorf("failed to reserve regeneration: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read reservation result: %w", err)
	}
	return affected > 0, nil
}

// RefundRegeneration releases a previously reserved slot after the AI call
// failed. Best effort: a lost refund at worst wastes one slot for the day.
func (s *SQLiteStore) RefundRegeneration(userID int64, today string) error {
	_, err := s.db.Exec(`
        UPDATE users SET regen_count = regen_count - 1
        WHERE id = ? AND regen_date = ? AND regen_count > 0
    `, userID, today)
	if err != nil {
		return fmt.Errorf("failed to refund regeneration: %w", err)
	}
	return nil
}
