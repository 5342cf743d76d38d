// Package storage persists user accounts, daily generation quotas, and the
// encrypted listing history in SQLite.
package storage

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// DefaultDailyLimit is the free-plan generation allowance per day,
	// before bonus generations.
	DefaultDailyLimit = 3

	// HistoryCap bounds the per-user listing history; older entries are
	// pruned on insert.
	HistoryCap = 50
)

// Plans. Premium bypasses the daily quota entirely.
const (
	PlanFree    = "free"
	PlanPro     = "pro"
	PlanPremium = "premium"
)

// QuotaSnapshot describes a user's generation allowance at decision time.
// Remaining is -1 for premium users.
type QuotaSnapshot struct {
	Used      int       `json:"used"`
	Max       int       `json:"max"`
	Remaining int       `json:"remaining"`
	Premium   bool      `json:"premium"`
	ResetAt   time.Time `json:"resetAt"`
}

// HistoryEntry is one generated listing kept for the user.
type HistoryEntry struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       *int      `json:"price"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"createdAt"`
}

// historyPayload is the encrypted-at-rest portion of a history row.
type historyPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       *int   `json:"price"`
	Currency    string `json:"currency"`
}

// SQLiteStore persists users, quotas, and history with encrypted listing
// content.
type SQLiteStore struct {
	db            *sql.DB
	encryptionKey []byte
	dailyLimit    int
	mu            sync.RWMutex
	now           func() time.Time
}

// NewSQLiteStore opens (or creates) the database at dbPath. The
// encryptionKey encrypts history content at rest; dailyLimit <= 0 selects
// DefaultDailyLimit.
func NewSQLiteStore(dbPath string, encryptionKey []byte, dailyLimit int) (*SQLiteStore, error) {
	// WAL mode and a busy timeout for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set file permissions (only works on creation)
	if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		// Ignore error if file doesn't exist yet
	}

	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}

	store := &SQLiteStore{
		db:            db,
		encryptionKey: encryptionKey,
		dailyLimit:    dailyLimit,
		now:           time.Now,
	}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	usersQuery := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token_hash TEXT NOT NULL UNIQUE,
		plan TEXT NOT NULL DEFAULT 'free',
		generation_count INTEGER NOT NULL DEFAULT 0,
		bonus_generations INTEGER NOT NULL DEFAULT 0,
		last_reset TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(usersQuery); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	historyQuery := `
	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		encrypted_payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);
	`
	if _, err := s.db.Exec(historyQuery); err != nil {
		return fmt.Errorf("failed to create history table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_history_user ON history(user_id, created_at)"); err != nil {
		return fmt.Errorf("failed to create history index: %w", err)
	}

	// Enable foreign keys for cascade delete
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// HashToken derives the stored identifier for an API token. Raw tokens are
// never persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// UserIDForToken resolves an API token to a user id, provisioning a new
// free-plan user on first sight.
func (s *SQLiteStore) UserIDForToken(token string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := HashToken(token)
	today := s.dateString(s.now())

	var id int64
	err := s.db.QueryRow("SELECT id FROM users WHERE token_hash = ?", hash).Scan(&id)
	if err == sql.ErrNoRows {
		res, err := s.db.Exec(
			"INSERT INTO users (token_hash, plan, last_reset) VALUES (?, ?, ?)",
			hash, PlanFree, today,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to create user: %w", err)
		}
		return res.LastInsertId()
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query user: %w", err)
	}
	return id, nil
}

// SetPlan updates a user's plan.
func (s *SQLiteStore) SetPlan(userID int64, plan string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch plan {
	case PlanFree, PlanPro, PlanPremium:
	default:
		return fmt.Errorf("unknown plan: %q", plan)
	}
	if _, err := s.db.Exec("UPDATE users SET plan = ? WHERE id = ?", plan, userID); err != nil {
		return fmt.Errorf("failed to set plan: %w", err)
	}
	return nil
}

// AddBonusGenerations grants extra generations on top of the daily limit.
func (s *SQLiteStore) AddBonusGenerations(userID int64, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(
		"UPDATE users SET bonus_generations = bonus_generations + ? WHERE id = ?", n, userID,
	); err != nil {
		return fmt.Errorf("failed to add bonus generations: %w", err)
	}
	return nil
}

// CheckAndConsume applies the daily-reset-then-consume quota rule. allowed
// reports whether the caller may proceed; the snapshot reflects the state
// AFTER any consumption. Premium users are always allowed and never
// decremented.
func (s *SQLiteStore) CheckAndConsume(userID int64) (QuotaSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return QuotaSnapshot{}, false, fmt.Errorf("failed to begin quota tx: %w", err)
	}
	defer tx.Rollback()

	var plan, lastReset string
	var count, bonus int
	err = tx.QueryRow(
		"SELECT plan, generation_count, bonus_generations, last_reset FROM users WHERE id = ?",
		userID,
	).Scan(&plan, &count, &bonus, &lastReset)
	if err == sql.ErrNoRows {
		return QuotaSnapshot{}, false, fmt.Errorf("user %d not found", userID)
	}
	if err != nil {
		return QuotaSnapshot{}, false, fmt.Errorf("failed to load quota state: %w", err)
	}

	now := s.now()
	today := s.dateString(now)
	if lastReset != today {
		count = 0
		if _, err := tx.Exec(
			"UPDATE users SET generation_count = 0, last_reset = ? WHERE id = ?", today, userID,
		); err != nil {
			return QuotaSnapshot{}, false, fmt.Errorf("failed to reset quota: %w", err)
		}
	}

	resetAt := nextMidnight(now)

	if plan == PlanPremium {
		snap := QuotaSnapshot{Used: count, Max: -1, Remaining: -1, Premium: true, ResetAt: resetAt}
		if err := tx.Commit(); err != nil {
			return QuotaSnapshot{}, false, fmt.Errorf("failed to commit quota tx: %w", err)
		}
		return snap, true, nil
	}

	max := s.dailyLimit + bonus
	if count >= max {
		snap := QuotaSnapshot{Used: count, Max: max, Remaining: 0, ResetAt: resetAt}
		if err := tx.Commit(); err != nil {
			return QuotaSnapshot{}, false, fmt.Errorf("failed to commit quota tx: %w", err)
		}
		return snap, false, nil
	}

	count++
	if _, err := tx.Exec(
		"UPDATE users SET generation_count = ? WHERE id = ?", count, userID,
	); err != nil {
		return QuotaSnapshot{}, false, fmt.Errorf("failed to consume generation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return QuotaSnapshot{}, false, fmt.Errorf("failed to commit quota tx: %w", err)
	}

	return QuotaSnapshot{Used: count, Max: max, Remaining: max - count, ResetAt: resetAt}, true, nil
}

// AddHistory stores a generated listing for the user, encrypted at rest,
// and prunes entries beyond HistoryCap (oldest first).
func (s *SQLiteStore) AddHistory(userID int64, entry HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(historyPayload{
		Title:       entry.Title,
		Description: entry.Description,
		Price:       entry.Price,
		Currency:    entry.Currency,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	encrypted, err := Encrypt(payload, s.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt history entry: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin history tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO history (user_id, encrypted_payload, created_at) VALUES (?, ?, ?)",
		userID, encrypted, s.now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}

	if _, err := tx.Exec(`
		DELETE FROM history
		WHERE user_id = ? AND id NOT IN (
			SELECT id FROM history WHERE user_id = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		)
	`, userID, userID, HistoryCap); err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}

	return tx.Commit()
}

// History returns the user's stored listings, newest first.
func (s *SQLiteStore) History(userID int64) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT id, encrypted_payload, created_at FROM history WHERE user_id = ? ORDER BY created_at DESC, id DESC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var id int64
		var encrypted string
		var createdAt time.Time
		if err := rows.Scan(&id, &encrypted, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}

		plaintext, err := Decrypt(encrypted, s.encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt history entry %d: %w", id, err)
		}

		var p historyPayload
		if err := json.Unmarshal(plaintext, &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history entry %d: %w", id, err)
		}

		entries = append(entries, HistoryEntry{
			ID:          id,
			Title:       p.Title,
			Description: p.Description,
			Price:       p.Price,
			Currency:    p.Currency,
			CreatedAt:   createdAt,
		})
	}

	return entries, rows.Err()
}

func (s *SQLiteStore) dateString(t time.Time) string {
	return t.Format("2006-01-02")
}

func nextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
