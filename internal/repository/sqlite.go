package repository

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kmpdu/evote/internal/errors"
	"github.com/kmpdu/evote/internal/models"
)

// Repository provides data access methods
type Repository struct {
	db *sql.DB
}

// New creates a new Repository
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite works best with single connection
	db.SetMaxIdleConns(1)

	repo := &Repository{db: db}

	if err := repo.migrate(); err != nil {
		return nil, err
	}

	return repo, nil
}

// DB returns the underlying database connection (for transactions)
func (r *Repository) DB() *sql.DB {
	return r.db
}

// Close closes the database connection
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate runs database migrations
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS members (
			id TEXT PRIMARY KEY,
			member_id TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			email TEXT,
			phone TEXT,
			role TEXT NOT NULL DEFAULT 'member',
			branch TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS receipts (
			id TEXT PRIMARY KEY,
			member_id TEXT NOT NULL,
			position_id TEXT NOT NULL,
			position_title TEXT,
			candidate_id TEXT NOT NULL,
			candidate_name TEXT,
			timestamp DATETIME NOT NULL,
			verification_token TEXT UNIQUE NOT NULL,
			blockchain_hash TEXT NOT NULL,
			mode TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_receipts_member ON receipts(member_id)`,
		`CREATE TABLE IF NOT EXISTS pending_votes (
			idempotency_key TEXT PRIMARY KEY,
			receipt_id TEXT,
			user_id TEXT,
			member_id TEXT NOT NULL,
			position_id TEXT NOT NULL,
			candidate_id TEXT NOT NULL,
			election_id TEXT NOT NULL,
			queued_at DATETIME NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			reconciled BOOLEAN NOT NULL DEFAULT 0,
			reconciled_at DATETIME,
			blockchain_hash TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			member_id TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT,
			type TEXT NOT NULL,
			timestamp DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_member ON notifications(member_id)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT
		)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}

// ==================== Member Methods ====================

// UpsertMember inserts or replaces a member profile
func (r *Repository) UpsertMember(ctx context.Context, u models.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO members (id, member_id, name, email, phone, role, branch)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			member_id = excluded.member_id, name = excluded.name, email = excluded.email,
			phone = excluded.phone, role = excluded.role, branch = excluded.branch
	`, u.ID, u.MemberID, u.Name, u.Email, u.Phone, string(u.Role), u.Branch)
	return err
}

// SeedMembers inserts members that do not exist yet and returns how many were added
func (r *Repository) SeedMembers(ctx context.Context, users []models.User) (int, error) {
	added := 0
	for _, u := range users {
		result, err := r.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO members (id, member_id, name, email, phone, role, branch)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, u.ID, u.MemberID, u.Name, u.Email, u.Phone, string(u.Role), u.Branch)
		if err != nil {
			return added, err
		}
		if n, _ := result.RowsAffected(); n > 0 {
			added++
		}
	}
	return added, nil
}

// GetMemberByMemberID retrieves a member by union membership number
func (r *Repository) GetMemberByMemberID(ctx context.Context, memberID string) (*models.User, error) {
	var u models.User
	var email, phone, branch sql.NullString
	var role string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, member_id, name, email, phone, role, branch
		FROM members WHERE member_id = ?
	`, memberID).Scan(&u.ID, &u.MemberID, &u.Name, &email, &phone, &role, &branch)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("member not found")
	}
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	u.Phone = phone.String
	u.Branch = branch.String
	u.Role = models.ParseRole(role)
	return &u, nil
}

// ListMembers returns all members ordered by member id
func (r *Repository) ListMembers(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, member_id, name, email, phone, role, branch
		FROM members ORDER BY member_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.User
	for rows.Next() {
		var u models.User
		var email, phone, branch sql.NullString
		var role string
		if err := rows.Scan(&u.ID, &u.MemberID, &u.Name, &email, &phone, &role, &branch); err != nil {
			return nil, err
		}
		u.Email = email.String
		u.Phone = phone.String
		u.Branch = branch.String
		u.Role = models.ParseRole(role)
		members = append(members, u)
	}
	return members, rows.Err()
}

// ==================== Receipt Methods ====================

// AppendReceipt adds a receipt to the audit log. Receipts are never updated.
func (r *Repository) AppendReceipt(ctx context.Context, rc models.VoteReceipt) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO receipts (id, member_id, position_id, position_title, candidate_id, candidate_name,
			timestamp, verification_token, blockchain_hash, mode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rc.ID, rc.MemberID, rc.PositionID, rc.PositionTitle, rc.CandidateID, rc.CandidateName,
		rc.Timestamp.UTC(), rc.VerificationToken, rc.BlockchainHash, string(rc.Mode))
	return err
}

// ListReceipts returns a member's receipts, oldest first
func (r *Repository) ListReceipts(ctx context.Context, memberID string) ([]models.VoteReceipt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, member_id, position_id, position_title, candidate_id, candidate_name,
			timestamp, verification_token, blockchain_hash, mode
		FROM receipts WHERE member_id = ? ORDER BY timestamp, id
	`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []models.VoteReceipt
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, *rc)
	}
	return receipts, rows.Err()
}

// GetReceiptByToken looks up a receipt by its verification token
func (r *Repository) GetReceiptByToken(ctx context.Context, token string) (*models.VoteReceipt, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, member_id, position_id, position_title, candidate_id, candidate_name,
			timestamp, verification_token, blockchain_hash, mode
		FROM receipts WHERE verification_token = ?
	`, token)
	rc, err := scanReceipt(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("receipt not found")
	}
	return rc, err
}

// CountReceipts returns the number of receipts by mode
func (r *Repository) CountReceipts(ctx context.Context) (map[models.CastMode]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT mode, COUNT(*) FROM receipts GROUP BY mode`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.CastMode]int)
	for rows.Next() {
		var mode string
		var n int
		if err := rows.Scan(&mode, &n); err != nil {
			return nil, err
		}
		counts[models.CastMode(mode)] = n
	}
	return counts, rows.Err()
}

// ClearReceipts deletes the whole receipt log
func (r *Repository) ClearReceipts(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM receipts`)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (*models.VoteReceipt, error) {
	var rc models.VoteReceipt
	var title, name sql.NullString
	var mode string
	if err := row.Scan(&rc.ID, &rc.MemberID, &rc.PositionID, &title, &rc.CandidateID, &name,
		&rc.Timestamp, &rc.VerificationToken, &rc.BlockchainHash, &mode); err != nil {
		return nil, err
	}
	rc.PositionTitle = title.String
	rc.CandidateName = name.String
	rc.Mode = models.CastMode(mode)
	return &rc, nil
}

// ==================== Pending Vote Methods ====================

// EnqueuePending queues an offline vote. Re-queuing the same key is a no-op.
func (r *Repository) EnqueuePending(ctx context.Context, v models.PendingVote) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO pending_votes (idempotency_key, receipt_id, user_id, member_id,
			position_id, candidate_id, election_id, queued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, v.IdempotencyKey, v.ReceiptID, v.UserID, v.MemberID, v.PositionID, v.CandidateID, v.ElectionID, v.QueuedAt.UTC())
	return err
}

// ListPending returns queued votes, oldest first
func (r *Repository) ListPending(ctx context.Context, includeReconciled bool) ([]models.PendingVote, error) {
	query := `
		SELECT idempotency_key, receipt_id, user_id, member_id, position_id, candidate_id, election_id,
			queued_at, attempts, reconciled, reconciled_at, blockchain_hash
		FROM pending_votes`
	if !includeReconciled {
		query += ` WHERE reconciled = 0`
	}
	query += ` ORDER BY queued_at, idempotency_key`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []models.PendingVote
	for rows.Next() {
		var v models.PendingVote
		var receiptID, userID, hash sql.NullString
		var reconciledAt sql.NullTime
		if err := rows.Scan(&v.IdempotencyKey, &receiptID, &userID, &v.MemberID, &v.PositionID,
			&v.CandidateID, &v.ElectionID, &v.QueuedAt, &v.Attempts, &v.Reconciled, &reconciledAt, &hash); err != nil {
			return nil, err
		}
		v.ReceiptID = receiptID.String
		v.UserID = userID.String
		v.BlockchainHash = hash.String
		if reconciledAt.Valid {
			v.ReconciledAt = reconciledAt.Time
		}
		pending = append(pending, v)
	}
	return pending, rows.Err()
}

// MarkReconciled records that the backend confirmed a queued vote
func (r *Repository) MarkReconciled(ctx context.Context, idempotencyKey, blockchainHash string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE pending_votes SET reconciled = 1, reconciled_at = ?, blockchain_hash = ?, attempts = attempts + 1
		WHERE idempotency_key = ? AND reconciled = 0
	`, at.UTC(), blockchainHash, idempotencyKey)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordAttempt counts a failed replay
func (r *Repository) RecordAttempt(ctx context.Context, idempotencyKey string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE pending_votes SET attempts = attempts + 1 WHERE idempotency_key = ?
	`, idempotencyKey)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearPending deletes the whole queue
func (r *Repository) ClearPending(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_votes`)
	return err
}

// ==================== Notification Methods ====================

// ArchiveNotification stores a notification sent to a member
func (r *Repository) ArchiveNotification(ctx context.Context, memberKey string, n models.Notification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO notifications (id, member_id, title, message, type, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, n.ID, memberKey, n.Title, n.Message, string(n.Type), n.Timestamp.UTC())
	return err
}

// ListNotifications returns a member's archived notifications, newest first
func (r *Repository) ListNotifications(ctx context.Context, memberKey string) ([]models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, message, type, timestamp
		FROM notifications WHERE member_id = ? ORDER BY timestamp DESC, id
	`, memberKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		var message sql.NullString
		var typ string
		if err := rows.Scan(&n.ID, &n.Title, &message, &typ, &n.Timestamp); err != nil {
			return nil, err
		}
		n.Message = message.String
		n.Type = models.NotificationType(typ)
		out = append(out, n)
	}
	return out, rows.Err()
}

// ClearNotifications deletes every archived notification
func (r *Repository) ClearNotifications(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM notifications`)
	return err
}

// ==================== Settings Methods ====================

// GetSetting retrieves a setting value
func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// SetSetting updates a setting value
func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value)
	return err
}
