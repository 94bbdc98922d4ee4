package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kmpdu/evote/internal/models"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Repository{db: db}, mock
}

// TestListMembers_ScanError tests row scanning error
func TestListMembers_ScanError(t *testing.T) {
	repo, mock := newMockRepo(t)

	// too few columns for the scan
	rows := sqlmock.NewRows([]string{"id", "member_id"}).AddRow("usr_001", "M1")
	mock.ExpectQuery("SELECT (.+) FROM members").WillReturnRows(rows)

	if _, err := repo.ListMembers(context.Background()); err == nil {
		t.Error("expected error from scan failure, got nil")
	}
}

func TestListMembers_QueryError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT (.+) FROM members").WillReturnError(errors.New("database locked"))

	if _, err := repo.ListMembers(context.Background()); err == nil {
		t.Error("expected query error")
	}
}

func TestListReceipts_ScanError(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"id", "member_id", "position_id", "position_title", "candidate_id",
		"candidate_name", "timestamp", "verification_token", "blockchain_hash", "mode"}).
		AddRow("rcpt_1", "M1", "pos_001", "t", "cand_001", "n", "not-a-time", "VRF", "BLK", "confirmed")
	mock.ExpectQuery("SELECT (.+) FROM receipts").WillReturnRows(rows)

	if _, err := repo.ListReceipts(context.Background(), "M1"); err == nil {
		t.Error("expected error from timestamp scan failure, got nil")
	}
}

func TestCountReceipts_RowError(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"mode", "count"}).
		AddRow("confirmed", 1).
		RowError(0, errors.New("row failure"))
	mock.ExpectQuery("SELECT mode, COUNT").WillReturnRows(rows)

	if _, err := repo.CountReceipts(context.Background()); err == nil {
		t.Error("expected row error to be returned")
	}
}

func TestMarkReconciled_ExecError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE pending_votes").WillReturnError(errors.New("disk I/O error"))

	err := repo.MarkReconciled(context.Background(), "k", "h", time.Now())
	if err == nil || err == ErrNotFound {
		t.Errorf("expected exec error, got %v", err)
	}
}

func TestRecordAttempt_NoRowsAffected(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE pending_votes").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.RecordAttempt(context.Background(), "k"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSeedMembers_StopsOnError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("INSERT OR IGNORE INTO members").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT OR IGNORE INTO members").WillReturnError(errors.New("constraint failed"))

	added, err := repo.SeedMembers(context.Background(), []models.User{
		{ID: "a", MemberID: "A"}, {ID: "b", MemberID: "B"}, {ID: "c", MemberID: "C"},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if added != 1 {
		t.Errorf("expected 1 member added before failure, got %d", added)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestListPending_ScanError(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := sqlmock.NewRows([]string{"idempotency_key"}).AddRow("k")
	mock.ExpectQuery("SELECT (.+) FROM pending_votes").WillReturnRows(rows)

	if _, err := repo.ListPending(context.Background(), false); err == nil {
		t.Error("expected scan error")
	}
}

func TestListNotifications_QueryError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT (.+) FROM notifications").WillReturnError(errors.New("boom"))

	if _, err := repo.ListNotifications(context.Background(), "M1"); err == nil {
		t.Error("expected query error")
	}
}
