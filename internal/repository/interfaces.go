package repository

import (
	"context"
	"time"

	"github.com/kmpdu/evote/internal/models"
)

// MemberRepository defines member directory operations
type MemberRepository interface {
	UpsertMember(ctx context.Context, u models.User) error
	SeedMembers(ctx context.Context, users []models.User) (int, error)
	GetMemberByMemberID(ctx context.Context, memberID string) (*models.User, error)
	ListMembers(ctx context.Context) ([]models.User, error)
}

// ReceiptRepository defines receipt audit log operations
type ReceiptRepository interface {
	AppendReceipt(ctx context.Context, rc models.VoteReceipt) error
	ListReceipts(ctx context.Context, memberID string) ([]models.VoteReceipt, error)
	GetReceiptByToken(ctx context.Context, token string) (*models.VoteReceipt, error)
	CountReceipts(ctx context.Context) (map[models.CastMode]int, error)
	ClearReceipts(ctx context.Context) error
}

// PendingRepository defines offline-vote queue operations
type PendingRepository interface {
	EnqueuePending(ctx context.Context, v models.PendingVote) error
	ListPending(ctx context.Context, includeReconciled bool) ([]models.PendingVote, error)
	MarkReconciled(ctx context.Context, idempotencyKey, blockchainHash string, at time.Time) error
	RecordAttempt(ctx context.Context, idempotencyKey string) error
	ClearPending(ctx context.Context) error
}

// NotificationRepository defines notification archive operations
type NotificationRepository interface {
	ArchiveNotification(ctx context.Context, memberKey string, n models.Notification) error
	ListNotifications(ctx context.Context, memberKey string) ([]models.Notification, error)
	ClearNotifications(ctx context.Context) error
}

// SettingsRepository defines settings data operations
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// FullRepository combines all repository interfaces
// Use this when a component needs access to multiple domains
type FullRepository interface {
	MemberRepository
	ReceiptRepository
	PendingRepository
	NotificationRepository
	SettingsRepository
}

// Ensure Repository implements all interfaces
var _ FullRepository = (*Repository)(nil)
