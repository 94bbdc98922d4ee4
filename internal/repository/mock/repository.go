package mock

import (
	"context"
	"time"

	"github.com/kmpdu/evote/internal/models"
	"github.com/kmpdu/evote/internal/repository"
)

// Repository wraps a real repository and allows injecting errors for testing.
// This provides a flexible way to test error paths without complex database manipulation.
//
// Usage:
//
//	realRepo := testutil.NewTestRepository(t)
//	mockRepo := mock.NewRepository(realRepo)
//	mockRepo.AppendReceiptError = errors.New("database error")
//	session := services.NewVotingSession(services.SessionDeps{Receipts: mockRepo, ...})
//	// the cast still succeeds; the audit failure is logged
type Repository struct {
	repository.FullRepository

	// ===== Member Errors =====
	GetMemberByMemberIDError error
	SeedMembersError         error

	// ===== Receipt Errors =====
	AppendReceiptError     error
	ListReceiptsError      error
	GetReceiptByTokenError error
	ClearReceiptsError     error

	// ===== Pending Errors =====
	EnqueuePendingError error
	ListPendingError    error
	MarkReconciledError error
	RecordAttemptError  error
	ClearPendingError   error

	// ===== Notification Errors =====
	ArchiveNotificationError error
	ListNotificationsError   error

	// ===== Settings Errors =====
	GetSettingError error
	SetSettingError error
}

// NewRepository creates a mock repository wrapping a real one
func NewRepository(real repository.FullRepository) *Repository {
	return &Repository{
		FullRepository: real,
	}
}

// ===== Member Methods =====

func (m *Repository) GetMemberByMemberID(ctx context.Context, memberID string) (*models.User, error) {
	if m.GetMemberByMemberIDError != nil {
		return nil, m.GetMemberByMemberIDError
	}
	return m.FullRepository.GetMemberByMemberID(ctx, memberID)
}

func (m *Repository) SeedMembers(ctx context.Context, users []models.User) (int, error) {
	if m.SeedMembersError != nil {
		return 0, m.SeedMembersError
	}
	return m.FullRepository.SeedMembers(ctx, users)
}

// ===== Receipt Methods =====

func (m *Repository) AppendReceipt(ctx context.Context, rc models.VoteReceipt) error {
	if m.AppendReceiptError != nil {
		return m.AppendReceiptError
	}
	return m.FullRepository.AppendReceipt(ctx, rc)
}

func (m *Repository) ListReceipts(ctx context.Context, memberID string) ([]models.VoteReceipt, error) {
	if m.ListReceiptsError != nil {
		return nil, m.ListReceiptsError
	}
	return m.FullRepository.ListReceipts(ctx, memberID)
}

func (m *Repository) GetReceiptByToken(ctx context.Context, token string) (*models.VoteReceipt, error) {
	if m.GetReceiptByTokenError != nil {
		return nil, m.GetReceiptByTokenError
	}
	return m.FullRepository.GetReceiptByToken(ctx, token)
}

func (m *Repository) ClearReceipts(ctx context.Context) error {
	if m.ClearReceiptsError != nil {
		return m.ClearReceiptsError
	}
	return m.FullRepository.ClearReceipts(ctx)
}

// ===== Pending Methods =====

func (m *Repository) EnqueuePending(ctx context.Context, v models.PendingVote) error {
	if m.EnqueuePendingError != nil {
		return m.EnqueuePendingError
	}
	return m.FullRepository.EnqueuePending(ctx, v)
}

func (m *Repository) ListPending(ctx context.Context, includeReconciled bool) ([]models.PendingVote, error) {
	if m.ListPendingError != nil {
		return nil, m.ListPendingError
	}
	return m.FullRepository.ListPending(ctx, includeReconciled)
}

func (m *Repository) MarkReconciled(ctx context.Context, idempotencyKey, blockchainHash string, at time.Time) error {
	if m.MarkReconciledError != nil {
		return m.MarkReconciledError
	}
	return m.FullRepository.MarkReconciled(ctx, idempotencyKey, blockchainHash, at)
}

func (m *Repository) RecordAttempt(ctx context.Context, idempotencyKey string) error {
	if m.RecordAttemptError != nil {
		return m.RecordAttemptError
	}
	return m.FullRepository.RecordAttempt(ctx, idempotencyKey)
}

func (m *Repository) ClearPending(ctx context.Context) error {
	if m.ClearPendingError != nil {
		return m.ClearPendingError
	}
	return m.FullRepository.ClearPending(ctx)
}

// ===== Notification Methods =====

func (m *Repository) ArchiveNotification(ctx context.Context, memberKey string, n models.Notification) error {
	if m.ArchiveNotificationError != nil {
		return m.ArchiveNotificationError
	}
	return m.FullRepository.ArchiveNotification(ctx, memberKey, n)
}

func (m *Repository) ListNotifications(ctx context.Context, memberKey string) ([]models.Notification, error) {
	if m.ListNotificationsError != nil {
		return nil, m.ListNotificationsError
	}
	return m.FullRepository.ListNotifications(ctx, memberKey)
}

// ===== Settings Methods =====

func (m *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	if m.GetSettingError != nil {
		return "", m.GetSettingError
	}
	return m.FullRepository.GetSetting(ctx, key)
}

func (m *Repository) SetSetting(ctx context.Context, key, value string) error {
	if m.SetSettingError != nil {
		return m.SetSettingError
	}
	return m.FullRepository.SetSetting(ctx, key, value)
}

// Ensure Repository implements FullRepository
var _ repository.FullRepository = (*Repository)(nil)
