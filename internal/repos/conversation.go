package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/livedesk/backend/internal/platform/logger"
	"github.com/livedesk/backend/internal/types"
)

var ErrNotFound = errors.New("conversation not found")

type ConversationFilter struct {
	Status        types.ConversationStatus
	AssignedStaff *uuid.UUID
	ExcludeClosed bool
}

type ConversationRepo interface {
	Create(ctx context.Context, tx *gorm.DB, conv *types.Conversation) (*types.Conversation, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Conversation, error)
	GetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID) (types.ConversationStatus, error)
	List(ctx context.Context, tx *gorm.DB, filter ConversationFilter) ([]*types.Conversation, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status types.ConversationStatus) error
	UpdateAssignment(ctx context.Context, tx *gorm.DB, id uuid.UUID, staffID uuid.UUID, status types.ConversationStatus) error
	TouchActivity(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error

	AppendMessage(ctx context.Context, tx *gorm.DB, msg *types.Message) (*types.Message, error)
	GetMessage(ctx context.Context, tx *gorm.DB, conversationID, messageID uuid.UUID) (*types.Message, error)
	NextSeq(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) (int64, error)
	MarkVisitorMessagesRead(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) error
}

type conversationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationRepo(db *gorm.DB, baseLog *logger.Logger) ConversationRepo {
	repoLog := baseLog.With("repo", "ConversationRepo")
	return &conversationRepo{db: db, log: repoLog}
}

func (cr *conversationRepo) Create(ctx context.Context, tx *gorm.DB, conv *types.Conversation) (*types.Conversation, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	if err := transaction.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, err
	}

	return conv, nil
}

func (cr *conversationRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Conversation, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	var conv types.Conversation
	err := transaction.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		}).
		Where("id = ?", id).
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &conv, nil
}

func (cr *conversationRepo) GetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID) (types.ConversationStatus, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	var status types.ConversationStatus
	err := transaction.WithContext(ctx).
		Model(&types.Conversation{}).
		Where("id = ?", id).
		Select("status").
		Scan(&status).Error
	if err != nil {
		return "", err
	}
	if status == "" {
		return "", ErrNotFound
	}

	return status, nil
}

func (cr *conversationRepo) List(ctx context.Context, tx *gorm.DB, filter ConversationFilter) ([]*types.Conversation, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	q := transaction.WithContext(ctx).Model(&types.Conversation{})
	if filter.ExcludeClosed {
		q = q.Where("status <> ?", types.StatusClosed)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.AssignedStaff != nil {
		q = q.Where("assigned_staff_id = ?", *filter.AssignedStaff)
	}

	var results []*types.Conversation
	if err := q.Order("last_activity_at DESC, created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}

	return results, nil
}

func (cr *conversationRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status types.ConversationStatus) error {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	res := transaction.WithContext(ctx).
		Model(&types.Conversation{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (cr *conversationRepo) UpdateAssignment(ctx context.Context, tx *gorm.DB, id uuid.UUID, staffID uuid.UUID, status types.ConversationStatus) error {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	res := transaction.WithContext(ctx).
		Model(&types.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"assigned_staff_id": staffID,
			"status":            status,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (cr *conversationRepo) TouchActivity(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	return transaction.WithContext(ctx).
		Model(&types.Conversation{}).
		Where("id = ?", id).
		Update("last_activity_at", transaction.NowFunc()).Error
}

func (cr *conversationRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	if err := transaction.WithContext(ctx).
		Where("conversation_id = ?", id).
		Delete(&types.Message{}).Error; err != nil {
		return err
	}

	res := transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.Conversation{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (cr *conversationRepo) AppendMessage(ctx context.Context, tx *gorm.DB, msg *types.Message) (*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	if err := transaction.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, err
	}

	return msg, nil
}

func (cr *conversationRepo) GetMessage(ctx context.Context, tx *gorm.DB, conversationID, messageID uuid.UUID) (*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	var msg types.Message
	err := transaction.WithContext(ctx).
		Where("conversation_id = ? AND id = ?", conversationID, messageID).
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &msg, nil
}

func (cr *conversationRepo) NextSeq(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	var maxSeq int64
	err := transaction.WithContext(ctx).
		Model(&types.Message{}).
		Where("conversation_id = ?", conversationID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&maxSeq).Error
	if err != nil {
		return 0, err
	}

	return maxSeq + 1, nil
}

func (cr *conversationRepo) MarkVisitorMessagesRead(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	return transaction.WithContext(ctx).
		Model(&types.Message{}).
		Where("conversation_id = ? AND sender_kind = ? AND read = ?", conversationID, types.SenderVisitor, false).
		Update("read", true).Error
}
