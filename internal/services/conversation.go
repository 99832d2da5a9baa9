package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/livedesk/backend/internal/platform/logger"
	"github.com/livedesk/backend/internal/repos"
	"github.com/livedesk/backend/internal/types"
)

var (
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrConversationClosed = errors.New("conversation closed")
)

const systemStartMessage = "Sohbet başlatıldı"

type StartInput struct {
	VisitorConnRef string
	OwnerUserID    *uuid.UUID
	DisplayName    string
	ContactEmail   string
	ClientMeta     types.ClientMeta
}

type AppendInput struct {
	// MessageID is optional. When the caller resends a message it already
	// holds an id for, the append is idempotent: the stored copy is
	// returned and the transcript gains no duplicate entry.
	MessageID   *uuid.UUID
	SenderKind  types.SenderKind
	SenderID    *uuid.UUID
	Content     string
	Attachments []types.Attachment
}

type ConversationService interface {
	Start(ctx context.Context, input StartInput) (*types.Conversation, error)
	Append(ctx context.Context, conversationID uuid.UUID, input AppendInput) (*types.Message, error)
	SetStatus(ctx context.Context, conversationID uuid.UUID, status types.ConversationStatus) (*types.Conversation, error)
	Assign(ctx context.Context, conversationID uuid.UUID, staffID uuid.UUID) (*types.Conversation, error)
	Get(ctx context.Context, conversationID uuid.UUID, markRead bool) (*types.Conversation, error)
	List(ctx context.Context, filter repos.ConversationFilter) ([]*types.Conversation, error)
	Delete(ctx context.Context, conversationID uuid.UUID) error
}

type conversationService struct {
	db           *gorm.DB
	log          *logger.Logger
	convRepo     repos.ConversationRepo
	storeTimeout time.Duration

	// locks serializes mutations per conversation id. Appends and status
	// changes to the same conversation are linearized; different
	// conversations proceed in parallel.
	locks sync.Map
}

func NewConversationService(
	db *gorm.DB,
	log *logger.Logger,
	convRepo repos.ConversationRepo,
	storeTimeout time.Duration,
) ConversationService {
	serviceLog := log.With("service", "ConversationService")
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &conversationService{
		db:           db,
		log:          serviceLog,
		convRepo:     convRepo,
		storeTimeout: storeTimeout,
	}
}

func (cs *conversationService) lockFor(id uuid.UUID) *sync.Mutex {
	val, _ := cs.locks.LoadOrStore(id, &sync.Mutex{})
	return val.(*sync.Mutex)
}

func (cs *conversationService) Start(ctx context.Context, input StartInput) (*types.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, cs.storeTimeout)
	defer cancel()

	displayName := input.DisplayName
	if displayName == "" {
		displayName = "Ziyaretçi"
	}

	now := time.Now()
	conv := &types.Conversation{
		ID:             uuid.New(),
		VisitorConnRef: input.VisitorConnRef,
		OwnerUserID:    input.OwnerUserID,
		DisplayName:    displayName,
		ContactEmail:   input.ContactEmail,
		Status:         types.StatusWaiting,
		LastActivityAt: now,
		Metadata:       datatypes.NewJSONType(input.ClientMeta),
	}

	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, cErr := cs.convRepo.Create(ctx, tx, conv); cErr != nil {
			return fmt.Errorf("create conversation: %w", cErr)
		}
		sysMsg := &types.Message{
			ID:             uuid.New(),
			ConversationID: conv.ID,
			Seq:            1,
			SenderKind:     types.SenderSystem,
			Content:        systemStartMessage,
			CreatedAt:      now,
		}
		if _, mErr := cs.convRepo.AppendMessage(ctx, tx, sysMsg); mErr != nil {
			return fmt.Errorf("append system message: %w", mErr)
		}
		conv.Messages = []types.Message{*sysMsg}
		return nil
	})
	if err != nil {
		cs.log.Error("Failed to start conversation", "error", err)
		return nil, err
	}

	cs.log.Info("Conversation started", "conversationID", conv.ID, "name", conv.DisplayName)
	return conv, nil
}

func (cs *conversationService) Append(ctx context.Context, conversationID uuid.UUID, input AppendInput) (*types.Message, error) {
	lock := cs.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, cs.storeTimeout)
	defer cancel()

	var stored *types.Message
	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		status, sErr := cs.convRepo.GetStatus(ctx, tx, conversationID)
		if sErr != nil {
			return sErr
		}
		if status == types.StatusClosed {
			return ErrConversationClosed
		}

		msgID := uuid.New()
		if input.MessageID != nil && *input.MessageID != uuid.Nil {
			existing, gErr := cs.convRepo.GetMessage(ctx, tx, conversationID, *input.MessageID)
			if gErr == nil {
				stored = existing
				return nil
			}
			if !errors.Is(gErr, repos.ErrNotFound) {
				return gErr
			}
			msgID = *input.MessageID
		}

		seq, nErr := cs.convRepo.NextSeq(ctx, tx, conversationID)
		if nErr != nil {
			return fmt.Errorf("next seq: %w", nErr)
		}

		msg := &types.Message{
			ID:             msgID,
			ConversationID: conversationID,
			Seq:            seq,
			SenderKind:     input.SenderKind,
			SenderID:       input.SenderID,
			Content:        input.Content,
			Attachments:    datatypes.NewJSONSlice(input.Attachments),
			CreatedAt:      time.Now(),
		}
		if _, aErr := cs.convRepo.AppendMessage(ctx, tx, msg); aErr != nil {
			return fmt.Errorf("append message: %w", aErr)
		}
		if tErr := cs.convRepo.TouchActivity(ctx, tx, conversationID); tErr != nil {
			return fmt.Errorf("touch activity: %w", tErr)
		}
		stored = msg
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stored, nil
}

func (cs *conversationService) SetStatus(ctx context.Context, conversationID uuid.UUID, status types.ConversationStatus) (*types.Conversation, error) {
	lock := cs.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, cs.storeTimeout)
	defer cancel()

	if !status.Valid() {
		return nil, ErrInvalidTransition
	}

	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, sErr := cs.convRepo.GetStatus(ctx, tx, conversationID)
		if sErr != nil {
			return sErr
		}
		if !current.CanTransitionTo(status) {
			return ErrInvalidTransition
		}
		return cs.convRepo.UpdateStatus(ctx, tx, conversationID, status)
	})
	if err != nil {
		return nil, err
	}

	cs.log.Info("Conversation status changed", "conversationID", conversationID, "status", status)
	return cs.convRepo.GetByID(ctx, nil, conversationID)
}

// Assign sets the owning staff member and promotes a waiting conversation
// to active. Assigning an already active or closed conversation is a
// no-op, not an error.
func (cs *conversationService) Assign(ctx context.Context, conversationID uuid.UUID, staffID uuid.UUID) (*types.Conversation, error) {
	lock := cs.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, cs.storeTimeout)
	defer cancel()

	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, sErr := cs.convRepo.GetStatus(ctx, tx, conversationID)
		if sErr != nil {
			return sErr
		}
		if current != types.StatusWaiting {
			return nil
		}
		return cs.convRepo.UpdateAssignment(ctx, tx, conversationID, staffID, types.StatusActive)
	})
	if err != nil {
		return nil, err
	}

	return cs.convRepo.GetByID(ctx, nil, conversationID)
}

func (cs *conversationService) Get(ctx context.Context, conversationID uuid.UUID, markRead bool) (*types.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, cs.storeTimeout)
	defer cancel()

	if markRead {
		if err := cs.convRepo.MarkVisitorMessagesRead(ctx, nil, conversationID); err != nil {
			cs.log.Warn("Failed to mark visitor messages read", "conversationID", conversationID, "error", err)
		}
	}

	return cs.convRepo.GetByID(ctx, nil, conversationID)
}

func (cs *conversationService) List(ctx context.Context, filter repos.ConversationFilter) ([]*types.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, cs.storeTimeout)
	defer cancel()

	return cs.convRepo.List(ctx, nil, filter)
}

func (cs *conversationService) Delete(ctx context.Context, conversationID uuid.UUID) error {
	lock := cs.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, cs.storeTimeout)
	defer cancel()

	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return cs.convRepo.Delete(ctx, tx, conversationID)
	})
	if err != nil {
		return err
	}

	cs.locks.Delete(conversationID)
	cs.log.Info("Conversation deleted", "conversationID", conversationID)
	return nil
}
