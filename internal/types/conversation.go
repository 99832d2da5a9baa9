package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ConversationStatus string

const (
	StatusWaiting ConversationStatus = "waiting"
	StatusActive  ConversationStatus = "active"
	StatusClosed  ConversationStatus = "closed"
)

// statusRank encodes the one-directional lifecycle. A transition is legal
// only when the rank strictly increases.
var statusRank = map[ConversationStatus]int{
	StatusWaiting: 0,
	StatusActive:  1,
	StatusClosed:  2,
}

func (s ConversationStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next respects the
// waiting -> active -> closed order. closed is terminal.
func (s ConversationStatus) CanTransitionTo(next ConversationStatus) bool {
	from, okFrom := statusRank[s]
	to, okTo := statusRank[next]
	if !okFrom || !okTo {
		return false
	}
	return to > from
}

type SenderKind string

const (
	SenderVisitor SenderKind = "visitor"
	SenderStaff   SenderKind = "staff"
	SenderSystem  SenderKind = "system"
)

type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
)

// Attachment references uploaded content by URL only; bytes never travel
// through the chat layer.
type Attachment struct {
	Kind AttachmentKind `json:"kind"`
	URL  string         `json:"url"`
	Name string         `json:"name,omitempty"`
	Size int64          `json:"size,omitempty"`
}

type Conversation struct {
	ID             uuid.UUID                      `gorm:"type:uuid;primaryKey" json:"id"`
	VisitorConnRef string                         `gorm:"not null;column:visitor_conn_ref" json:"visitor_conn_ref"`
	OwnerUserID    *uuid.UUID                     `gorm:"type:uuid;column:owner_user_id" json:"owner_user_id,omitempty"`
	DisplayName    string                         `gorm:"not null;column:display_name" json:"display_name"`
	ContactEmail   string                         `gorm:"column:contact_email" json:"contact_email,omitempty"`
	Status         ConversationStatus             `gorm:"not null;default:'waiting';column:status;index" json:"status"`
	AssignedStaff  *uuid.UUID                     `gorm:"type:uuid;column:assigned_staff_id" json:"assigned_staff_id,omitempty"`
	Messages       []Message                      `gorm:"foreignKey:ConversationID;references:ID" json:"messages"`
	LastActivityAt time.Time                      `gorm:"not null;column:last_activity_at;index" json:"last_activity_at"`
	Metadata       datatypes.JSONType[ClientMeta] `gorm:"column:metadata" json:"metadata"`
	CreatedAt      time.Time                      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time                      `gorm:"not null" json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversation"
}

// ClientMeta is captured once at start_conversation and never updated.
type ClientMeta struct {
	Browser string `json:"browser,omitempty"`
	OS      string `json:"os,omitempty"`
	IP      string `json:"ip,omitempty"`
}

type Message struct {
	ID             uuid.UUID                       `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID                       `gorm:"type:uuid;not null;column:conversation_id;index" json:"conversation_id"`
	Seq            int64                           `gorm:"not null;column:seq" json:"seq"`
	SenderKind     SenderKind                      `gorm:"not null;column:sender_kind" json:"sender_kind"`
	SenderID       *uuid.UUID                      `gorm:"type:uuid;column:sender_id" json:"sender_id,omitempty"`
	Content        string                          `gorm:"not null;column:content" json:"content"`
	Attachments    datatypes.JSONSlice[Attachment] `gorm:"column:attachments" json:"attachments,omitempty"`
	Read           bool                            `gorm:"not null;default:false;column:read" json:"read"`
	CreatedAt      time.Time                       `gorm:"not null;column:created_at" json:"created_at"`
}

func (Message) TableName() string {
	return "message"
}
