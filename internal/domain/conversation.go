package domain

import (
	"time"
)

const (
	LeadSourceChannel = "channel"

	AgentAvailable = "available"
	AgentAway      = "away"
)

// Lead is a CRM contact. Leads created from inbound messages start with the
// phone number as a temporary name until an agent renames them.
type Lead struct {
	ID        int64      `gorm:"primaryKey" json:"id"`
	TenantID  int64      `gorm:"not null;uniqueIndex:idx_lead_tenant_phone" json:"tenant_id"`
	Name      string     `gorm:"type:varchar(255);not null" json:"name"`
	Phone     string     `gorm:"type:varchar(32);not null;uniqueIndex:idx_lead_tenant_phone" json:"phone"`
	Source    string     `gorm:"type:varchar(32)" json:"source"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type Agent struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	TenantID  int64     `gorm:"not null;index" json:"tenant_id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Status    string    `gorm:"type:varchar(16);not null;default:'available'" json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindAudio    MessageKind = "audio"
	KindVideo    MessageKind = "video"
	KindDocument MessageKind = "document"
)

type MessageDirection string

const (
	DirectionIncoming MessageDirection = "incoming"
	DirectionOutgoing MessageDirection = "outgoing"
)

type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
)

// Message is one inbound or outbound message on a channel instance. Immutable
// after creation except Status, which only advances for outgoing messages.
type Message struct {
	ID                int64            `gorm:"primaryKey" json:"id"`
	InstanceID        int64            `gorm:"not null;index" json:"instance_id"`
	LeadID            int64            `gorm:"not null;index" json:"lead_id"`
	AgentID           *int64           `json:"agent_id,omitempty"`
	ProviderMessageID string           `gorm:"type:varchar(255);not null;uniqueIndex" json:"provider_message_id"`
	FromNumber        string           `gorm:"type:varchar(32);not null" json:"from_number"`
	ToNumber          string           `gorm:"type:varchar(32)" json:"to_number,omitempty"`
	Body              string           `gorm:"type:text" json:"body"`
	Kind              MessageKind      `gorm:"type:varchar(16);not null;default:'text'" json:"kind"`
	Direction         MessageDirection `gorm:"type:varchar(16);not null" json:"direction"`
	Status            MessageStatus    `gorm:"type:varchar(16);not null;default:'sent'" json:"status"`
	OccurredAt        time.Time        `gorm:"not null" json:"occurred_at"`
	CreatedAt         time.Time        `json:"created_at"`
}

type AssignmentStatus string

const (
	AssignmentActive AssignmentStatus = "active"
	AssignmentPaused AssignmentStatus = "paused"
	AssignmentClosed AssignmentStatus = "closed"
)

// ConversationAssignment links a lead to the agent handling it. At most one
// active assignment per lead; re-routing updates the active row's agent.
type ConversationAssignment struct {
	ID         int64            `gorm:"primaryKey" json:"id"`
	InstanceID int64            `gorm:"not null;index" json:"instance_id"`
	LeadID     int64            `gorm:"not null;index" json:"lead_id"`
	AgentID    int64            `gorm:"not null;index" json:"agent_id"`
	Status     AssignmentStatus `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
	AssignedAt time.Time        `json:"assigned_at"`
	ClosedAt   *time.Time       `json:"closed_at,omitempty"`
}

type NotificationKind string

const (
	NotifyNewMessage NotificationKind = "new_message"
	NotifyNewLead    NotificationKind = "new_lead"
	NotifyAssignment NotificationKind = "assignment"
)

// Notification is an agent-facing alert. Created by the router, marked read
// by the dashboard.
type Notification struct {
	ID         string           `gorm:"type:varchar(36);primaryKey" json:"id"`
	AgentID    int64            `gorm:"not null;index" json:"agent_id"`
	LeadID     int64            `gorm:"not null;index" json:"lead_id"`
	InstanceID int64            `gorm:"not null" json:"instance_id"`
	Kind       NotificationKind `gorm:"type:varchar(32);not null" json:"kind"`
	Body       string           `gorm:"type:varchar(512)" json:"body"`
	IsRead     bool             `gorm:"not null;default:false" json:"is_read"`
	CreatedAt  time.Time        `json:"created_at"`
}
