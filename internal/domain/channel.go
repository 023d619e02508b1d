package domain

import (
	"time"
)

type InstanceStatus string

const (
	InstanceDisconnected InstanceStatus = "disconnected"
	InstanceConnecting   InstanceStatus = "connecting"
	InstanceConnected    InstanceStatus = "connected"
	InstanceError        InstanceStatus = "error"
)

// ChannelInstance is the provider-side WhatsApp session owned by one tenant.
// At most one live row per tenant; provisioning for a tenant that already has
// a row updates it in place instead of inserting a second one.
type ChannelInstance struct {
	ID                 int64          `gorm:"primaryKey" json:"id"`
	TenantID           int64          `gorm:"not null;uniqueIndex" json:"tenant_id"`
	ProviderInstanceID string         `gorm:"type:varchar(255);index" json:"provider_instance_id"`
	InstanceName       string         `gorm:"type:varchar(255)" json:"instance_name"`
	PhoneNumber        string         `gorm:"type:varchar(32)" json:"phone_number"`
	Status             InstanceStatus `gorm:"type:varchar(16);not null;default:'disconnected'" json:"status"`
	PairingCode        string         `gorm:"type:text" json:"pairing_code,omitempty"`
	CredentialToken    string         `gorm:"type:varchar(255)" json:"-"`
	LastSyncAt         *time.Time     `json:"last_sync_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          *time.Time     `json:"updated_at"`
}
