package repository

import (
	"errors"
	"time"

	"github.com/vendalink/channel-service/internal/domain"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no channel instance matches the lookup.
var ErrNotFound = errors.New("channel instance not found")

type Repository interface {
	Create(inst *domain.ChannelInstance) error
	GetByTenant(tenantID int64) (*domain.ChannelInstance, error)
	GetByProviderID(providerInstanceID string) (*domain.ChannelInstance, error)
	// UpdateIdentity rewrites the provider-assigned fields after a create or
	// recreate at the provider.
	UpdateIdentity(id int64, providerInstanceID, instanceName, credentialToken, pairingCode string, status domain.InstanceStatus) error
	// UpdateStatus mutates status and optionally the pairing code and last
	// sync time. Nil optionals are left untouched.
	UpdateStatus(id int64, status domain.InstanceStatus, pairingCode *string, lastSyncAt *time.Time) error
	// SetPhoneNumber records the phone number behind the session, learned
	// from the provider's connection events.
	SetPhoneNumber(id int64, phoneNumber string) error
	Delete(id int64) error
	// ListAll returns every persisted instance; used to resume supervisor
	// loops after a restart.
	ListAll() ([]domain.ChannelInstance, error)
}

type repo struct {
	db *gorm.DB
}

func NewInstanceRepository(db *gorm.DB) Repository {
	return &repo{db: db}
}

func (r *repo) Create(inst *domain.ChannelInstance) error {
	return r.db.Create(inst).Error
}

func (r *repo) GetByTenant(tenantID int64) (*domain.ChannelInstance, error) {
	var inst domain.ChannelInstance
	if err := r.db.Where("tenant_id = ?", tenantID).First(&inst).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inst, nil
}

func (r *repo) GetByProviderID(providerInstanceID string) (*domain.ChannelInstance, error) {
	var inst domain.ChannelInstance
	err := r.db.Where("provider_instance_id = ? OR instance_name = ?", providerInstanceID, providerInstanceID).
		First(&inst).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inst, nil
}

func (r *repo) UpdateIdentity(id int64, providerInstanceID, instanceName, credentialToken, pairingCode string, status domain.InstanceStatus) error {
	now := time.Now().UTC()
	return r.db.Model(&domain.ChannelInstance{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"provider_instance_id": providerInstanceID,
			"instance_name":        instanceName,
			"credential_token":     credentialToken,
			"pairing_code":         pairingCode,
			"status":               status,
			"updated_at":           &now,
		}).Error
}

func (r *repo) UpdateStatus(id int64, status domain.InstanceStatus, pairingCode *string, lastSyncAt *time.Time) error {
	now := time.Now().UTC()
	fields := map[string]any{
		"status":     status,
		"updated_at": &now,
	}
	if pairingCode != nil {
		fields["pairing_code"] = *pairingCode
	}
	if lastSyncAt != nil {
		fields["last_sync_at"] = lastSyncAt
	}
	return r.db.Model(&domain.ChannelInstance{}).Where("id = ?", id).Updates(fields).Error
}

func (r *repo) SetPhoneNumber(id int64, phoneNumber string) error {
	return r.db.Model(&domain.ChannelInstance{}).
		Where("id = ?", id).
		Update("phone_number", phoneNumber).Error
}

func (r *repo) Delete(id int64) error {
	return r.db.Delete(&domain.ChannelInstance{}, id).Error
}

func (r *repo) ListAll() ([]domain.ChannelInstance, error) {
	var instances []domain.ChannelInstance
	err := r.db.Find(&instances).Error
	return instances, err
}
