package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aniladanir/retry"
	"github.com/google/uuid"
	"github.com/vendalink/channel-service/internal/domain"
	"github.com/vendalink/channel-service/internal/provider/evolution"
	instanceRepo "github.com/vendalink/channel-service/internal/repository/instance"
)

// Lifecycle owns channel-instance state transitions: provisioning at the
// provider, the upsert-by-tenant persistence rule and credential handling.
type Lifecycle struct {
	instances instanceRepo.Repository
	provider  Provider
	retrier   *retry.Retrier
	logger    *slog.Logger
	globalKey string
}

func NewLifecycle(instances instanceRepo.Repository, provider Provider, logger *slog.Logger, globalKey string, provisionMaxAttempts int) (*Lifecycle, error) {
	retrier, err := retry.New(retry.WithMaxAttemps(provisionMaxAttempts))
	if err != nil {
		return nil, fmt.Errorf("encountered error when initializing retrier: %w", err)
	}

	return &Lifecycle{
		instances: instances,
		provider:  provider,
		retrier:   retrier,
		logger:    logger,
		globalKey: globalKey,
	}, nil
}

// Provision creates a provider instance for the tenant and persists it. A
// tenant that already has a row gets it updated in place, never a second row;
// tenants retry provisioning from the dashboard and duplicates would orphan
// their conversation history.
func (s *Lifecycle) Provision(ctx context.Context, tenantID int64, tenantName string) (*domain.ChannelInstance, error) {
	var (
		result  *evolution.CreateInstanceResult
		provErr error
	)

	name := uniqueInstanceName(tenantName)
	retryFunc := func(attempt int) (terminate bool) {
		res, err := s.provider.CreateInstance(ctx, s.globalKey, name)
		if err == nil {
			result = res
			provErr = nil
			return true
		}
		provErr = err

		if errors.Is(err, evolution.ErrNameConflict) {
			// Name taken at the provider; regenerate and go again.
			s.logger.Warn("instance name conflict, regenerating",
				slog.Int64("tenantId", tenantID),
				slog.Int("attempt", attempt),
				slog.String("name", name))
			name = uniqueInstanceName(tenantName)
			return false
		}

		// Credential and transport errors surface to the caller.
		return true
	}

	<-s.retrier.Retry(ctx, retryFunc, true)

	if result == nil {
		if provErr == nil {
			provErr = errors.New("provider create did not complete")
		}
		return nil, fmt.Errorf("provision tenant %d: %w", tenantID, provErr)
	}

	existing, err := s.instances.GetByTenant(tenantID)
	switch {
	case err == nil:
		if err := s.instances.UpdateIdentity(existing.ID,
			result.ProviderInstanceID, name, result.CredentialToken, result.PairingCodeImage,
			domain.InstanceConnecting); err != nil {
			return nil, fmt.Errorf("provision tenant %d: update instance: %w", tenantID, err)
		}
		return s.instances.GetByTenant(tenantID)
	case errors.Is(err, instanceRepo.ErrNotFound):
		inst := &domain.ChannelInstance{
			TenantID:           tenantID,
			ProviderInstanceID: result.ProviderInstanceID,
			InstanceName:       name,
			Status:             domain.InstanceConnecting,
			PairingCode:        result.PairingCodeImage,
			CredentialToken:    result.CredentialToken,
		}
		if err := s.instances.Create(inst); err != nil {
			return nil, fmt.Errorf("provision tenant %d: create instance: %w", tenantID, err)
		}
		return inst, nil
	default:
		return nil, fmt.Errorf("provision tenant %d: load instance: %w", tenantID, err)
	}
}

// Status returns the tenant's current instance, pairing code included, for
// the dashboard to render connecting/connected/error.
func (s *Lifecycle) Status(tenantID int64) (*domain.ChannelInstance, error) {
	return s.instances.GetByTenant(tenantID)
}

// UpdateStatus is a pure persistence mutation; callers decide the next
// status.
func (s *Lifecycle) UpdateStatus(instanceID int64, status domain.InstanceStatus, pairingCode *string, lastSyncAt *time.Time) error {
	return s.instances.UpdateStatus(instanceID, status, pairingCode, lastSyncAt)
}

// Disconnect deletes the provider instance and marks the row disconnected.
// The row itself is kept so history stays attached to the tenant.
func (s *Lifecycle) Disconnect(ctx context.Context, tenantID int64) error {
	inst, err := s.instances.GetByTenant(tenantID)
	if err != nil {
		return err
	}

	if ok := s.provider.DeleteInstance(ctx, instanceKey(inst, s.globalKey), inst.ProviderInstanceID); !ok {
		s.logger.Warn("provider delete failed during disconnect",
			slog.Int64("tenantId", tenantID),
			slog.String("instance", inst.ProviderInstanceID))
	}

	cleared := ""
	return s.instances.UpdateStatus(inst.ID, domain.InstanceDisconnected, &cleared, nil)
}

// Purge deletes the provider instance and the stored row. Used when a tenant
// leaves for good; Disconnect is the default because it keeps history
// attached.
func (s *Lifecycle) Purge(ctx context.Context, tenantID int64) error {
	inst, err := s.instances.GetByTenant(tenantID)
	if err != nil {
		return err
	}

	if ok := s.provider.DeleteInstance(ctx, instanceKey(inst, s.globalKey), inst.ProviderInstanceID); !ok {
		s.logger.Warn("provider delete failed during purge",
			slog.Int64("tenantId", tenantID),
			slog.String("instance", inst.ProviderInstanceID))
	}

	return s.instances.Delete(inst.ID)
}

// ListChats proxies the provider chat list for the tenant's instance.
func (s *Lifecycle) ListChats(ctx context.Context, tenantID int64) ([]evolution.Chat, error) {
	inst, err := s.instances.GetByTenant(tenantID)
	if err != nil {
		return nil, err
	}
	return s.provider.ListChats(ctx, instanceKey(inst, s.globalKey), inst.ProviderInstanceID)
}

// ListMessages proxies the provider-native message records for one chat.
func (s *Lifecycle) ListMessages(ctx context.Context, tenantID int64, remoteID string) (json.RawMessage, error) {
	inst, err := s.instances.GetByTenant(tenantID)
	if err != nil {
		return nil, err
	}
	return s.provider.ListMessages(ctx, instanceKey(inst, s.globalKey), inst.ProviderInstanceID, remoteID)
}

// uniqueInstanceName builds a provider-unique name from the tenant name. The
// provider namespaces instances globally, so a bare tenant name collides as
// soon as two deployments share a provider.
func uniqueInstanceName(tenantName string) string {
	slug := strings.ToLower(strings.TrimSpace(tenantName))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, slug)
	if slug == "" {
		slug = "tenant"
	}
	return fmt.Sprintf("%s-%d-%s", slug, time.Now().UnixMilli(), uuid.NewString()[:8])
}
