package service

import (
	"context"
	"encoding/json"

	"github.com/vendalink/channel-service/internal/domain"
	"github.com/vendalink/channel-service/internal/provider/evolution"
)

// Provider is the subset of the channel provider API the services consume.
// Implemented by evolution.Client; faked in tests.
type Provider interface {
	CreateInstance(ctx context.Context, apiKey, instanceName string) (*evolution.CreateInstanceResult, error)
	ConnectionState(ctx context.Context, apiKey, providerInstanceID string) evolution.ConnectionState
	PairingCode(ctx context.Context, apiKey, providerInstanceID string) (string, error)
	SendText(ctx context.Context, apiKey, providerInstanceID, to, body string) bool
	DeleteInstance(ctx context.Context, apiKey, providerInstanceID string) bool
	ListChats(ctx context.Context, apiKey, providerInstanceID string) ([]evolution.Chat, error)
	ListMessages(ctx context.Context, apiKey, providerInstanceID, remoteID string) (json.RawMessage, error)
}

// instanceKey picks the credential for instance-scoped provider calls. The
// persisted credential token is the single source of truth; the global key is
// only a fallback for instances provisioned before the provider issued
// per-instance tokens.
func instanceKey(inst *domain.ChannelInstance, globalKey string) string {
	if inst != nil && inst.CredentialToken != "" {
		return inst.CredentialToken
	}
	return globalKey
}
