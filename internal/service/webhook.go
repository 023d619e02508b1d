package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vendalink/channel-service/internal/cache"
	"github.com/vendalink/channel-service/internal/domain"
	"github.com/vendalink/channel-service/internal/provider/evolution"
	instanceRepo "github.com/vendalink/channel-service/internal/repository/instance"
)

const dedupeTTL = 24 * time.Hour

// WebhookPipeline is the single entry point for provider callbacks. It
// classifies the payload and applies its effects. Internal failures are
// logged, never surfaced: the provider has no retry semantics a CRM-side
// error could usefully drive.
type WebhookPipeline struct {
	instances instanceRepo.Repository
	router    *Router
	dedupe    cache.Cache
	logger    *slog.Logger
}

func NewWebhookPipeline(instances instanceRepo.Repository, router *Router, dedupe cache.Cache, logger *slog.Logger) *WebhookPipeline {
	return &WebhookPipeline{
		instances: instances,
		router:    router,
		dedupe:    dedupe,
		logger:    logger,
	}
}

// Process handles one raw webhook body. The only error it returns is an
// envelope parse failure; everything past that point acknowledges the
// provider regardless of outcome.
func (p *WebhookPipeline) Process(ctx context.Context, body []byte) error {
	event, err := evolution.ParseWebhook(body)
	if err != nil {
		return err
	}

	switch ev := event.(type) {
	case evolution.MessageEvent:
		p.handleMessage(ctx, ev)
	case evolution.ConnectionEvent:
		p.handleConnection(ev)
	case evolution.PairingEvent:
		p.handlePairing(ev)
	case evolution.UnrecognizedEvent:
		p.logger.Info("unrecognized webhook payload dropped")
	}

	return nil
}

func (p *WebhookPipeline) handleMessage(ctx context.Context, ev evolution.MessageEvent) {
	if ev.FromMe {
		// Echoes of our own sends; the outbound path already logged them.
		return
	}

	if p.dedupe != nil {
		fresh, err := p.dedupe.SetNX(ctx, "wh:msg:"+ev.ProviderMessageID, "1", dedupeTTL)
		if err != nil {
			p.logger.Warn("dedupe cache unavailable, falling back to store constraint", "error", err.Error())
		} else if !fresh {
			p.logger.Debug("duplicate webhook dropped by cache",
				slog.String("providerMessageId", ev.ProviderMessageID))
			return
		}
	}

	inst, err := p.instances.GetByProviderID(ev.InstanceID)
	if err != nil {
		if errors.Is(err, instanceRepo.ErrNotFound) {
			// Expected during tenant churn and recreation windows.
			p.logger.Info("message for unknown instance dropped",
				slog.String("instance", ev.InstanceID))
			return
		}
		p.logger.Error("failed to resolve instance", "error", err.Error())
		return
	}

	msg := InboundMessage{
		ProviderMessageID: ev.ProviderMessageID,
		FromNumber:        ev.FromNumber,
		PushName:          ev.PushName,
		Body:              ev.Body,
		Kind:              messageKind(ev.Kind),
		OccurredAt:        ev.OccurredAt,
	}
	if err := p.router.Route(ctx, inst, msg); err != nil {
		p.logger.Error("failed to route inbound message",
			slog.String("providerMessageId", ev.ProviderMessageID),
			"error", err.Error())
	}
}

func (p *WebhookPipeline) handleConnection(ev evolution.ConnectionEvent) {
	inst, err := p.instances.GetByProviderID(ev.InstanceID)
	if err != nil {
		if errors.Is(err, instanceRepo.ErrNotFound) {
			p.logger.Info("connection update for unknown instance dropped",
				slog.String("instance", ev.InstanceID))
			return
		}
		p.logger.Error("failed to resolve instance", "error", err.Error())
		return
	}

	if ev.State == "open" {
		now := time.Now().UTC()
		cleared := ""
		if err := p.instances.UpdateStatus(inst.ID, domain.InstanceConnected, &cleared, &now); err != nil {
			p.logger.Error("failed to persist connected status", "error", err.Error())
		}
		if ev.OwnerNumber != "" && ev.OwnerNumber != inst.PhoneNumber {
			if err := p.instances.SetPhoneNumber(inst.ID, ev.OwnerNumber); err != nil {
				p.logger.Error("failed to persist session phone number", "error", err.Error())
			}
		}
		return
	}

	if err := p.instances.UpdateStatus(inst.ID, domain.InstanceDisconnected, nil, nil); err != nil {
		p.logger.Error("failed to persist disconnected status", "error", err.Error())
	}
}

func (p *WebhookPipeline) handlePairing(ev evolution.PairingEvent) {
	inst, err := p.instances.GetByProviderID(ev.InstanceID)
	if err != nil {
		if errors.Is(err, instanceRepo.ErrNotFound) {
			p.logger.Info("pairing update for unknown instance dropped",
				slog.String("instance", ev.InstanceID))
			return
		}
		p.logger.Error("failed to resolve instance", "error", err.Error())
		return
	}

	// A fresh QR always puts the instance back into pairing.
	if err := p.instances.UpdateStatus(inst.ID, domain.InstanceConnecting, &ev.ImageB64, nil); err != nil {
		p.logger.Error("failed to persist pairing code", "error", err.Error())
	}
}

func messageKind(kind string) domain.MessageKind {
	switch kind {
	case "image":
		return domain.KindImage
	case "audio":
		return domain.KindAudio
	case "video":
		return domain.KindVideo
	case "document":
		return domain.KindDocument
	default:
		return domain.KindText
	}
}
