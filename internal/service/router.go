package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vendalink/channel-service/internal/domain"
	conversationRepo "github.com/vendalink/channel-service/internal/repository/conversation"
	instanceRepo "github.com/vendalink/channel-service/internal/repository/instance"
)

const previewLimit = 120

// InboundMessage is a normalized inbound message handed to the router by the
// webhook pipeline.
type InboundMessage struct {
	ProviderMessageID string
	FromNumber        string
	PushName          string
	Body              string
	Kind              domain.MessageKind
	OccurredAt        time.Time
}

// Router attaches inbound messages to a lead and an agent. Lead resolution,
// message append and assignment run inside a per-(tenant, phone) critical
// section: the provider delivers same-number webhooks in order, and
// serializing here keeps two back-to-back messages from racing into two
// leads.
type Router struct {
	instances     instanceRepo.Repository
	conversations conversationRepo.Repository
	provider      Provider
	notifier      *Notifier
	logger        *slog.Logger
	globalKey     string

	leadLocks [64]sync.Mutex
}

func NewRouter(instances instanceRepo.Repository, conversations conversationRepo.Repository, provider Provider, notifier *Notifier, logger *slog.Logger, globalKey string) *Router {
	return &Router{
		instances:     instances,
		conversations: conversations,
		provider:      provider,
		notifier:      notifier,
		logger:        logger,
		globalKey:     globalKey,
	}
}

// Route resolves the lead, appends the message and ensures an active
// assignment. Notification emission is isolated: it can fail without failing
// the routing.
func (r *Router) Route(ctx context.Context, inst *domain.ChannelInstance, msg InboundMessage) error {
	lock := r.lockFor(inst.TenantID, msg.FromNumber)
	lock.Lock()
	defer lock.Unlock()

	lead, leadCreated, err := r.conversations.GetOrCreateLead(inst.TenantID, msg.FromNumber, msg.PushName)
	if err != nil {
		return fmt.Errorf("resolve lead for %s: %w", msg.FromNumber, err)
	}

	appended, err := r.conversations.AppendMessage(&domain.Message{
		InstanceID:        inst.ID,
		LeadID:            lead.ID,
		ProviderMessageID: msg.ProviderMessageID,
		FromNumber:        msg.FromNumber,
		Body:              msg.Body,
		Kind:              msg.Kind,
		Direction:         domain.DirectionIncoming,
		Status:            domain.MessageDelivered,
		OccurredAt:        msg.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("append message %s: %w", msg.ProviderMessageID, err)
	}
	if !appended {
		// Duplicate webhook delivery for an already-logged message.
		r.logger.Debug("duplicate message dropped",
			slog.String("providerMessageId", msg.ProviderMessageID))
		return nil
	}

	agentID, err := r.ensureAssignment(inst, lead)
	if err != nil {
		if errors.Is(err, conversationRepo.ErrNoAgentAvailable) {
			r.logger.Warn("no agent available, message left unassigned",
				slog.Int64("tenantId", inst.TenantID),
				slog.Int64("leadId", lead.ID))
			return nil
		}
		return fmt.Errorf("assign conversation for lead %d: %w", lead.ID, err)
	}

	if leadCreated {
		r.notifier.Notify(ctx, domain.NotifyNewLead, agentID, lead, inst.ID, lead.Phone)
	}
	r.notifier.Notify(ctx, domain.NotifyNewMessage, agentID, lead, inst.ID, previewBody(msg.Body))

	return nil
}

// SendText sends an outbound reply through the tenant's instance and records
// it in the message log. Returns false when the provider rejected the send.
func (r *Router) SendText(ctx context.Context, tenantID int64, to, body string) (bool, error) {
	inst, err := r.instances.GetByTenant(tenantID)
	if err != nil {
		return false, err
	}

	lock := r.lockFor(tenantID, to)
	lock.Lock()
	defer lock.Unlock()

	lead, _, err := r.conversations.GetOrCreateLead(tenantID, to, "")
	if err != nil {
		return false, fmt.Errorf("resolve lead for %s: %w", to, err)
	}

	sent := r.provider.SendText(ctx, instanceKey(inst, r.globalKey), inst.ProviderInstanceID, to, body)

	status := domain.MessageSent
	if !sent {
		status = domain.MessageFailed
	}

	var agentID *int64
	if assignment, err := r.conversations.GetActiveAssignment(lead.ID); err == nil && assignment != nil {
		agentID = &assignment.AgentID
	}

	if _, err := r.conversations.AppendMessage(&domain.Message{
		InstanceID:        inst.ID,
		LeadID:            lead.ID,
		AgentID:           agentID,
		ProviderMessageID: "out-" + uuid.NewString(),
		FromNumber:        inst.PhoneNumber,
		ToNumber:          to,
		Body:              body,
		Kind:              domain.KindText,
		Direction:         domain.DirectionOutgoing,
		Status:            status,
		OccurredAt:        time.Now().UTC(),
	}); err != nil {
		r.logger.Error("failed to log outgoing message",
			slog.Int64("leadId", lead.ID),
			"error", err.Error())
	}

	return sent, nil
}

// ensureAssignment returns the agent handling the lead, assigning the first
// available agent when no active assignment exists.
func (r *Router) ensureAssignment(inst *domain.ChannelInstance, lead *domain.Lead) (int64, error) {
	existing, err := r.conversations.GetActiveAssignment(lead.ID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.AgentID, nil
	}

	agent, err := r.conversations.FirstAvailableAgent(inst.TenantID)
	if err != nil {
		return 0, err
	}

	assignment, err := r.conversations.UpsertAssignment(inst.ID, lead.ID, agent.ID)
	if err != nil {
		return 0, err
	}
	return assignment.AgentID, nil
}

func (r *Router) lockFor(tenantID int64, phone string) *sync.Mutex {
	h := fnv.New32a()
	fmt.Fprintf(h, "%d:%s", tenantID, phone)
	return &r.leadLocks[h.Sum32()%uint32(len(r.leadLocks))]
}

func previewBody(body string) string {
	runes := []rune(body)
	if len(runes) <= previewLimit {
		return body
	}
	return string(runes[:previewLimit]) + "..."
}
