package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/vendalink/channel-service/internal/domain"
	"github.com/vendalink/channel-service/internal/provider/evolution"
	conversationRepo "github.com/vendalink/channel-service/internal/repository/conversation"
	instanceRepo "github.com/vendalink/channel-service/internal/repository/instance"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeInstanceRepo struct {
	mtx       sync.Mutex
	seq       int64
	instances map[int64]domain.ChannelInstance
}

func newFakeInstanceRepo() *fakeInstanceRepo {
	return &fakeInstanceRepo{instances: make(map[int64]domain.ChannelInstance)}
}

func (f *fakeInstanceRepo) Create(inst *domain.ChannelInstance) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.seq++
	inst.ID = f.seq
	inst.CreatedAt = time.Now().UTC()
	f.instances[inst.ID] = *inst
	return nil
}

func (f *fakeInstanceRepo) GetByTenant(tenantID int64) (*domain.ChannelInstance, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	for _, inst := range f.instances {
		if inst.TenantID == tenantID {
			copied := inst
			return &copied, nil
		}
	}
	return nil, instanceRepo.ErrNotFound
}

func (f *fakeInstanceRepo) GetByProviderID(providerInstanceID string) (*domain.ChannelInstance, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	for _, inst := range f.instances {
		if inst.ProviderInstanceID == providerInstanceID || inst.InstanceName == providerInstanceID {
			copied := inst
			return &copied, nil
		}
	}
	return nil, instanceRepo.ErrNotFound
}

func (f *fakeInstanceRepo) UpdateIdentity(id int64, providerInstanceID, instanceName, credentialToken, pairingCode string, status domain.InstanceStatus) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	inst, ok := f.instances[id]
	if !ok {
		return instanceRepo.ErrNotFound
	}
	inst.ProviderInstanceID = providerInstanceID
	inst.InstanceName = instanceName
	inst.CredentialToken = credentialToken
	inst.PairingCode = pairingCode
	inst.Status = status
	f.instances[id] = inst
	return nil
}

func (f *fakeInstanceRepo) UpdateStatus(id int64, status domain.InstanceStatus, pairingCode *string, lastSyncAt *time.Time) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	inst, ok := f.instances[id]
	if !ok {
		return instanceRepo.ErrNotFound
	}
	inst.Status = status
	if pairingCode != nil {
		inst.PairingCode = *pairingCode
	}
	if lastSyncAt != nil {
		inst.LastSyncAt = lastSyncAt
	}
	f.instances[id] = inst
	return nil
}

func (f *fakeInstanceRepo) SetPhoneNumber(id int64, phoneNumber string) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	inst, ok := f.instances[id]
	if !ok {
		return instanceRepo.ErrNotFound
	}
	inst.PhoneNumber = phoneNumber
	f.instances[id] = inst
	return nil
}

func (f *fakeInstanceRepo) Delete(id int64) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	delete(f.instances, id)
	return nil
}

func (f *fakeInstanceRepo) ListAll() ([]domain.ChannelInstance, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	out := make([]domain.ChannelInstance, 0, len(f.instances))
	for _, inst := range f.instances {
		out = append(out, inst)
	}
	return out, nil
}

func (f *fakeInstanceRepo) count() int {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return len(f.instances)
}

type fakeProvider struct {
	mtx sync.Mutex

	createCalls []string
	createErrs  []error
	createErr   error

	state      evolution.ConnectionState
	stateCalls int

	pairingCode string
	pairingErr  error

	sendOK    bool
	sendCalls []string

	deleteCalls []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{sendOK: true}
}

func (f *fakeProvider) CreateInstance(_ context.Context, _, instanceName string) (*evolution.CreateInstanceResult, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.createCalls = append(f.createCalls, instanceName)
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &evolution.CreateInstanceResult{
		ProviderInstanceID: "evo-" + instanceName,
		PairingCodeImage:   "qr-image",
		CredentialToken:    "token-" + instanceName,
	}, nil
}

func (f *fakeProvider) ConnectionState(_ context.Context, _, _ string) evolution.ConnectionState {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.stateCalls++
	return f.state
}

func (f *fakeProvider) PairingCode(_ context.Context, _, _ string) (string, error) {
	return f.pairingCode, f.pairingErr
}

func (f *fakeProvider) SendText(_ context.Context, _, _, to, body string) bool {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.sendCalls = append(f.sendCalls, fmt.Sprintf("%s:%s", to, body))
	return f.sendOK
}

func (f *fakeProvider) DeleteInstance(_ context.Context, _, providerInstanceID string) bool {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.deleteCalls = append(f.deleteCalls, providerInstanceID)
	return true
}

func (f *fakeProvider) ListChats(_ context.Context, _, _ string) ([]evolution.Chat, error) {
	return nil, nil
}

func (f *fakeProvider) ListMessages(_ context.Context, _, _, _ string) (json.RawMessage, error) {
	return nil, nil
}

func (f *fakeProvider) createdNames() []string {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return append([]string(nil), f.createCalls...)
}

type fakeConversationRepo struct {
	mtx sync.Mutex

	leadSeq, msgSeq, asgSeq int64
	leads                   map[string]domain.Lead
	messages                map[string]domain.Message
	assignments             []domain.ConversationAssignment
	agents                  []domain.Agent
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		leads:    make(map[string]domain.Lead),
		messages: make(map[string]domain.Message),
	}
}

func leadKey(tenantID int64, phone string) string {
	return fmt.Sprintf("%d:%s", tenantID, phone)
}

func (f *fakeConversationRepo) GetOrCreateLead(tenantID int64, phone, name string) (*domain.Lead, bool, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if lead, ok := f.leads[leadKey(tenantID, phone)]; ok {
		copied := lead
		return &copied, false, nil
	}
	if name == "" {
		name = phone
	}
	f.leadSeq++
	lead := domain.Lead{
		ID:       f.leadSeq,
		TenantID: tenantID,
		Phone:    phone,
		Name:     name,
		Source:   domain.LeadSourceChannel,
	}
	f.leads[leadKey(tenantID, phone)] = lead
	copied := lead
	return &copied, true, nil
}

func (f *fakeConversationRepo) AppendMessage(msg *domain.Message) (bool, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if _, exists := f.messages[msg.ProviderMessageID]; exists {
		return false, nil
	}
	f.msgSeq++
	msg.ID = f.msgSeq
	f.messages[msg.ProviderMessageID] = *msg
	return true, nil
}

func (f *fakeConversationRepo) GetActiveAssignment(leadID int64) (*domain.ConversationAssignment, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	for _, a := range f.assignments {
		if a.LeadID == leadID && a.Status == domain.AssignmentActive {
			copied := a
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeConversationRepo) UpsertAssignment(instanceID, leadID, agentID int64) (*domain.ConversationAssignment, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	for i, a := range f.assignments {
		if a.LeadID == leadID && a.Status == domain.AssignmentActive {
			f.assignments[i].AgentID = agentID
			copied := f.assignments[i]
			return &copied, nil
		}
	}
	f.asgSeq++
	assignment := domain.ConversationAssignment{
		ID:         f.asgSeq,
		InstanceID: instanceID,
		LeadID:     leadID,
		AgentID:    agentID,
		Status:     domain.AssignmentActive,
		AssignedAt: time.Now().UTC(),
	}
	f.assignments = append(f.assignments, assignment)
	copied := assignment
	return &copied, nil
}

func (f *fakeConversationRepo) FirstAvailableAgent(tenantID int64) (*domain.Agent, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	for _, a := range f.agents {
		if a.TenantID == tenantID && a.Status == domain.AgentAvailable {
			copied := a
			return &copied, nil
		}
	}
	return nil, conversationRepo.ErrNoAgentAvailable
}

func (f *fakeConversationRepo) ListMessagesByLead(leadID int64, _ int) ([]domain.Message, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	var out []domain.Message
	for _, m := range f.messages {
		if m.LeadID == leadID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeConversationRepo) messageCount() int {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return len(f.messages)
}

func (f *fakeConversationRepo) activeAssignments(leadID int64) []domain.ConversationAssignment {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	var out []domain.ConversationAssignment
	for _, a := range f.assignments {
		if a.LeadID == leadID && a.Status == domain.AssignmentActive {
			out = append(out, a)
		}
	}
	return out
}

type fakeNotificationRepo struct {
	mtx           sync.Mutex
	notifications []domain.Notification
}

func (f *fakeNotificationRepo) Create(n *domain.Notification) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.notifications = append(f.notifications, *n)
	return nil
}

func (f *fakeNotificationRepo) ListByAgent(agentID int64, unreadOnly bool) ([]domain.Notification, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	var out []domain.Notification
	for _, n := range f.notifications {
		if n.AgentID != agentID {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeNotificationRepo) byKind(kind domain.NotificationKind) []domain.Notification {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	var out []domain.Notification
	for _, n := range f.notifications {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}
