package service

import (
	"context"
	"testing"

	"github.com/vendalink/channel-service/internal/domain"
)

const inboundHiPayload = `{
	"instance": "evo-1",
	"data": {
		"key": {"remoteJid": "5511999999999@s.whatsapp.net", "fromMe": false, "id": "m1"},
		"pushName": "Maria",
		"message": {"conversation": "Hi"},
		"messageTimestamp": 1700000000
	}
}`

type pipelineFixture struct {
	instances     *fakeInstanceRepo
	conversations *fakeConversationRepo
	notifications *fakeNotificationRepo
	provider      *fakeProvider
	pipeline      *WebhookPipeline
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	instances := newFakeInstanceRepo()
	conversations := newFakeConversationRepo()
	notifications := &fakeNotificationRepo{}
	provider := newFakeProvider()

	notifier := NewNotifier(notifications, nil, testLogger())
	router := NewRouter(instances, conversations, provider, notifier, testLogger(), "global-key")
	pipeline := NewWebhookPipeline(instances, router, nil, testLogger())

	return &pipelineFixture{
		instances:     instances,
		conversations: conversations,
		notifications: notifications,
		provider:      provider,
		pipeline:      pipeline,
	}
}

func (fx *pipelineFixture) seed(t *testing.T) *domain.ChannelInstance {
	t.Helper()
	inst := &domain.ChannelInstance{
		TenantID:           1,
		ProviderInstanceID: "evo-1",
		InstanceName:       "acme-1",
		Status:             domain.InstanceConnected,
		CredentialToken:    "token",
		PhoneNumber:        "5511888888888",
	}
	if err := fx.instances.Create(inst); err != nil {
		t.Fatalf("seed instance: %v", err)
	}
	fx.conversations.agents = append(fx.conversations.agents, domain.Agent{
		ID: 7, TenantID: 1, Name: "Ana", Status: domain.AgentAvailable,
	})
	return inst
}

func TestInboundMessageCreatesLeadMessageAssignmentNotification(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.seed(t)

	if err := fx.pipeline.Process(context.Background(), []byte(inboundHiPayload)); err != nil {
		t.Fatalf("process: %v", err)
	}

	lead, created, err := fx.conversations.GetOrCreateLead(1, "5511999999999", "")
	if err != nil || created {
		t.Fatalf("expected lead already created, created=%v err=%v", created, err)
	}

	msgs, _ := fx.conversations.ListMessagesByLead(lead.ID, 0)
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if msgs[0].Body != "Hi" || msgs[0].Direction != domain.DirectionIncoming {
		t.Errorf("message = %+v, want incoming body Hi", msgs[0])
	}
	if msgs[0].OccurredAt.Unix() != 1700000000 {
		t.Errorf("occurredAt = %v, want epoch 1700000000", msgs[0].OccurredAt)
	}

	active := fx.conversations.activeAssignments(lead.ID)
	if len(active) != 1 {
		t.Fatalf("active assignments = %d, want 1", len(active))
	}
	if active[0].AgentID != 7 {
		t.Errorf("assigned agent = %d, want 7", active[0].AgentID)
	}

	newMsg := fx.notifications.byKind(domain.NotifyNewMessage)
	if len(newMsg) != 1 {
		t.Fatalf("new_message notifications = %d, want 1", len(newMsg))
	}
	if newMsg[0].AgentID != 7 || newMsg[0].Body != "Hi" {
		t.Errorf("notification = %+v, want agent 7 body Hi", newMsg[0])
	}
	if len(fx.notifications.byKind(domain.NotifyNewLead)) != 1 {
		t.Error("expected a new_lead notification for a freshly created lead")
	}
}

func TestDuplicateWebhookDeliveryIsIdempotent(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.seed(t)

	for range 2 {
		if err := fx.pipeline.Process(context.Background(), []byte(inboundHiPayload)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if got := fx.conversations.messageCount(); got != 1 {
		t.Fatalf("messages = %d, want 1", got)
	}
	if got := len(fx.notifications.byKind(domain.NotifyNewMessage)); got != 1 {
		t.Errorf("new_message notifications = %d, want 1", got)
	}
}

func TestExistingActiveAssignmentIsKept(t *testing.T) {
	fx := newPipelineFixture(t)
	inst := fx.seed(t)

	lead, _, err := fx.conversations.GetOrCreateLead(1, "5511999999999", "Maria")
	if err != nil {
		t.Fatalf("seed lead: %v", err)
	}
	if _, err := fx.conversations.UpsertAssignment(inst.ID, lead.ID, 42); err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	if err := fx.pipeline.Process(context.Background(), []byte(inboundHiPayload)); err != nil {
		t.Fatalf("process: %v", err)
	}

	active := fx.conversations.activeAssignments(lead.ID)
	if len(active) != 1 {
		t.Fatalf("active assignments = %d, want 1", len(active))
	}
	if active[0].AgentID != 42 {
		t.Errorf("agent = %d, want existing agent 42", active[0].AgentID)
	}

	newMsg := fx.notifications.byKind(domain.NotifyNewMessage)
	if len(newMsg) != 1 || newMsg[0].AgentID != 42 {
		t.Errorf("expected the existing agent notified, got %+v", newMsg)
	}
}

func TestUnknownInstanceMessageIsDropped(t *testing.T) {
	fx := newPipelineFixture(t)
	// no instance seeded

	if err := fx.pipeline.Process(context.Background(), []byte(inboundHiPayload)); err != nil {
		t.Fatalf("process must acknowledge unknown instances, got %v", err)
	}

	if fx.conversations.messageCount() != 0 {
		t.Error("expected no message persisted for unknown instance")
	}
	if len(fx.notifications.notifications) != 0 {
		t.Error("expected no notifications for unknown instance")
	}
}

func TestConnectionUpdatePersistsStatus(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.seed(t)

	open := `{"data": {"instanceId": "evo-1", "state": "open", "wuid": "5511777777777@s.whatsapp.net"}}`
	if err := fx.pipeline.Process(context.Background(), []byte(open)); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, _ := fx.instances.GetByTenant(1)
	if got.Status != domain.InstanceConnected {
		t.Errorf("status = %s, want connected", got.Status)
	}
	if got.LastSyncAt == nil {
		t.Error("expected last sync time recorded on connect")
	}
	if got.PhoneNumber != "5511777777777" {
		t.Errorf("phone number = %s, want session wuid persisted", got.PhoneNumber)
	}

	closed := `{"data": {"instanceId": "evo-1", "state": "close"}}`
	if err := fx.pipeline.Process(context.Background(), []byte(closed)); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, _ = fx.instances.GetByTenant(1)
	if got.Status != domain.InstanceDisconnected {
		t.Errorf("status = %s, want disconnected", got.Status)
	}
}

func TestConnectionUpdateUnknownInstanceIsDropped(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.seed(t)

	payload := `{"data": {"instanceId": "evo-unknown", "state": "open"}}`
	if err := fx.pipeline.Process(context.Background(), []byte(payload)); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, _ := fx.instances.GetByTenant(1)
	if got.Status != domain.InstanceConnected {
		t.Errorf("status = %s, want untouched connected", got.Status)
	}
}

func TestPairingUpdateForcesConnecting(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.seed(t)

	payload := `{"data": {"instanceId": "evo-1", "qrcode": {"base64": "img-data"}}}`
	if err := fx.pipeline.Process(context.Background(), []byte(payload)); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, _ := fx.instances.GetByTenant(1)
	if got.Status != domain.InstanceConnecting {
		t.Errorf("status = %s, want connecting", got.Status)
	}
	if got.PairingCode != "img-data" {
		t.Errorf("pairing code = %q, want img-data", got.PairingCode)
	}
}

func TestMalformedEnvelopeReturnsError(t *testing.T) {
	fx := newPipelineFixture(t)

	if err := fx.pipeline.Process(context.Background(), []byte("not json")); err == nil {
		t.Fatal("expected error on malformed envelope")
	}
	if err := fx.pipeline.Process(context.Background(), []byte(`{"foo": 1}`)); err == nil {
		t.Fatal("expected error on envelope without data")
	}
}

func TestOwnMessageEchoIsSkipped(t *testing.T) {
	fx := newPipelineFixture(t)
	fx.seed(t)

	payload := `{
		"instance": "evo-1",
		"data": {
			"key": {"remoteJid": "5511999999999@s.whatsapp.net", "fromMe": true, "id": "m2"},
			"message": {"conversation": "our own reply"},
			"messageTimestamp": 1700000001
		}
	}`
	if err := fx.pipeline.Process(context.Background(), []byte(payload)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if fx.conversations.messageCount() != 0 {
		t.Error("expected own-message echo to be skipped")
	}
}
