package repository

import (
	"errors"
	"time"

	"github.com/vendalink/channel-service/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNoAgentAvailable is returned when the tenant has no agent to assign.
var ErrNoAgentAvailable = errors.New("no available agent for tenant")

type Repository interface {
	// GetOrCreateLead resolves a lead by (tenant, phone), creating it with
	// the phone number as a temporary name when absent. Safe under
	// concurrent webhook deliveries for the same number thanks to the
	// (tenant_id, phone) unique index.
	GetOrCreateLead(tenantID int64, phone, name string) (lead *domain.Lead, created bool, err error)
	// AppendMessage inserts a message unless one with the same provider
	// message id already exists. Reports whether a row was created.
	AppendMessage(msg *domain.Message) (created bool, err error)
	GetActiveAssignment(leadID int64) (*domain.ConversationAssignment, error)
	// UpsertAssignment keeps at most one active assignment per lead: an
	// existing active row gets its agent updated, otherwise a new row is
	// inserted.
	UpsertAssignment(instanceID, leadID, agentID int64) (*domain.ConversationAssignment, error)
	FirstAvailableAgent(tenantID int64) (*domain.Agent, error)
	ListMessagesByLead(leadID int64, limit int) ([]domain.Message, error)
}

type repo struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) Repository {
	return &repo{db: db}
}

func (r *repo) GetOrCreateLead(tenantID int64, phone, name string) (*domain.Lead, bool, error) {
	if name == "" {
		name = phone
	}

	lead := domain.Lead{
		TenantID: tenantID,
		Phone:    phone,
		Name:     name,
		Source:   domain.LeadSourceChannel,
	}

	// Insert-if-absent first so two concurrent deliveries for a new number
	// cannot both create a lead; the loser of the conflict reads the row the
	// winner inserted.
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "phone"}},
		DoNothing: true,
	}).Create(&lead)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return &lead, true, nil
	}

	var existing domain.Lead
	if err := r.db.Where("tenant_id = ? AND phone = ?", tenantID, phone).First(&existing).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (r *repo) AppendMessage(msg *domain.Message) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_message_id"}},
		DoNothing: true,
	}).Create(msg)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) GetActiveAssignment(leadID int64) (*domain.ConversationAssignment, error) {
	var assignment domain.ConversationAssignment
	err := r.db.Where("lead_id = ? AND status = ?", leadID, domain.AssignmentActive).
		First(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &assignment, nil
}

func (r *repo) UpsertAssignment(instanceID, leadID, agentID int64) (*domain.ConversationAssignment, error) {
	var assignment *domain.ConversationAssignment

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var existing domain.ConversationAssignment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("lead_id = ? AND status = ?", leadID, domain.AssignmentActive).
			First(&existing).Error

		if err == nil {
			if existing.AgentID != agentID {
				if err := tx.Model(&domain.ConversationAssignment{}).
					Where("id = ?", existing.ID).
					Update("agent_id", agentID).Error; err != nil {
					return err
				}
				existing.AgentID = agentID
			}
			assignment = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		created := domain.ConversationAssignment{
			InstanceID: instanceID,
			LeadID:     leadID,
			AgentID:    agentID,
			Status:     domain.AssignmentActive,
			AssignedAt: time.Now().UTC(),
		}
		if err := tx.Create(&created).Error; err != nil {
			return err
		}
		assignment = &created
		return nil
	})

	return assignment, err
}

func (r *repo) FirstAvailableAgent(tenantID int64) (*domain.Agent, error) {
	var agent domain.Agent
	err := r.db.Where("tenant_id = ? AND status = ?", tenantID, domain.AgentAvailable).
		Order("id asc").
		First(&agent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoAgentAvailable
		}
		return nil, err
	}
	return &agent, nil
}

func (r *repo) ListMessagesByLead(leadID int64, limit int) ([]domain.Message, error) {
	var messages []domain.Message
	q := r.db.Where("lead_id = ?", leadID).Order("occurred_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&messages).Error
	return messages, err
}
