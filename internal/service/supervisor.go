package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vendalink/channel-service/internal/domain"
	instanceRepo "github.com/vendalink/channel-service/internal/repository/instance"
)

// Supervisor runs one background loop per tenant that reconciles the
// provider-reported connection state with the persisted one and performs a
// bounded delete-and-recreate recovery on sustained disconnection. It is the
// system's only self-healing mechanism, so a tick must never crash the loop.
type Supervisor struct {
	instances instanceRepo.Repository
	provider  Provider
	lifecycle *Lifecycle
	logger    *slog.Logger
	globalKey string

	interval        time.Duration
	maxRetries      int
	settleDelay     time.Duration
	recoveryTimeout time.Duration

	mtx   sync.Mutex
	loops map[int64]*tenantLoop
}

// tenantLoop is the per-tenant supervisor record. The retry counter lives in
// loopState and is touched only by the loop goroutine; external resets go
// through resetChan.
type tenantLoop struct {
	stopChan  chan struct{}
	resetChan chan struct{}
}

type loopState struct {
	tenantID   int64
	tenantName string
	retries    int
}

type SupervisorConfig struct {
	Interval        time.Duration
	MaxRetries      int
	SettleDelay     time.Duration
	RecoveryTimeout time.Duration
}

func NewSupervisor(instances instanceRepo.Repository, provider Provider, lifecycle *Lifecycle, logger *slog.Logger, globalKey string, cfg SupervisorConfig) *Supervisor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 2 * time.Second
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 45 * time.Second
	}

	return &Supervisor{
		instances:       instances,
		provider:        provider,
		lifecycle:       lifecycle,
		logger:          logger,
		globalKey:       globalKey,
		interval:        cfg.Interval,
		maxRetries:      cfg.MaxRetries,
		settleDelay:     cfg.SettleDelay,
		recoveryTimeout: cfg.RecoveryTimeout,
		loops:           make(map[int64]*tenantLoop),
	}
}

// Start launches the tenant's loop. Idempotent; a second Start for a running
// tenant is a no-op.
func (s *Supervisor) Start(tenantID int64, tenantName string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, running := s.loops[tenantID]; running {
		return
	}

	loop := &tenantLoop{
		stopChan:  make(chan struct{}),
		resetChan: make(chan struct{}, 1),
	}
	s.loops[tenantID] = loop

	go s.run(loop, &loopState{tenantID: tenantID, tenantName: tenantName})
}

// Stop cancels the tenant's loop. Called when the tenant disconnects its
// channel so timers do not leak across tenant lifecycle.
func (s *Supervisor) Stop(tenantID int64) {
	s.mtx.Lock()
	loop, running := s.loops[tenantID]
	if running {
		delete(s.loops, tenantID)
	}
	s.mtx.Unlock()

	if running {
		close(loop.stopChan)
	}
}

// StopAll cancels every loop; used on shutdown.
func (s *Supervisor) StopAll() {
	s.mtx.Lock()
	loops := s.loops
	s.loops = make(map[int64]*tenantLoop)
	s.mtx.Unlock()

	for _, loop := range loops {
		close(loop.stopChan)
	}
}

// ResetRetry asks the tenant's loop to zero its retry counter. The counter is
// owned by the loop goroutine, so the reset travels over a channel instead of
// mutating shared state.
func (s *Supervisor) ResetRetry(tenantID int64) {
	s.mtx.Lock()
	loop, running := s.loops[tenantID]
	s.mtx.Unlock()

	if !running {
		return
	}
	select {
	case loop.resetChan <- struct{}{}:
	default:
	}
}

// Running reports whether the tenant currently has a supervisor loop.
func (s *Supervisor) Running(tenantID int64) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	_, running := s.loops[tenantID]
	return running
}

func (s *Supervisor) run(loop *tenantLoop, st *loopState) {
	logger := s.logger.With(slog.Int64("tenantId", st.tenantID))
	logger.Info("supervisor loop started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(context.Background(), st)
		case <-loop.resetChan:
			st.retries = 0
			logger.Info("retry counter reset")
		case <-loop.stopChan:
			logger.Info("supervisor loop stopped")
			return
		}
	}
}

// tick runs one reconciliation pass. Every failure inside is swallowed and
// logged; only the retry counter records that something went wrong.
func (s *Supervisor) tick(ctx context.Context, st *loopState) {
	logger := s.logger.With(slog.Int64("tenantId", st.tenantID))

	inst, err := s.instances.GetByTenant(st.tenantID)
	if err != nil {
		if !errors.Is(err, instanceRepo.ErrNotFound) {
			logger.Error("failed to load instance", "error", err.Error())
		}
		return
	}

	state := s.provider.ConnectionState(ctx, instanceKey(inst, s.globalKey), inst.ProviderInstanceID)

	if state.Connected {
		now := time.Now().UTC()
		cleared := ""
		if err := s.instances.UpdateStatus(inst.ID, domain.InstanceConnected, &cleared, &now); err != nil {
			logger.Error("failed to persist connected status", "error", err.Error())
		}
		st.retries = 0
		return
	}

	if state.State == "connecting" {
		// Pairing in progress; fetch a QR if we have none so the dashboard
		// is not stuck on an empty code.
		if inst.PairingCode == "" {
			code, err := s.provider.PairingCode(ctx, instanceKey(inst, s.globalKey), inst.ProviderInstanceID)
			if err != nil {
				logger.Warn("failed to fetch pairing code", "error", err.Error())
				return
			}
			if code != "" {
				if err := s.instances.UpdateStatus(inst.ID, domain.InstanceConnecting, &code, nil); err != nil {
					logger.Error("failed to persist pairing code", "error", err.Error())
				}
			}
		}
		return
	}

	if st.retries >= s.maxRetries {
		logger.Debug("retry bound exceeded, waiting for operator reset",
			slog.Int("retries", st.retries))
		return
	}

	st.retries++
	logger.Warn("instance disconnected, attempting recovery",
		slog.String("state", state.State),
		slog.Int("attempt", st.retries),
		slog.Int("maxRetries", s.maxRetries))

	if err := s.instances.UpdateStatus(inst.ID, domain.InstanceError, nil, nil); err != nil {
		logger.Error("failed to persist error status", "error", err.Error())
	}

	if err := s.recover(ctx, st, inst); err != nil {
		logger.Error("recovery attempt failed", "error", err.Error())
		return
	}

	st.retries = 0
	logger.Info("recovery succeeded, new provider instance provisioned")
}

// recover runs the delete-settle-recreate sequence under one overall
// deadline so a hung provider call cannot starve the next tick.
func (s *Supervisor) recover(ctx context.Context, st *loopState, inst *domain.ChannelInstance) error {
	recoveryCtx, cancel := context.WithTimeout(ctx, s.recoveryTimeout)
	defer cancel()

	// Best effort: the old provider instance may already be gone.
	s.provider.DeleteInstance(recoveryCtx, instanceKey(inst, s.globalKey), inst.ProviderInstanceID)

	select {
	case <-time.After(s.settleDelay):
	case <-recoveryCtx.Done():
		return recoveryCtx.Err()
	}

	_, err := s.lifecycle.Provision(recoveryCtx, st.tenantID, st.tenantName)
	return err
}
