// internal/service/target_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"v850-service/internal/config"
	"v850-service/internal/device"
	"v850-service/internal/model"
	"v850-service/internal/repository"
	"v850-service/internal/sequencer"
	"v850-service/internal/utils"
)

// Connector opens a link to the selected bridge.
type Connector func(ctx context.Context, sel device.Selector) (*device.Link, error)

// Resolver pins a selection to one physical bridge before its slot is
// taken, so equivalent selections share a slot.
type Resolver func(ctx context.Context, sel device.Selector) (device.Selector, error)

// Publisher receives session events.
type Publisher interface {
	Publish(event *model.SessionEvent)
}

// TargetRequest describes one operation against the target.
type TargetRequest struct {
	Operation    model.OperationType
	Selector     device.Selector
	OscillatorHz uint32
	BaudRate     uint32
}

// TargetService runs sequencer operations as recorded sessions.
type TargetService struct {
	config    *config.Config
	sessions  repository.SessionRepository
	connect   Connector
	resolve   Resolver
	publisher Publisher
	seqOpts   []sequencer.Option
	now       func() time.Time

	mutex sync.Mutex
	locks map[string]chan struct{}

	logger *utils.ServiceLogger
}

// TargetOption configures a TargetService.
type TargetOption func(*TargetService)

// WithConnector replaces device.Connect.
func WithConnector(c Connector) TargetOption {
	return func(s *TargetService) { s.connect = c }
}

// WithResolver replaces device.Resolve.
func WithResolver(r Resolver) TargetOption {
	return func(s *TargetService) { s.resolve = r }
}

// WithSequencerOptions passes options to every sequencer the service builds.
func WithSequencerOptions(opts ...sequencer.Option) TargetOption {
	return func(s *TargetService) { s.seqOpts = append(s.seqOpts, opts...) }
}

// NewTargetService creates a new target service. publisher may be nil.
func NewTargetService(
	cfg *config.Config,
	sessions repository.SessionRepository,
	publisher Publisher,
	logger *zap.Logger,
	opts ...TargetOption,
) *TargetService {
	s := &TargetService{
		config:    cfg,
		sessions:  sessions,
		publisher: publisher,
		now:       time.Now,
		locks:     make(map[string]chan struct{}),
		logger:    utils.NewServiceLogger(logger, "target-service"),
	}
	s.connect = func(ctx context.Context, sel device.Selector) (*device.Link, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return device.Connect(&cfg.USB, sel, s.logger.Logger)
	}
	s.resolve = func(ctx context.Context, sel device.Selector) (device.Selector, error) {
		return device.Resolve(&cfg.USB, sel)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BringUp runs the full bring-up. Zero values take the configured defaults.
func (s *TargetService) BringUp(ctx context.Context, sel device.Selector, oscillatorHz, baudRate uint32) (*model.Session, error) {
	return s.Run(ctx, &TargetRequest{
		Operation:    model.OperationBringUp,
		Selector:     sel,
		OscillatorHz: oscillatorHz,
		BaudRate:     baudRate,
	})
}

// Reset opens the channel and resets the target.
func (s *TargetService) Reset(ctx context.Context, sel device.Selector) (*model.Session, error) {
	return s.Run(ctx, &TargetRequest{Operation: model.OperationReset, Selector: sel})
}

// Signature resets the target and reads its silicon signature.
func (s *TargetService) Signature(ctx context.Context, sel device.Selector) (*model.Session, error) {
	return s.Run(ctx, &TargetRequest{Operation: model.OperationSignature, Selector: sel})
}

// SetOscillator resets the target and announces its oscillator frequency.
func (s *TargetService) SetOscillator(ctx context.Context, sel device.Selector, hz uint32) (*model.Session, error) {
	return s.Run(ctx, &TargetRequest{Operation: model.OperationOscillator, Selector: sel, OscillatorHz: hz})
}

// SetBaudRate resets the target and switches both ends to rate.
func (s *TargetService) SetBaudRate(ctx context.Context, sel device.Selector, rate uint32) (*model.Session, error) {
	return s.Run(ctx, &TargetRequest{Operation: model.OperationBaudRateSet, Selector: sel, BaudRate: rate})
}

// GetSession returns one recorded session.
func (s *TargetService) GetSession(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	return s.sessions.GetByID(ctx, id)
}

// ListSessions returns recorded sessions, newest first.
func (s *TargetService) ListSessions(ctx context.Context, filter *repository.SessionFilter) ([]*model.Session, int, error) {
	return s.sessions.List(ctx, filter)
}

// Run validates req, records a session and executes it. Validation
// failures return no session. Once a session exists it is returned even
// when the operation fails.
func (s *TargetService) Run(ctx context.Context, req *TargetRequest) (*model.Session, error) {
	if err := s.prepare(req); err != nil {
		return nil, err
	}

	session := model.NewSession(req.Operation, parameters(req), s.config.USB.TransferMode, s.now())
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to record session: %w", err)
	}
	s.publish(session)

	opLogger := utils.NewOperationLogger(s.logger.Logger, string(req.Operation), session.ID.String())
	opLogger.Start(zap.Any("parameters", session.Parameters))

	result, err := s.execute(ctx, req, session, opLogger)
	if err != nil {
		session.Fail(err, s.now())
		opLogger.Error(err)
	} else {
		session.Succeed(result, s.now())
		opLogger.Success(zap.String("device", session.Device))
	}

	// The outcome is stored even when the caller has gone away.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if uerr := s.sessions.Update(storeCtx, session); uerr != nil {
		s.logger.Error("Failed to update session", zap.String("session_id", session.ID.String()), zap.Error(uerr))
	}
	s.publish(session)

	return session, err
}

// prepare fills defaults and rejects requests the target cannot accept.
func (s *TargetService) prepare(req *TargetRequest) error {
	switch req.Operation {
	case model.OperationBringUp:
		if req.OscillatorHz == 0 {
			hz, err := s.config.OscillatorHz()
			if err != nil {
				return &sequencer.ValidationError{Field: "oscillator_mhz", Value: s.config.Target.OscillatorMHz, Reason: err.Error()}
			}
			req.OscillatorHz = hz
		}
		if req.BaudRate == 0 {
			req.BaudRate = uint32(s.config.Target.BaudRate)
		}
	case model.OperationOscillator:
		if req.OscillatorHz == 0 {
			return &sequencer.ValidationError{Field: "oscillator_mhz", Value: 0, Reason: "required"}
		}
	case model.OperationBaudRateSet:
		if req.BaudRate == 0 {
			return &sequencer.ValidationError{Field: "baud_rate", Value: 0, Reason: "required"}
		}
	case model.OperationReset, model.OperationSignature:
	default:
		return &sequencer.ValidationError{Field: "operation", Value: req.Operation, Reason: "unknown operation"}
	}

	if req.OscillatorHz != 0 {
		if _, err := sequencer.EncodeOscillatorFrequency(req.OscillatorHz); err != nil {
			return err
		}
	}
	return nil
}

func (s *TargetService) execute(ctx context.Context, req *TargetRequest, session *model.Session, opLogger *utils.OperationLogger) (model.JSONObject, error) {
	sel, err := s.resolve(ctx, req.Selector)
	if err != nil {
		return nil, err
	}
	key := lockKey(sel)
	if err := s.acquire(ctx, key); err != nil {
		return nil, err
	}
	defer s.release(key)

	ctx, cancel := context.WithTimeout(ctx, s.config.Target.OperationTimeout)
	defer cancel()

	link, err := s.connect(ctx, sel)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := link.Close(); cerr != nil {
			s.logger.Warn("Failed to close link", zap.Error(cerr))
		}
	}()
	session.Device = link.Name
	opLogger.Progress("connected", zap.String("device", link.Name), zap.String("mode", link.Mode))

	seq, err := device.NewSequencer(link, s.config, s.logger.Logger, s.seqOpts...)
	if err != nil {
		return nil, err
	}
	// The UART is closed before the link is released, whatever the outcome.
	defer func() {
		if cerr := seq.Close(context.WithoutCancel(ctx)); cerr != nil {
			s.logger.Warn("Failed to close bridge UART", zap.String("device", link.Name), zap.Error(cerr))
		}
	}()

	if req.Operation == model.OperationBringUp {
		report, err := seq.BringUp(ctx, sequencer.BringUpOptions{
			OscillatorHz: req.OscillatorHz,
			BaudRate:     req.BaudRate,
		})
		if err != nil {
			return nil, err
		}
		setDeviceName(session, report.Signature)
		return model.JSONObject{
			"signature":     signatureResult(report.Signature),
			"oscillator_hz": report.OscillatorHz,
			"baud_rate":     report.BaudRate,
		}, nil
	}

	if err := seq.Open(ctx); err != nil {
		return nil, err
	}
	opLogger.Progress("bridge open")
	if err := seq.Reset(ctx); err != nil {
		return nil, err
	}
	opLogger.Progress("target reset")

	switch req.Operation {
	case model.OperationSignature:
		sig, err := seq.Identify(ctx)
		if err != nil {
			return nil, err
		}
		setDeviceName(session, sig)
		return model.JSONObject{"signature": signatureResult(sig)}, nil
	case model.OperationOscillator:
		if err := seq.SetOscillatorFrequency(ctx, req.OscillatorHz); err != nil {
			return nil, err
		}
		return model.JSONObject{"oscillator_hz": req.OscillatorHz}, nil
	case model.OperationBaudRateSet:
		if err := seq.SetBaudRate(ctx, req.BaudRate); err != nil {
			return nil, err
		}
		return model.JSONObject{"baud_rate": sequencer.EffectiveBaudRate(req.BaudRate)}, nil
	}
	return model.JSONObject{"reset": true}, nil
}

// acquire takes the per-bridge slot, giving up when ctx ends.
func (s *TargetService) acquire(ctx context.Context, key string) error {
	s.mutex.Lock()
	slot, ok := s.locks[key]
	if !ok {
		slot = make(chan struct{}, 1)
		s.locks[key] = slot
	}
	s.mutex.Unlock()

	select {
	case slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for bridge %s: %w", key, ctx.Err())
	}
}

func (s *TargetService) release(key string) {
	s.mutex.Lock()
	slot := s.locks[key]
	s.mutex.Unlock()
	<-slot
}

func (s *TargetService) publish(session *model.Session) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(model.NewSessionEvent(session, s.now()))
}

func lockKey(sel device.Selector) string {
	if sel.Port != "" {
		return sel.Port
	}
	return fmt.Sprintf("usb %d:%d", sel.Bus, sel.Address)
}

func parameters(req *TargetRequest) model.JSONObject {
	params := model.JSONObject{}
	if req.OscillatorHz != 0 {
		params["oscillator_hz"] = req.OscillatorHz
	}
	if req.BaudRate != 0 {
		params["baud_rate"] = req.BaudRate
	}
	if req.Selector != (device.Selector{}) {
		params["selector"] = req.Selector
	}
	return params
}

func setDeviceName(session *model.Session, sig *sequencer.SiliconSignature) {
	if sig == nil {
		return
	}
	name := sig.DeviceName
	session.DeviceName = &name
}

func signatureResult(sig *sequencer.SiliconSignature) model.JSONObject {
	return model.JSONObject{
		"vendor_code":      sig.VendorCode,
		"macro_extension":  sig.MacroExtension,
		"macro_function":   sig.MacroFunction,
		"device_extension": sig.DeviceExtension,
		"end_address":      sig.EndAddress,
		"device_name":      sig.DeviceName,
		"security_flags":   sig.SecurityFlags,
		"boot_block":       sig.BootBlock,
		"raw":              sig.RawHex(),
	}
}

// IsValidation reports whether err rejects the request before any I/O.
func IsValidation(err error) bool {
	return sequencer.IsValidationError(err)
}

// IsNotFound reports whether err means a missing bridge or session.
func IsNotFound(err error) bool {
	return errors.Is(err, device.ErrNotFound) || errors.Is(err, repository.ErrSessionNotFound)
}
