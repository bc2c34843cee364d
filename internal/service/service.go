// Package service is the use-case layer shared by the HTTP, gRPC and command
// line front ends. It lends pooled sessions, prepares images, and keeps an
// audit trail and a short-lived result cache.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prividentity/cryptonet-go/internal/logging"
	"github.com/prividentity/cryptonet-go/internal/pool"
	"github.com/prividentity/cryptonet-go/internal/store"
	"github.com/prividentity/cryptonet-go/pkg/cryptonet"
	"github.com/prividentity/cryptonet-go/pkg/imaging"
)

var (
	// ErrInvalidInput marks requests rejected before reaching the library.
	ErrInvalidInput = errors.New("service: invalid input")
	ErrNotFound     = errors.New("service: result not found")
)

// Options tunes image preparation and result retention.
type Options struct {
	Format    cryptonet.ImageFormat
	MaxDim    int
	MaxPixels int
	ResultTTL time.Duration
}

// Outcome is what the front ends report for one call. Result is the
// library's JSON, or its failure payload when Success is false.
type Outcome struct {
	RequestID   string          `json:"request_id"`
	Operation   cryptonet.Op    `json:"operation"`
	OperationID int32           `json:"operation_id"`
	Success     bool            `json:"success"`
	Code        int32           `json:"code,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// Versions reports the wrapper and library versions.
type Versions struct {
	Wrapper  string `json:"wrapper"`
	Upstream string `json:"upstream"`
	Native   string `json:"native"`
}

type Service struct {
	lib    *cryptonet.Library
	pool   *pool.Pool
	audit  store.AuditLog
	cache  store.Cache
	logger *zap.Logger
	opts   Options
	now    func() time.Time

	// format is the layout images are decoded into when a call does not
	// name one. Configure may change it.
	formatMu sync.RWMutex
	format   cryptonet.ImageFormat

	closers []func() error
}

// New assembles a Service from parts the caller owns.
func New(lib *cryptonet.Library, p *pool.Pool, audit store.AuditLog, cache store.Cache, logger *zap.Logger, opts Options) *Service {
	if opts.Format == "" {
		opts.Format = cryptonet.FormatRGBA
	}
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = 5 * time.Minute
	}
	return &Service{
		lib:    lib,
		pool:   p,
		audit:  audit,
		cache:  cache,
		logger: logger.Named("service"),
		opts:   opts,
		now:    time.Now,
		format: opts.Format,
	}
}

// Close releases everything Open acquired. It is a no-op for services built
// with New.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Service) Enroll(ctx context.Context, image []byte, config json.RawMessage) (*Outcome, error) {
	cfg := cryptonet.DefaultEnrollConfig()
	if err := decodeConfig(config, cfg); err != nil {
		return nil, err
	}
	return s.imageCall(ctx, cryptonet.OpEnroll, image, cfg.InputImageFormat, func(sess *cryptonet.Session, img cryptonet.Image) (*cryptonet.Result, error) {
		return sess.Enroll(ctx, img, cfg)
	})
}

func (s *Service) Predict(ctx context.Context, image []byte, config json.RawMessage) (*Outcome, error) {
	cfg := cryptonet.DefaultPredictConfig()
	if err := decodeConfig(config, cfg); err != nil {
		return nil, err
	}
	return s.imageCall(ctx, cryptonet.OpPredict, image, cfg.InputImageFormat, func(sess *cryptonet.Session, img cryptonet.Image) (*cryptonet.Result, error) {
		return sess.Predict(ctx, img, cfg)
	})
}

func (s *Service) ScanFront(ctx context.Context, image []byte, config json.RawMessage) (*Outcome, error) {
	cfg := cryptonet.DefaultDocumentFrontScanConfig()
	if err := decodeConfig(config, cfg); err != nil {
		return nil, err
	}
	return s.imageCall(ctx, cryptonet.OpScanFront, image, cfg.InputImageFormat, func(sess *cryptonet.Session, img cryptonet.Image) (*cryptonet.Result, error) {
		return sess.ScanDocumentFront(ctx, img, cfg)
	})
}

func (s *Service) ScanBack(ctx context.Context, image []byte, config json.RawMessage) (*Outcome, error) {
	cfg := cryptonet.DefaultDocumentBackScanConfig()
	if err := decodeConfig(config, cfg); err != nil {
		return nil, err
	}
	return s.imageCall(ctx, cryptonet.OpScanBack, image, cfg.InputImageFormat, func(sess *cryptonet.Session, img cryptonet.Image) (*cryptonet.Result, error) {
		return sess.ScanDocumentBack(ctx, img, cfg)
	})
}

func (s *Service) Compare(ctx context.Context, one, two string, config json.RawMessage) (*Outcome, error) {
	if one == "" || two == "" {
		return nil, fmt.Errorf("%w: two embeddings are required", ErrInvalidInput)
	}
	return s.run(ctx, cryptonet.OpCompare, func(sess *cryptonet.Session) (*cryptonet.Result, error) {
		return sess.CompareEmbeddings(ctx, one, two, config)
	})
}

func (s *Service) Encrypt(ctx context.Context, payload, config json.RawMessage) (*Outcome, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, fmt.Errorf("%w: payload is required", ErrInvalidInput)
	}
	return s.run(ctx, cryptonet.OpEncrypt, func(sess *cryptonet.Session) (*cryptonet.Result, error) {
		return sess.EncryptPayload(ctx, payload, config)
	})
}

// Configure replaces the session defaults on every pooled session. It waits
// for calls in flight and holds new ones back until all sessions agree. An
// input_image_format in config also becomes the layout images are decoded
// into.
func (s *Service) Configure(ctx context.Context, config json.RawMessage) error {
	var head struct {
		Format cryptonet.ImageFormat `json:"input_image_format"`
	}
	if !bytes.HasPrefix(bytes.TrimSpace(config), []byte("{")) {
		return fmt.Errorf("%w: config must be a JSON object", ErrInvalidInput)
	}
	if err := json.Unmarshal(config, &head); err != nil {
		return fmt.Errorf("%w: config: %w", ErrInvalidInput, err)
	}
	if head.Format != "" && head.Format.Channels() == 0 {
		return fmt.Errorf("%w: input_image_format %q", ErrInvalidInput, head.Format)
	}

	log := logging.WithOperation(s.logger, "service.configure", RequestID(ctx))
	if err := s.pool.SetConfiguration(ctx, config); err != nil {
		log.Warn("configuration not applied", zap.Error(err))
		return err
	}
	if head.Format != "" {
		s.formatMu.Lock()
		s.format = head.Format
		s.formatMu.Unlock()
	}
	log.Info("configuration applied", zap.String("subject", Subject(ctx)))
	return nil
}

func (s *Service) AboutModels(ctx context.Context) (json.RawMessage, error) {
	var about json.RawMessage
	err := s.pool.Do(ctx, func(sess *cryptonet.Session) error {
		var err error
		about, err = sess.AboutModels(ctx)
		return err
	})
	return about, err
}

func (s *Service) CheckModels(mode cryptonet.ModelMode) bool {
	return s.lib.CheckModels(mode)
}

func (s *Service) Version() Versions {
	return Versions{
		Wrapper:  cryptonet.WrapperVersion(),
		Upstream: cryptonet.UpstreamVersion(),
		Native:   s.lib.NativeVersion(),
	}
}

// Result returns a recent outcome by request ID. Only the subject that made
// the call can read it back; for anyone else the ID does not exist. Once the
// cached copy has expired only the audit record is left and Result is empty.
func (s *Service) Result(ctx context.Context, requestID string) (*Outcome, error) {
	subject := Subject(ctx)
	log := logging.WithOperation(s.logger, "service.result", requestID)
	data, err := s.cache.Get(ctx, cacheKey(subject, requestID))
	if err == nil {
		var out Outcome
		if err := json.Unmarshal(data, &out); err == nil {
			return &out, nil
		}
		log.Warn("failed to decode cached result", zap.Error(err))
	} else if !errors.Is(err, store.ErrCacheMiss) {
		log.Warn("failed to read cache", zap.Error(err))
	}

	entry, err := s.audit.Find(ctx, requestID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, logging.NewOperationError("service.result", requestID, err)
	}
	if entry.Subject != subject {
		return nil, ErrNotFound
	}
	return &Outcome{
		RequestID:   entry.RequestID,
		Operation:   cryptonet.Op(entry.Operation),
		OperationID: entry.OperationID,
		Success:     entry.Success,
		Code:        entry.Code,
	}, nil
}

// imageCall decodes image into the layout the call asks for, falling back to
// the service layout, and runs call with it.
func (s *Service) imageCall(ctx context.Context, op cryptonet.Op, image []byte, format cryptonet.ImageFormat, call func(*cryptonet.Session, cryptonet.Image) (*cryptonet.Result, error)) (*Outcome, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: image is required", ErrInvalidInput)
	}
	if format == "" {
		s.formatMu.RLock()
		format = s.format
		s.formatMu.RUnlock()
	}
	img, err := imaging.Load(bytes.NewReader(image), format, imaging.Limits{
		MaxDim:    s.opts.MaxDim,
		MaxPixels: s.opts.MaxPixels,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return s.run(ctx, op, func(sess *cryptonet.Session) (*cryptonet.Result, error) {
		return call(sess, img)
	})
}

// run executes call on a pooled session and records the outcome. Library
// failures still produce an Outcome, returned together with the error.
func (s *Service) run(ctx context.Context, op cryptonet.Op, call func(*cryptonet.Session) (*cryptonet.Result, error)) (*Outcome, error) {
	opName := "service." + string(op)
	requestID := s.requestID(ctx)
	log := logging.WithOperation(s.logger, opName, requestID)

	start := s.now()
	var res *cryptonet.Result
	err := s.pool.Do(ctx, func(sess *cryptonet.Session) error {
		var err error
		res, err = call(sess)
		return err
	})
	latency := s.now().Sub(start)

	out := &Outcome{RequestID: requestID, Operation: op}
	var opErr *cryptonet.OperationError
	switch {
	case err == nil:
		out.OperationID, out.Success, out.Result = res.ID, true, res.Payload
	case errors.As(err, &opErr):
		out.Code, out.Result = opErr.Code, opErr.Payload
	default:
		log.Error("call failed", zap.Error(err))
		return nil, logging.NewOperationError(opName, requestID, err)
	}

	entry := &store.AuditEntry{
		RequestID:   requestID,
		Operation:   string(op),
		OperationID: out.OperationID,
		Success:     out.Success,
		Code:        out.Code,
		LatencyMS:   latency.Milliseconds(),
		Subject:     Subject(ctx),
		CreatedAt:   start.UTC(),
	}
	if aerr := s.audit.Record(ctx, entry); aerr != nil {
		log.Warn("failed to record audit entry", zap.Error(aerr))
	}
	if data, merr := json.Marshal(out); merr == nil {
		if cerr := s.cache.Set(ctx, cacheKey(entry.Subject, requestID), data, s.opts.ResultTTL); cerr != nil {
			log.Warn("failed to cache result", zap.Error(cerr))
		}
	}

	if err != nil {
		log.Warn("library rejected call", zap.Int32("code", out.Code), zap.Duration("latency", latency))
		return out, logging.NewOperationError(opName, requestID, err)
	}
	log.Info("call completed", zap.Int32("operation_id", out.OperationID), zap.Duration("latency", latency))
	return out, nil
}

// requestID returns the caller's request ID, or a fresh one when the caller
// sent none or sent one that is already recorded.
func (s *Service) requestID(ctx context.Context) string {
	id := RequestID(ctx)
	if id == "" {
		return uuid.NewString()
	}
	_, err := s.audit.Find(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return id
	case err != nil:
		s.logger.Warn("failed to check request id", zap.String("request_id", id), zap.Error(err))
	}
	fresh := uuid.NewString()
	s.logger.Info("request id already used", zap.String("request_id", id), zap.String("issued", fresh))
	return fresh
}

func cacheKey(subject, requestID string) string {
	return "cryptonet:result:" + subject + ":" + requestID
}

func decodeConfig(raw json.RawMessage, into any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("%w: config: %w", ErrInvalidInput, err)
	}
	return nil
}
