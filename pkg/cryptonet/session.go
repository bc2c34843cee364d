package cryptonet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"unicode/utf8"

	"github.com/prividentity/cryptonet-go/pkg/cryptonet/internal/backend"
	"github.com/prividentity/cryptonet-go/pkg/cryptonet/logging"
)

var sessionSeq atomic.Uint64

// Session owns one native session handle. Calls on a session are serialized;
// independent sessions may run concurrently. A Session must be closed when it
// is no longer needed.
type Session struct {
	lib *Library
	id  uint64
	log logging.Logger

	// slot holds one token while a call is in flight. handle and format are
	// only read or written by the holder.
	slot   chan struct{}
	handle backend.Handle
	format ImageFormat
}

func newSession(lib *Library, h backend.Handle, format ImageFormat) *Session {
	id := sessionSeq.Add(1)
	s := &Session{
		lib:    lib,
		id:     id,
		log:    lib.log.With("session", id),
		slot:   make(chan struct{}, 1),
		handle: h,
		format: format,
	}
	runtime.SetFinalizer(s, func(s *Session) { _ = s.Close() })
	return s
}

// ID is a process-local identifier for logs. It is not the native handle.
func (s *Session) ID() uint64 { return s.id }

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.handle == nil {
		<-s.slot
		return ErrSessionClosed
	}
	return nil
}

func (s *Session) release() { <-s.slot }

// Close deinitializes the native session. It waits for an in-flight call to
// finish and is safe to call more than once.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.slot <- struct{}{}
	defer s.release()
	if s.handle == nil {
		return nil
	}
	runtime.SetFinalizer(s, nil)
	s.lib.driver.DeinitializeSession(s.handle)
	s.handle = nil
	s.lib.forget(s)
	s.log.Debug(context.Background(), "cryptonet: session closed")
	return nil
}

// Closed reports whether Close has completed.
func (s *Session) Closed() bool {
	s.slot <- struct{}{}
	defer s.release()
	return s.handle == nil
}

// SetConfiguration replaces the session defaults used by later calls. An
// input_image_format in cfg becomes the session's default pixel layout.
func (s *Session) SetConfiguration(ctx context.Context, cfg any) error {
	raw, err := encodeJSON(cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	if !s.lib.driver.SetConfiguration(s.handle, raw) {
		s.log.Warn(ctx, "cryptonet: configuration rejected", logging.Redacted("config"))
		return ErrConfiguration
	}
	if f := sessionFormat(raw); f != "" {
		s.format = f
	}
	return nil
}

// Enroll registers the face in img. A nil cfg uses DefaultEnrollConfig.
func (s *Session) Enroll(ctx context.Context, img Image, cfg *EnrollConfig) (*Result, error) {
	c := DefaultEnrollConfig()
	if cfg != nil {
		*c = *cfg
	}
	return s.imageOp(ctx, OpEnroll, s.lib.driver.UserEnroll, img, c)
}

// Predict identifies the face in img. A nil cfg uses DefaultPredictConfig.
func (s *Session) Predict(ctx context.Context, img Image, cfg *PredictConfig) (*Result, error) {
	c := DefaultPredictConfig()
	if cfg != nil {
		*c = *cfg
	}
	return s.imageOp(ctx, OpPredict, s.lib.driver.UserPredict, img, c)
}

// ScanDocumentFront processes the front side of an identity document.
func (s *Session) ScanDocumentFront(ctx context.Context, img Image, cfg *DocumentFrontScanConfig) (*Result, error) {
	c := DefaultDocumentFrontScanConfig()
	if cfg != nil {
		*c = *cfg
	}
	return s.imageOp(ctx, OpScanFront, s.lib.driver.DocScanFront, img, c)
}

// ScanDocumentBack processes the back side of an identity document.
func (s *Session) ScanDocumentBack(ctx context.Context, img Image, cfg *DocumentBackScanConfig) (*Result, error) {
	c := DefaultDocumentBackScanConfig()
	if cfg != nil {
		*c = *cfg
	}
	return s.imageOp(ctx, OpScanBack, s.lib.driver.DocScanBack, img, c)
}

func (s *Session) imageOp(ctx context.Context, op Op, call backend.ImageCall, img Image, cfg imageConfig) (*Result, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	format := resolveFormat(cfg.imageFormat(), img.Format, s.format)
	if cfg.imageFormat() == "" {
		cfg.setImageFormat(format)
	}
	if err := img.Validate(format); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}

	rc, buf := call(s.handle, raw, img.Pixels, img.Width, img.Height)
	return s.collect(ctx, op, rc, buf)
}

// CompareEmbeddings compares two encrypted embeddings taken from earlier
// enroll or predict results. cfg follows the NewSession settings rules.
func (s *Session) CompareEmbeddings(ctx context.Context, one, two string, cfg any) (*Result, error) {
	raw, err := encodeJSON(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	rc, buf := s.lib.driver.CompareEmbeddings(s.handle, raw, []byte(one), []byte(two))
	return s.collect(ctx, OpCompare, rc, buf)
}

// EncryptPayload encrypts a JSON payload under the session's key material.
func (s *Session) EncryptPayload(ctx context.Context, payload any, cfg any) (*Result, error) {
	body, err := encodeJSON(payload)
	if err != nil {
		return nil, err
	}
	raw, err := encodeJSON(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	rc, buf := s.lib.driver.EncryptPayload(s.handle, raw, body)
	return s.collect(ctx, OpEncrypt, rc, buf)
}

// AboutModels returns the library's description of its loaded models.
func (s *Session) AboutModels(ctx context.Context) (json.RawMessage, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	res, err := s.collect(ctx, OpAboutModels, 0, s.lib.driver.AboutModels(s.handle))
	if err != nil {
		return nil, err
	}
	if len(res.Payload) == 0 {
		return nil, fmt.Errorf("%w: %s returned no result", ErrOperationFailed, OpAboutModels)
	}
	return res.Payload, nil
}

// collect copies the out-buffer into Go memory, hands it back to the library
// and folds the return code into a Result or an OperationError. The buffer
// is released exactly once whatever the outcome.
func (s *Session) collect(ctx context.Context, op Op, rc int32, buf backend.Buffer) (*Result, error) {
	var payload []byte
	if !buf.IsNil() {
		payload = buf.Bytes()
		s.lib.driver.FreeCharBuffer(buf)
	}
	if payload != nil && !utf8.Valid(payload) {
		s.log.Warn(ctx, "cryptonet: non UTF-8 result", "op", op, "code", rc)
		return nil, fmt.Errorf("%w: %s", ErrInvalidUTF8, op)
	}
	if rc < 0 {
		s.log.Warn(ctx, "cryptonet: operation failed", "op", op, "code", rc)
		return nil, &OperationError{Op: op, Code: rc, Payload: payload}
	}
	s.log.Debug(ctx, "cryptonet: operation completed", "op", op, "id", rc, logging.Redacted("payload"))
	return &Result{Op: op, ID: rc, Payload: payload}, nil
}

func resolveFormat(candidates ...ImageFormat) ImageFormat {
	for _, f := range candidates {
		if f != "" {
			return f
		}
	}
	return FormatRGBA
}

// sessionFormat extracts input_image_format from a settings or configuration
// object. Anything unparsable yields the empty format.
func sessionFormat(raw []byte) ImageFormat {
	var head struct {
		Format ImageFormat `json:"input_image_format"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return ""
	}
	return head.Format
}

// IsClosed reports whether err came from using a closed session or library.
func IsClosed(err error) bool {
	return errors.Is(err, ErrSessionClosed) || errors.Is(err, ErrLibraryClosed)
}
