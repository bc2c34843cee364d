// Package grpcapi exposes the service over gRPC.
package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/prividentity/cryptonet-go/internal/pool"
	"github.com/prividentity/cryptonet-go/internal/service"
	"github.com/prividentity/cryptonet-go/pkg/cryptonet"
)

type imageRequest struct {
	Image  []byte          `json:"image"`
	Config json.RawMessage `json:"config,omitempty"`
}

type compareRequest struct {
	EmbeddingOne string          `json:"embedding_one"`
	EmbeddingTwo string          `json:"embedding_two"`
	Config       json.RawMessage `json:"config,omitempty"`
}

type encryptRequest struct {
	Payload json.RawMessage `json:"payload"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// Server exposes a service.Service over the Cryptonet gRPC service.
type Server struct {
	UnimplementedCryptonetServer
	Service *service.Service
}

func (s *Server) Enroll(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	return s.image(ctx, in, s.Service.Enroll)
}

func (s *Server) Predict(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	return s.image(ctx, in, s.Service.Predict)
}

func (s *Server) ScanFront(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	return s.image(ctx, in, s.Service.ScanFront)
}

func (s *Server) ScanBack(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	return s.image(ctx, in, s.Service.ScanBack)
}

func (s *Server) Compare(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Service == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing service")
	}
	var req compareRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return reply(s.Service.Compare(ctx, req.EmbeddingOne, req.EmbeddingTwo, req.Config))
}

func (s *Server) Encrypt(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Service == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing service")
	}
	var req encryptRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return reply(s.Service.Encrypt(ctx, req.Payload, req.Config))
}

func (s *Server) AboutModels(ctx context.Context, _ *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Service == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing service")
	}
	about, err := s.Service.AboutModels(ctx)
	if err != nil {
		return nil, mapErr(err, nil)
	}
	return wrapperspb.String(string(about)), nil
}

func (s *Server) image(ctx context.Context, in *wrapperspb.StringValue, call func(context.Context, []byte, json.RawMessage) (*service.Outcome, error)) (*wrapperspb.StringValue, error) {
	if s == nil || s.Service == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing service")
	}
	var req imageRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return reply(call(ctx, req.Image, req.Config))
}

func decode(in *wrapperspb.StringValue, v any) error {
	if err := json.Unmarshal([]byte(in.GetValue()), v); err != nil {
		return status.Error(codes.InvalidArgument, "request is not valid JSON: "+err.Error())
	}
	return nil
}

func reply(out *service.Outcome, err error) (*wrapperspb.StringValue, error) {
	if err != nil {
		return nil, mapErr(err, out)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.String(string(data)), nil
}

// mapErr converts service errors to gRPC statuses. A library failure carries
// its outcome JSON as the status message.
func mapErr(err error, out *service.Outcome) error {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, cryptonet.ErrInvalidImage):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, cryptonet.ErrOperationFailed):
		msg := err.Error()
		if out != nil {
			if data, merr := json.Marshal(out); merr == nil {
				msg = string(data)
			}
		}
		return status.Error(codes.FailedPrecondition, msg)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, pool.ErrClosed), cryptonet.IsClosed(err):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// LoggingInterceptor logs every unary call with its method, status code and
// latency.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("rpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)))
		return resp, err
	}
}

// Serve runs a gRPC server for svc on l until ctx is done, then stops it
// gracefully.
func Serve(ctx context.Context, l net.Listener, svc *service.Service, logger *zap.Logger, opts ...grpc.ServerOption) error {
	logger = logger.Named("grpc")
	opts = append(opts, grpc.UnaryInterceptor(LoggingInterceptor(logger)))
	srv := grpc.NewServer(opts...)
	RegisterCryptonetServer(srv, &Server{Service: svc})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(l) }()
	logger.Info("listening", zap.String("addr", l.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		srv.GracefulStop()
		return <-errCh
	}
}
