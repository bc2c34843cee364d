// Package server exposes the service over HTTP with gin.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prividentity/cryptonet-go/internal/config"
	"github.com/prividentity/cryptonet-go/internal/pool"
	"github.com/prividentity/cryptonet-go/internal/service"
	"github.com/prividentity/cryptonet-go/pkg/cryptonet"
)

// RequestIDHeader carries a caller-chosen request ID in and the effective
// one out.
const RequestIDHeader = "X-Request-ID"

// formOverhead is the room left for multipart framing and the config field
// on top of the image size limit.
const formOverhead = 64 << 10

type Server struct {
	svc    *service.Service
	cfg    config.ServerConfig
	logger *zap.Logger
	engine *gin.Engine
}

// New builds the router. Routes under /v1 require a bearer token when
// cfg.JWTSecret is set.
func New(svc *service.Service, cfg config.ServerConfig, logger *zap.Logger) *Server {
	s := &Server{svc: svc, cfg: cfg, logger: logger.Named("http")}

	r := gin.New()
	r.MaxMultipartMemory = cfg.MaxUploadBytes
	r.Use(gin.Recovery(), s.requestID(), s.accessLog())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	if cfg.JWTSecret != "" {
		v1.Use(JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience))
	}
	v1.GET("/version", s.version)
	v1.GET("/models", s.checkModels)
	v1.GET("/models/about", s.aboutModels)
	v1.POST("/enroll", s.imageHandler(s.svc.Enroll))
	v1.POST("/predict", s.imageHandler(s.svc.Predict))
	v1.POST("/documents/front", s.imageHandler(s.svc.ScanFront))
	v1.POST("/documents/back", s.imageHandler(s.svc.ScanBack))
	v1.POST("/embeddings/compare", s.compare)
	v1.POST("/payloads/encrypt", s.encrypt)
	v1.GET("/results/:id", s.result)
	v1.PUT("/configuration", s.configure)

	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Serve runs the HTTP server on l until ctx is done, then shuts it down
// within the configured timeout.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		err := srv.Serve(l)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()
	s.logger.Info("listening", zap.String("addr", l.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(service.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.Writer.Header().Get(RequestIDHeader)))
	}
}

func (s *Server) version(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Version())
}

func (s *Server) checkModels(c *gin.Context) {
	mode, err := cryptonet.ParseModelMode(c.Query("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be enroll or predict"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": mode.String(), "loaded": s.svc.CheckModels(mode)})
}

func (s *Server) aboutModels(c *gin.Context) {
	about, err := s.svc.AboutModels(c.Request.Context())
	if err != nil {
		s.fail(c, nil, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", about)
}

type imageCall func(ctx context.Context, image []byte, config json.RawMessage) (*service.Outcome, error)

func (s *Server) imageHandler(call imageCall) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes+formOverhead)

		file, err := c.FormFile("image")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}
		if file.Size > s.cfg.MaxUploadBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		if ct := file.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "image content type required"})
			return
		}

		data, err := readFile(file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}

		out, err := call(c.Request.Context(), data, json.RawMessage(c.PostForm("config")))
		s.reply(c, out, err)
	}
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

type compareRequest struct {
	EmbeddingOne string          `json:"embedding_one" binding:"required"`
	EmbeddingTwo string          `json:"embedding_two" binding:"required"`
	Config       json.RawMessage `json:"config"`
}

func (s *Server) compare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "embedding_one and embedding_two are required"})
		return
	}
	out, err := s.svc.Compare(c.Request.Context(), req.EmbeddingOne, req.EmbeddingTwo, req.Config)
	s.reply(c, out, err)
}

type encryptRequest struct {
	Payload json.RawMessage `json:"payload" binding:"required"`
	Config  json.RawMessage `json:"config"`
}

func (s *Server) encrypt(c *gin.Context) {
	var req encryptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload is required"})
		return
	}
	out, err := s.svc.Encrypt(c.Request.Context(), req.Payload, req.Config)
	s.reply(c, out, err)
}

func (s *Server) configure(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, formOverhead))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "configuration too large"})
		return
	}
	if err := s.svc.Configure(c.Request.Context(), body); err != nil {
		s.fail(c, nil, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) result(c *gin.Context) {
	out, err := s.svc.Result(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, nil, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// reply writes an outcome, or the failure it came with. The outcome's request
// ID replaces the one sent in when the service had to issue a new one.
func (s *Server) reply(c *gin.Context, out *service.Outcome, err error) {
	if out != nil {
		c.Header(RequestIDHeader, out.RequestID)
	}
	if err != nil {
		s.fail(c, out, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// fail maps service errors to status codes. A library failure keeps its
// outcome in the body.
func (s *Server) fail(c *gin.Context, out *service.Outcome, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, cryptonet.ErrInvalidImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, cryptonet.ErrOperationFailed) && out != nil:
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"request_id": out.RequestID,
			"code":       out.Code,
			"result":     out.Result,
		})
	case errors.Is(err, cryptonet.ErrConfiguration):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "configuration rejected"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out"})
	case errors.Is(err, pool.ErrClosed), cryptonet.IsClosed(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service is shutting down"})
	default:
		s.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
