package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prividentity/cryptonet-go/internal/config"
	"github.com/prividentity/cryptonet-go/internal/service"
)

const testJWTSecret = "test-secret"

func newTestServer(t *testing.T, secret string) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Library.Driver = config.DriverShim
	cfg.Library.WorkingDir = t.TempDir()
	cfg.Library.SessionPoolSize = 1
	cfg.Server.JWTSecret = secret
	cfg.Server.MaxUploadBytes = 1 << 20

	svc, err := service.Open(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return New(svc, cfg.Server, zap.NewNop())
}

func rampPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			v := uint8(x * 6)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func buildMultipartBody(t *testing.T, contentType string, payload []byte, config string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="upload"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)

	if config != "" {
		require.NoError(t, writer.WriteField("config", config))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func buildTestToken(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	s.Handler().ServeHTTP(resp, req)
	return resp
}

func upload(t *testing.T, s *Server, path, contentType string, payload []byte, config, token string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := buildMultipartBody(t, contentType, payload, config)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return do(s, req)
}

func postJSON(s *Server, path string, v any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(v)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return do(s, req)
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t, testJWTSecret)
	resp := do(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestV1RequiresToken(t *testing.T) {
	s := newTestServer(t, testJWTSecret)

	resp := do(s, httptest.NewRequest(http.MethodGet, "/v1/version", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/version", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, do(s, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/version", nil)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "user-1"))
	resp = do(s, req)
	require.Equal(t, http.StatusOK, resp.Code)
	var v service.Versions
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &v))
	assert.NotEmpty(t, v.Native)
}

func TestJWTAudience(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", JWTMiddleware(testJWTSecret, "cryptonet"), func(c *gin.Context) {
		c.String(http.StatusOK, service.Subject(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "user-1"))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	claims := jwt.RegisteredClaims{Subject: "user-2", Audience: jwt.ClaimStrings{"cryptonet"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "user-2", resp.Body.String())
}

func TestEnrollAndFetchResult(t *testing.T) {
	s := newTestServer(t, testJWTSecret)
	token := buildTestToken(t, "user-1")

	resp := upload(t, s, "/v1/enroll", "image/png", rampPNG(t), `{"threshold":0.9}`, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	id := resp.Header().Get(RequestIDHeader)
	require.NotEmpty(t, id)

	var out service.Outcome
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, id, out.RequestID)
	assert.True(t, out.Success)

	req := httptest.NewRequest(http.MethodGet, "/v1/results/"+id, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp = do(s, req)
	require.Equal(t, http.StatusOK, resp.Code)
	var cached service.Outcome
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &cached))
	assert.Equal(t, out.OperationID, cached.OperationID)

	req = httptest.NewRequest(http.MethodGet, "/v1/results/unknown", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusNotFound, do(s, req).Code)
}

func TestUploadRejections(t *testing.T) {
	s := newTestServer(t, "")

	resp := upload(t, s, "/v1/predict", "image/png", bytes.Repeat([]byte("a"), (1<<20)+1), "", "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)

	resp = upload(t, s, "/v1/predict", "text/plain", []byte("hello"), "", "")
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.Code)

	resp = upload(t, s, "/v1/predict", "image/png", []byte("not a png"), "", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = upload(t, s, "/v1/documents/front", "image/png", rampPNG(t), `{"broken"`, "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestDocumentRoutes(t *testing.T) {
	s := newTestServer(t, "")
	for _, path := range []string{"/v1/documents/front", "/v1/documents/back"} {
		resp := upload(t, s, path, "image/png", rampPNG(t), "", "")
		assert.Equal(t, http.StatusOK, resp.Code, path)
	}
}

func TestCompareFailureIsUnprocessable(t *testing.T) {
	s := newTestServer(t, "")

	resp := postJSON(s, "/v1/embeddings/compare", map[string]string{"embedding_one": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = postJSON(s, "/v1/embeddings/compare", map[string]string{
		"embedding_one": "bm90IHNlYWxlZA==",
		"embedding_two": "bm90IHNlYWxlZA==",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	var body struct {
		RequestID string          `json:"request_id"`
		Code      int32           `json:"code"`
		Result    json.RawMessage `json:"result"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.NotEmpty(t, body.RequestID)
	assert.Negative(t, body.Code)
}

func TestEncryptAndModels(t *testing.T) {
	s := newTestServer(t, "")

	resp := postJSON(s, "/v1/payloads/encrypt", map[string]any{"payload": map[string]string{"a": "b"}})
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = postJSON(s, "/v1/payloads/encrypt", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(s, httptest.NewRequest(http.MethodGet, "/v1/models?mode=enroll", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"mode":"enroll","loaded":true}`, resp.Body.String())

	resp = do(s, httptest.NewRequest(http.MethodGet, "/v1/models?mode=other", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(s, httptest.NewRequest(http.MethodGet, "/v1/models/about", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, json.Valid(resp.Body.Bytes()))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, "")
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func withAuth(req *http.Request, token, requestID string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	if requestID != "" {
		req.Header.Set(RequestIDHeader, requestID)
	}
	return req
}

func TestResultsAreScopedToSubject(t *testing.T) {
	s := newTestServer(t, testJWTSecret)
	alice, mallory := buildTestToken(t, "alice"), buildTestToken(t, "mallory")

	body, ct := buildMultipartBody(t, "image/png", rampPNG(t), "")
	req := withAuth(httptest.NewRequest(http.MethodPost, "/v1/enroll", body), alice, "r1")
	req.Header.Set("Content-Type", ct)
	resp := do(s, req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "r1", resp.Header().Get(RequestIDHeader))

	resp = do(s, withAuth(httptest.NewRequest(http.MethodGet, "/v1/results/r1", nil), mallory, ""))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	data, _ := json.Marshal(map[string]any{"payload": map[string]string{"a": "b"}})
	req = withAuth(httptest.NewRequest(http.MethodPost, "/v1/payloads/encrypt", bytes.NewReader(data)), mallory, "r1")
	req.Header.Set("Content-Type", "application/json")
	resp = do(s, req)
	require.Equal(t, http.StatusOK, resp.Code)
	reissued := resp.Header().Get(RequestIDHeader)
	assert.NotEqual(t, "r1", reissued)
	var out service.Outcome
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, reissued, out.RequestID)

	resp = do(s, withAuth(httptest.NewRequest(http.MethodGet, "/v1/results/r1", nil), alice, ""))
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, "user_enroll", string(out.Operation))
}

func TestImageFormatRoutes(t *testing.T) {
	s := newTestServer(t, "")

	resp := upload(t, s, "/v1/enroll", "image/png", rampPNG(t), `{"input_image_format":"bgr"}`, "")
	assert.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = upload(t, s, "/v1/enroll", "image/png", rampPNG(t), `{"input_image_format":"yuv"}`, "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	put := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/v1/configuration", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		return do(s, req)
	}
	assert.Equal(t, http.StatusNoContent, put(`{"input_image_format":"gray"}`).Code)
	assert.Equal(t, http.StatusBadRequest, put(`[1,2]`).Code)
	assert.Equal(t, http.StatusBadRequest, put(`{"input_image_format":"yuv"}`).Code)

	resp = upload(t, s, "/v1/documents/front", "image/png", rampPNG(t), "", "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var out service.Outcome
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Contains(t, string(out.Result), `"gray"`)
}
