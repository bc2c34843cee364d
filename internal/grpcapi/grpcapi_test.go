package grpcapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/prividentity/cryptonet-go/internal/config"
	"github.com/prividentity/cryptonet-go/internal/service"
)

func startServer(t *testing.T) CryptonetClient {
	t.Helper()
	cfg := config.Default()
	cfg.Library.Driver = config.DriverShim
	cfg.Library.WorkingDir = t.TempDir()
	cfg.Library.SessionPoolSize = 1
	svc, err := service.Open(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("service.Open: %v", err)
	}

	lis := bufconn.Listen(1024 * 1024)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, lis, svc, zap.NewNop()) }()

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() {
		_ = cc.Close()
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
		_ = svc.Close()
	})
	return NewCryptonetClient(cc)
}

func rampPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(y * 7)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func request(t *testing.T, v any) *wrapperspb.StringValue {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return wrapperspb.String(string(data))
}

func outcome(t *testing.T, reply *wrapperspb.StringValue) service.Outcome {
	t.Helper()
	var out service.Outcome
	if err := json.Unmarshal([]byte(reply.GetValue()), &out); err != nil {
		t.Fatalf("reply is not an outcome: %v", err)
	}
	return out
}

func TestEnrollPredictCompare(t *testing.T) {
	client := startServer(t)
	ctx := context.Background()
	img := rampPNG(t)

	reply, err := client.Enroll(ctx, request(t, imageRequest{Image: img}))
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	enrolled := outcome(t, reply)
	if !enrolled.Success {
		t.Fatalf("enroll not successful: %s", reply.GetValue())
	}

	reply, err = client.Predict(ctx, request(t, imageRequest{Image: img, Config: json.RawMessage(`{"threshold":0.9}`)}))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	predicted := outcome(t, reply)

	reply, err = client.Compare(ctx, request(t, compareRequest{
		EmbeddingOne: string(enrolled.Result),
		EmbeddingTwo: string(predicted.Result),
	}))
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	var cmp struct {
		Match bool `json:"match"`
	}
	if err := json.Unmarshal(outcome(t, reply).Result, &cmp); err != nil {
		t.Fatal(err)
	}
	if !cmp.Match {
		t.Fatalf("identical images did not match: %s", reply.GetValue())
	}
}

func TestDocumentScans(t *testing.T) {
	client := startServer(t)
	ctx := context.Background()
	req := request(t, imageRequest{Image: rampPNG(t)})

	if _, err := client.ScanFront(ctx, req); err != nil {
		t.Fatalf("ScanFront: %v", err)
	}
	if _, err := client.ScanBack(ctx, req); err != nil {
		t.Fatalf("ScanBack: %v", err)
	}
}

func TestStatusCodes(t *testing.T) {
	client := startServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want codes.Code
	}{
		{"malformed json", func() error {
			_, err := client.Enroll(ctx, wrapperspb.String("{"))
			return err
		}, codes.InvalidArgument},
		{"bad image", func() error {
			_, err := client.Predict(ctx, request(t, imageRequest{Image: []byte("nope")}))
			return err
		}, codes.InvalidArgument},
		{"missing payload", func() error {
			_, err := client.Encrypt(ctx, request(t, map[string]any{}))
			return err
		}, codes.InvalidArgument},
		{"library failure", func() error {
			_, err := client.Compare(ctx, request(t, compareRequest{EmbeddingOne: "eA==", EmbeddingTwo: "eA=="}))
			return err
		}, codes.FailedPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := status.Code(tt.call()); got != tt.want {
				t.Fatalf("status %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFailureCarriesOutcome(t *testing.T) {
	client := startServer(t)
	_, err := client.Compare(context.Background(), request(t, compareRequest{EmbeddingOne: "eA==", EmbeddingTwo: "eA=="}))
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("not a status error: %v", err)
	}
	var out service.Outcome
	if err := json.Unmarshal([]byte(st.Message()), &out); err != nil {
		t.Fatalf("status message is not an outcome: %q", st.Message())
	}
	if out.Success || out.Code >= 0 || out.RequestID == "" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestEncryptAndAbout(t *testing.T) {
	client := startServer(t)
	ctx := context.Background()

	if _, err := client.Encrypt(ctx, request(t, encryptRequest{Payload: json.RawMessage(`{"k":"v"}`)})); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	reply, err := client.AboutModels(ctx, wrapperspb.String(""))
	if err != nil {
		t.Fatalf("AboutModels: %v", err)
	}
	if !json.Valid([]byte(reply.GetValue())) {
		t.Fatalf("AboutModels returned %q", reply.GetValue())
	}
}

func TestUnimplemented(t *testing.T) {
	var srv UnimplementedCryptonetServer
	_, err := srv.Enroll(context.Background(), nil)
	if status.Code(err) != codes.Unimplemented {
		t.Fatalf("got %v", err)
	}
}
