package shim

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/prividentity/cryptonet-go/pkg/cryptonet/internal/backend"
)

const defaultThreshold = 0.8

// callConfig is the part of the merged session and per-call configuration
// the shim acts on. Unknown keys are accepted and ignored.
type callConfig struct {
	InputImageFormat string   `json:"input_image_format"`
	Threshold        *float64 `json:"threshold"`
	BarcodeOnly      *bool    `json:"document_scan_barcode_only"`
}

func (c callConfig) threshold() float64 {
	if c.Threshold == nil {
		return defaultThreshold
	}
	return *c.Threshold
}

type sealedEmbedding struct {
	Vector []float64 `cbor:"1,keyasint"`
	UUID   string    `cbor:"2,keyasint,omitempty"`
}

// begin runs the checks every session call shares. A non-zero code means the
// call must fail with it.
func (l *Library) begin(h backend.Handle, config []byte) (*session, callConfig, int32, string) {
	if !l.ready() {
		return nil, callConfig{}, CodeNotInitialized, "library not initialized"
	}
	s, ok := l.session(h)
	if !ok {
		return nil, callConfig{}, CodeInvalidSession, "invalid session handle"
	}
	call, err := parseObject(config)
	if err != nil {
		return nil, callConfig{}, CodeInvalidConfig, "config is not a JSON object"
	}

	l.mu.Lock()
	merged := make(map[string]json.RawMessage, len(s.defaults)+len(call))
	for k, v := range s.defaults {
		merged[k] = v
	}
	l.mu.Unlock()
	for k, v := range call {
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, callConfig{}, CodeInternal, err.Error()
	}
	var cc callConfig
	if err := json.Unmarshal(data, &cc); err != nil {
		return nil, callConfig{}, CodeInvalidConfig, "config has fields of the wrong type"
	}
	return s, cc, 0, ""
}

// image validates the pixel buffer against the effective layout and reduces
// it to a signature.
func (l *Library) image(cc callConfig, pixels []byte, width, height int) (vec []float64, format string, code int32, msg string) {
	format = cc.InputImageFormat
	if format == "" {
		format = "rgba"
	}
	lo, ok := layouts[format]
	if !ok {
		return nil, "", CodeInvalidConfig, fmt.Sprintf("unsupported input_image_format %q", format)
	}
	if width <= 0 || height <= 0 {
		return nil, "", CodeInvalidImage, "image dimensions must be positive"
	}
	if want := width * height * lo.channels; len(pixels) != want {
		return nil, "", CodeInvalidImage, fmt.Sprintf("pixel buffer has %d bytes, want %d", len(pixels), want)
	}
	vec, ok = signature(pixels, width, height, lo)
	if !ok {
		return nil, "", CodeInvalidImage, "no features found"
	}
	return vec, format, 0, ""
}

func (l *Library) sealVector(vec []float64, id string) (string, error) {
	pt, err := cborEnc.Marshal(sealedEmbedding{Vector: vec, UUID: id})
	if err != nil {
		return "", err
	}
	return l.keys.sealEmbedding(pt)
}

func (l *Library) UserEnroll(h backend.Handle, config, pixels []byte, width, height int) (int32, backend.Buffer) {
	const op = "user_enroll"
	_, cc, code, msg := l.begin(h, config)
	if code != 0 {
		return l.fail(op, code, msg)
	}
	if !l.modelsLoaded(true) {
		return l.fail(op, CodeModelsNotLoaded, "enroll models not loaded")
	}
	vec, _, code, msg := l.image(cc, pixels, width, height)
	if code != 0 {
		return l.fail(op, code, msg)
	}

	message := "enrolled"
	id, sim, found := l.gallery.best(vec)
	if !found || sim < cc.threshold() {
		id = uuid.NewString()
		if _, err := l.gallery.add(id, vec); err != nil {
			return l.fail(op, CodeInternal, err.Error())
		}
	} else {
		message = "already enrolled"
	}
	sealed, err := l.sealVector(vec, id)
	if err != nil {
		return l.fail(op, CodeInternal, err.Error())
	}
	return l.nextID(), l.out(enrollPayload{
		envelope:            envelope{Status: StatusOK, Message: message, Operation: op},
		UUID:                id,
		EncryptedEmbeddings: sealed,
		EnrollLevel:         1,
	})
}

func (l *Library) UserPredict(h backend.Handle, config, pixels []byte, width, height int) (int32, backend.Buffer) {
	const op = "user_predict"
	_, cc, code, msg := l.begin(h, config)
	if code != 0 {
		return l.fail(op, code, msg)
	}
	if !l.modelsLoaded(false) {
		return l.fail(op, CodeModelsNotLoaded, "predict models not loaded")
	}
	vec, _, code, msg := l.image(cc, pixels, width, height)
	if code != 0 {
		return l.fail(op, code, msg)
	}
	sealed, err := l.sealVector(vec, "")
	if err != nil {
		return l.fail(op, CodeInternal, err.Error())
	}

	p := predictPayload{
		envelope:            envelope{Status: StatusNoMatch, Message: "no match", Operation: op},
		EncryptedEmbeddings: sealed,
	}
	if id, sim, found := l.gallery.best(vec); found {
		p.Similarity = round(sim)
		if sim >= cc.threshold() {
			p.Status, p.Message, p.UUID = StatusOK, "match", id
		}
	}
	return l.nextID(), l.out(p)
}

func (l *Library) DocScanFront(h backend.Handle, config, pixels []byte, width, height int) (int32, backend.Buffer) {
	return l.docScan("doc_scan_front", false, h, config, pixels, width, height)
}

func (l *Library) DocScanBack(h backend.Handle, config, pixels []byte, width, height int) (int32, backend.Buffer) {
	return l.docScan("doc_scan_back", true, h, config, pixels, width, height)
}

func (l *Library) docScan(op string, back bool, h backend.Handle, config, pixels []byte, width, height int) (int32, backend.Buffer) {
	_, cc, code, msg := l.begin(h, config)
	if code != 0 {
		return l.fail(op, code, msg)
	}
	if l.missing["document_detector"] || (!back && l.missing["face_detector"]) {
		return l.fail(op, CodeModelsNotLoaded, "document models not loaded")
	}
	_, format, code, msg := l.image(cc, pixels, width, height)
	if code != 0 {
		return l.fail(op, code, msg)
	}
	id, err := contentID(pixels)
	if err != nil {
		return l.fail(op, CodeInternal, err.Error())
	}
	p := documentPayload{
		envelope: envelope{Status: StatusOK, Message: "document processed", Operation: op},
		Document: document{Width: width, Height: height, Format: format, CID: id.String()},
	}
	if back {
		barcodeOnly := true
		if cc.BarcodeOnly != nil {
			barcodeOnly = *cc.BarcodeOnly
		}
		p.BarcodeOnly = &barcodeOnly
	}
	return l.nextID(), l.out(p)
}

func (l *Library) CompareEmbeddings(h backend.Handle, config, one, two []byte) (int32, backend.Buffer) {
	const op = "compare_embeddings"
	_, cc, code, msg := l.begin(h, config)
	if code != 0 {
		return l.fail(op, code, msg)
	}
	a, err := l.openEmbedding(one)
	if err != nil {
		return l.fail(op, CodeInvalidEmbedding, "first embedding: "+err.Error())
	}
	b, err := l.openEmbedding(two)
	if err != nil {
		return l.fail(op, CodeInvalidEmbedding, "second embedding: "+err.Error())
	}
	sim := cosine(a.Vector, b.Vector)
	return l.nextID(), l.out(comparePayload{
		envelope:   envelope{Status: StatusOK, Message: "compared", Operation: op},
		Similarity: round(sim),
		Distance:   round(1 - sim),
		Match:      sim >= cc.threshold(),
	})
}

// openEmbedding accepts either the sealed string itself or a whole enroll or
// predict result that carries one.
func (l *Library) openEmbedding(in []byte) (sealedEmbedding, error) {
	in = bytes.TrimSpace(in)
	if len(in) == 0 {
		return sealedEmbedding{}, errors.New("empty")
	}
	s := string(in)
	if in[0] == '{' {
		var carrier struct {
			EncryptedEmbeddings string `json:"encrypted_embeddings"`
		}
		if err := json.Unmarshal(in, &carrier); err != nil || carrier.EncryptedEmbeddings == "" {
			return sealedEmbedding{}, errors.New("no encrypted_embeddings in result")
		}
		s = carrier.EncryptedEmbeddings
	}
	pt, err := l.keys.openEmbedding(s)
	if err != nil {
		return sealedEmbedding{}, err
	}
	var e sealedEmbedding
	if err := cbor.Unmarshal(pt, &e); err != nil {
		return sealedEmbedding{}, err
	}
	if len(e.Vector) != grid*grid {
		return sealedEmbedding{}, errSealed
	}
	return e, nil
}

func (l *Library) EncryptPayload(h backend.Handle, config, payload []byte) (int32, backend.Buffer) {
	const op = "encrypt_payload"
	s, _, code, msg := l.begin(h, config)
	if code != 0 {
		return l.fail(op, code, msg)
	}
	if len(bytes.TrimSpace(payload)) == 0 || !json.Valid(payload) {
		return l.fail(op, CodeInvalidPayload, "payload is not valid JSON")
	}
	enc, ct, err := seal(s.payload.pub, payloadInfo, payload)
	if err != nil {
		return l.fail(op, CodeInternal, err.Error())
	}
	pub, err := s.payload.publicBytes()
	if err != nil {
		return l.fail(op, CodeInternal, err.Error())
	}
	return l.nextID(), l.out(encryptPayload{
		envelope:         envelope{Status: StatusOK, Message: "encrypted", Operation: op},
		EncryptedPayload: base64.StdEncoding.EncodeToString(ct),
		EncapsulatedKey:  base64.StdEncoding.EncodeToString(enc),
		PublicKey:        base64.StdEncoding.EncodeToString(pub),
	})
}

// OpenPayload decrypts an encrypt_payload result with the private key of the
// session that produced it. It exists for tests and tooling; the native
// library offers no such call.
func (l *Library) OpenPayload(h backend.Handle, result []byte) ([]byte, error) {
	s, ok := l.session(h)
	if !ok {
		return nil, errors.New("shim: invalid session handle")
	}
	var p encryptPayload
	if err := json.Unmarshal(result, &p); err != nil {
		return nil, err
	}
	enc, err := base64.StdEncoding.DecodeString(p.EncapsulatedKey)
	if err != nil {
		return nil, err
	}
	ct, err := base64.StdEncoding.DecodeString(p.EncryptedPayload)
	if err != nil {
		return nil, err
	}
	return open(s.payload.priv, payloadInfo, enc, ct)
}

// Enrolled returns the number of identities in the gallery.
func (l *Library) Enrolled() int {
	if !l.ready() {
		return 0
	}
	return l.gallery.Len()
}

func round(v float64) float64 {
	const scale = 1e6
	if v < 0 {
		return -float64(int64(-v*scale+0.5)) / scale
	}
	return float64(int64(v*scale+0.5)) / scale
}
