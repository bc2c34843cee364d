package cryptonet

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Op names a library entry point in results, errors and logs.
type Op string

const (
	OpEnroll      Op = "user_enroll"
	OpPredict     Op = "user_predict"
	OpScanFront   Op = "doc_scan_front"
	OpScanBack    Op = "doc_scan_back"
	OpCompare     Op = "compare_embeddings"
	OpEncrypt     Op = "encrypt_payload"
	OpAboutModels Op = "about_models"
	OpConfigure   Op = "set_configuration"
)

// Result is a completed operation: the non-negative identifier the library
// returned and the JSON document it produced. The payload schema belongs to
// the library; Decode is a convenience for callers who know it.
type Result struct {
	Op      Op
	ID      int32
	Payload json.RawMessage
}

// Decode unmarshals the payload into v.
func (r *Result) Decode(v any) error {
	if r == nil || len(r.Payload) == 0 {
		return errors.New("cryptonet: empty result payload")
	}
	return json.Unmarshal(r.Payload, v)
}

func (r *Result) String() string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s#%d (%d bytes)", r.Op, r.ID, len(r.Payload))
}

// encodeJSON turns caller input into the bytes sent across the boundary. Raw
// forms pass through untouched; nil becomes an empty object.
func encodeJSON(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return []byte("{}"), nil
	case json.RawMessage:
		if len(x) == 0 {
			return []byte("{}"), nil
		}
		return x, nil
	case []byte:
		if len(x) == 0 {
			return []byte("{}"), nil
		}
		return x, nil
	case string:
		if x == "" {
			return []byte("{}"), nil
		}
		return []byte(x), nil
	default:
		return json.Marshal(v)
	}
}
