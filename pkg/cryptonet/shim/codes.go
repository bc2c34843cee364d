package shim

// Return codes of the shim's JSON-producing calls. Non-negative values are
// operation identifiers.
const (
	CodeInvalidSession   int32 = -1
	CodeInvalidConfig    int32 = -2
	CodeInvalidImage     int32 = -3
	CodeInvalidEmbedding int32 = -4
	CodeInvalidPayload   int32 = -5
	CodeModelsNotLoaded  int32 = -6
	CodeNotInitialized   int32 = -7
	CodeInternal         int32 = -8
)

// Status values carried in successful payloads.
const (
	StatusOK      = 0
	StatusNoMatch = 1
)

type envelope struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Operation string `json:"operation"`
}

type failure struct {
	envelope
	Code int32 `json:"code"`
}

type enrollPayload struct {
	envelope
	UUID                string `json:"uuid"`
	EncryptedEmbeddings string `json:"encrypted_embeddings"`
	EnrollLevel         int    `json:"enroll_level"`
}

type predictPayload struct {
	envelope
	UUID                string  `json:"uuid"`
	Similarity          float64 `json:"similarity"`
	EncryptedEmbeddings string  `json:"encrypted_embeddings"`
}

type comparePayload struct {
	envelope
	Similarity float64 `json:"similarity"`
	Distance   float64 `json:"distance"`
	Match      bool    `json:"match"`
}

type document struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	CID    string `json:"cid"`
}

type documentPayload struct {
	envelope
	Document    document `json:"document"`
	BarcodeOnly *bool    `json:"barcode_only,omitempty"`
}

type encryptPayload struct {
	envelope
	EncryptedPayload string `json:"encrypted_payload"`
	EncapsulatedKey  string `json:"encapsulated_key"`
	PublicKey        string `json:"public_key"`
}

type modelInfo struct {
	Name       string `json:"name"`
	Loaded     bool   `json:"loaded"`
	EnrollOnly bool   `json:"enroll_only"`
}

type aboutPayload struct {
	envelope
	Version string      `json:"version"`
	Models  []modelInfo `json:"models"`
}
