package cryptonet

// EnrollConfig is the per-call configuration for Session.Enroll. A zero
// InputImageFormat is filled from the image at call time.
type EnrollConfig struct {
	InputImageFormat       ImageFormat `json:"input_image_format,omitempty"`
	MFToken                string      `json:"mf_token,omitempty"`
	SkipAntispoof          bool        `json:"skip_antispoof"`
	DisableEnrollMF        bool        `json:"disable_enroll_mf"`
	ThresholdUserTooFar    float64     `json:"threshold_user_too_far"`
	ThresholdUserTooClose  float64     `json:"threshold_user_too_close"`
	ThresholdUserRight     float64     `json:"threshold_user_right"`
	ThresholdUserLeft      float64     `json:"threshold_user_left"`
	ThresholdProfileEnroll float64     `json:"threshold_profile_enroll"`
}

// DefaultEnrollConfig returns the thresholds the library ships with.
func DefaultEnrollConfig() *EnrollConfig {
	return &EnrollConfig{
		SkipAntispoof:          true,
		ThresholdUserTooFar:    0.31,
		ThresholdUserTooClose:  0.55,
		ThresholdUserRight:     0.2,
		ThresholdUserLeft:      0.8,
		ThresholdProfileEnroll: 0.66,
	}
}

// PredictConfig is the per-call configuration for Session.Predict.
type PredictConfig struct {
	InputImageFormat             ImageFormat `json:"input_image_format,omitempty"`
	SkipAntispoof                bool        `json:"skip_antispoof"`
	MFToken                      string      `json:"mf_token,omitempty"`
	AntiSpoofingThreshold        float64     `json:"anti_spoofing_threshold"`
	ThresholdUserTooClose        float64     `json:"threshold_user_too_close"`
	ThresholdUserTooFar          float64     `json:"threshold_user_too_far"`
	ThresholdUserRight           float64     `json:"threshold_user_right"`
	ThresholdUserLeft            float64     `json:"threshold_user_left"`
	ThresholdDownVerticalPredict float64     `json:"threshold_down_vertical_predict"`
	ThresholdHighVerticalPredict float64     `json:"threshold_high_vertical_predict"`
	ThresholdProfilePredict      float64     `json:"threshold_profile_predict"`
	MFCountOverride              float64     `json:"mf_count_override"`
	DisablePredictMF             bool        `json:"disable_predict_mf"`
}

// DefaultPredictConfig returns the thresholds the library ships with.
func DefaultPredictConfig() *PredictConfig {
	return &PredictConfig{
		SkipAntispoof:                true,
		AntiSpoofingThreshold:        0.75,
		ThresholdUserTooClose:        0.8,
		ThresholdUserTooFar:          0.1,
		ThresholdUserRight:           0.01,
		ThresholdUserLeft:            0.99,
		ThresholdDownVerticalPredict: 0.7,
		ThresholdHighVerticalPredict: -0.1,
		ThresholdProfilePredict:      0.7,
		MFCountOverride:              3,
	}
}

// DocumentFrontScanConfig is the per-call configuration for
// Session.ScanDocumentFront.
type DocumentFrontScanConfig struct {
	InputImageFormat ImageFormat `json:"input_image_format,omitempty"`
	SkipAntispoof    bool        `json:"skip_antispoof"`
}

// DefaultDocumentFrontScanConfig returns the library defaults.
func DefaultDocumentFrontScanConfig() *DocumentFrontScanConfig {
	return &DocumentFrontScanConfig{SkipAntispoof: true}
}

// DocumentBackScanConfig is the per-call configuration for
// Session.ScanDocumentBack.
type DocumentBackScanConfig struct {
	InputImageFormat        ImageFormat `json:"input_image_format,omitempty"`
	SkipAntispoof           bool        `json:"skip_antispoof"`
	DocumentScanBarcodeOnly bool        `json:"document_scan_barcode_only"`
}

// DefaultDocumentBackScanConfig returns the library defaults.
func DefaultDocumentBackScanConfig() *DocumentBackScanConfig {
	return &DocumentBackScanConfig{SkipAntispoof: true, DocumentScanBarcodeOnly: true}
}

// imageConfig is implemented by the per-call configs of the pixel-buffer
// operations so the session can reconcile the declared layout with the image.
type imageConfig interface {
	imageFormat() ImageFormat
	setImageFormat(ImageFormat)
}

func (c *EnrollConfig) imageFormat() ImageFormat            { return c.InputImageFormat }
func (c *EnrollConfig) setImageFormat(f ImageFormat)        { c.InputImageFormat = f }
func (c *PredictConfig) imageFormat() ImageFormat           { return c.InputImageFormat }
func (c *PredictConfig) setImageFormat(f ImageFormat)       { c.InputImageFormat = f }
func (c *DocumentFrontScanConfig) imageFormat() ImageFormat { return c.InputImageFormat }
func (c *DocumentFrontScanConfig) setImageFormat(f ImageFormat) {
	c.InputImageFormat = f
}
func (c *DocumentBackScanConfig) imageFormat() ImageFormat { return c.InputImageFormat }
func (c *DocumentBackScanConfig) setImageFormat(f ImageFormat) {
	c.InputImageFormat = f
}
