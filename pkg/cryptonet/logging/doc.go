// Package logging provides a minimal logging facade for the cryptonet wrapper.
//
// The Logger interface wraps the subset of log/slog the wrapper needs. It is
// small on purpose so applications can route wrapper logs into whatever they
// already run:
//
//	// slog.Default()
//	logger := logging.New(nil)
//
//	// an existing zap logger
//	logger := logging.NewZap(zapLogger)
//
// # Redaction
//
// Biometric inputs and outputs never reach the logs. Attributes that would
// carry them are replaced with a placeholder:
//
//	logger.Debug(ctx, "enroll complete", "id", id, logging.Redacted("payload"))
//	// payload="[redacted]"
//
// Pixel buffers, encrypted embeddings, plaintext payloads and bearer tokens
// all fall under this rule.
package logging
