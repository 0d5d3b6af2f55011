package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	// Context lifecycle. These are the only reasons that reach the
	// public surface; everything else degrades to a safe default.
	ReasonContextNotFound ReasonCode = "context_not_found"
	ReasonContextExists   ReasonCode = "context_exists"
	ReasonBadInput        ReasonCode = "bad_input"

	ReasonClassifyFailed ReasonCode = "classify_failed"
	ReasonEmotionFailed  ReasonCode = "emotion_failed"
	ReasonPredictFailed  ReasonCode = "predict_failed"
	ReasonGenerateFailed ReasonCode = "generate_failed"

	ReasonCacheBackend ReasonCode = "cache_backend"
	ReasonTurnTimeout  ReasonCode = "turn_timeout"

	ReasonSTTConnect ReasonCode = "stt_connect"
	ReasonSTTSend    ReasonCode = "stt_send"
	ReasonTTSConnect ReasonCode = "tts_connect"
	ReasonTTSSend    ReasonCode = "tts_send"

	ReasonTransportSend             ReasonCode = "transport_send"
	ReasonTransportInvalidSignature ReasonCode = "webhook_invalid_signature"
	ReasonHangupFailed              ReasonCode = "hangup_failed"
)
