package core

// Status values used in the response envelope.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ErrorBody is the serialized error half of the envelope.
type ErrorBody struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

// Envelope is the uniform result wrapper returned by every facade operation.
// Result holds the transformed text or document on success.
type Envelope struct {
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	// EntityCount is the number of entity occurrences substituted or
	// restored by the operation.
	EntityCount int        `json:"entity_count"`
	Error       *ErrorBody `json:"error,omitempty"`
}

// OKEnvelope builds a success envelope.
func OKEnvelope(result any, entityCount int) Envelope {
	return Envelope{Status: StatusOK, Result: result, EntityCount: entityCount}
}

// ErrorEnvelope builds a failure envelope from an EngineError.
func ErrorEnvelope(err *EngineError) Envelope {
	return Envelope{
		Status: StatusError,
		Error: &ErrorBody{
			Kind:      err.Kind,
			Message:   err.Message,
			Retryable: err.Retryable(),
		},
	}
}
