package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields, propagated through the call chain.
const (
	// FieldRequestID is the HTTP request ID (UUID).
	FieldRequestID = "request_id"

	// FieldJobID is the load job ID.
	FieldJobID = "job_id"

	// FieldSessionID is the upload session ID.
	FieldSessionID = "session_id"

	// FieldTable is the target table name.
	FieldTable = "table"

	// FieldComponent is the component/module name.
	FieldComponent = "component"
)

// Standard metric fields used for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds.
	FieldDurationMs = "duration_ms"

	// FieldRows is a row count.
	FieldRows = "rows"

	// FieldChunk is the 1-based chunk index within a load.
	FieldChunk = "chunk"

	// FieldStatus is the operation status.
	FieldStatus = "status"
)
