package types

// FallbackError is used when a failure carries no message, so an error
// result never serializes as an empty object.
const FallbackError = "conversion failed"

// Result is the body of POST /documents/convert. Exactly one field is set;
// build it with TextResult, DataResult or ErrorResult.
type Result struct {
	Text  *string        `json:"text,omitempty"`  // markdown export
	Data  map[string]any `json:"data,omitempty"`  // document tree export
	Error *string        `json:"error,omitempty"` // engine or conversion failure
}

func TextResult(text string) Result {
	return Result{Text: &text}
}

// DataResult wraps a document tree. An empty tree would drop the field from
// the JSON body, so it becomes an error result instead.
func DataResult(data map[string]any) Result {
	if len(data) == 0 {
		return ErrorResult("engine returned an empty document")
	}
	return Result{Data: data}
}

func ErrorResult(msg string) Result {
	if msg == "" {
		msg = FallbackError
	}
	return Result{Error: &msg}
}

func (r Result) Failed() bool { return r.Error != nil }

// ErrorMessage returns the error text, or "" for a successful result.
func (r Result) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// ---------- Diagnostics ----------

type SystemInfo struct {
	AcceleratorAvailable bool   `json:"accelerator_available"`
	CurrentDevice        string `json:"current_device"`
	EngineVersion        string `json:"engine_version"`
	AcceleratorBuilt     bool   `json:"accelerator_built"`
}
