package sheets

import "encoding/json"

// Status is the three-way outcome of a fetch.
type Status int

const (
	StatusOK Status = iota
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is what Fetch returns. Body is set for StatusOK, Err for StatusFailed.
// A cancelled fetch carries neither.
type Result struct {
	Status    Status
	Body      json.RawMessage
	Err       error
	RequestID string
}

func ok(id string, body []byte) Result {
	return Result{Status: StatusOK, Body: body, RequestID: id}
}

func failed(id string, err error) Result {
	return Result{Status: StatusFailed, Err: err, RequestID: id}
}

func cancelled(id string) Result {
	return Result{Status: StatusCancelled, RequestID: id}
}
