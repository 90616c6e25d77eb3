package stepclient

import "fmt"

// CallError describes a failed collaborator call. StatusCode is zero when the
// request never got a response.
type CallError struct {
	Operation  string
	StatusCode int
	Message    string
	// Rejected is set when the collaborator answered 2xx with success:false.
	Rejected bool
	Err      error
}

func (e *CallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Operation, e.Message, e.Err)
	}
	return e.Operation + " " + e.Message
}

func (e *CallError) Unwrap() error { return e.Err }

// ClientError reports a 4xx answer, which retrying the same request will not fix.
func (e *CallError) ClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}
