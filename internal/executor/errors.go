package executor

import "fmt"

// Kind is the taxonomy of submission-time and terminal-state error
// kinds the spec names in its error handling design.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindDisabled         Kind = "disabled"
	KindMainFileMissing  Kind = "main_file_missing"
	KindImageUnavailable Kind = "image_unavailable"
	KindOverloaded       Kind = "overloaded"
	KindRuntimeFailure   Kind = "runtime_failure"
	KindTimeout          Kind = "timeout"
	KindProgramFailure   Kind = "program_failure"
)

// SubmitError is returned synchronously by Submit for any failure
// detected before admission (resolve, gate, validate, provision,
// admit). It is never recorded as an execution.
type SubmitError struct {
	Kind   Kind
	Msg    string
	Detail map[string]any
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("executor: %s: %s", e.Kind, e.Msg)
}

func newSubmitError(kind Kind, msg string, detail map[string]any) *SubmitError {
	return &SubmitError{Kind: kind, Msg: msg, Detail: detail}
}
