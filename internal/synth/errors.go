package synth

import "errors"

var (
	// ErrSynthesisFailure covers every reason a candidate tool was not installed.
	ErrSynthesisFailure = errors.New("tool synthesis failed")
	// ErrLedgerBlocked means the candidate matches a tool the operator deleted.
	// It is never retried.
	ErrLedgerBlocked = errors.New("capability was removed by the operator")
)
