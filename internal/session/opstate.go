package session

import (
	"encoding/json"

	"github.com/starford/nota/internal/apperr"
)

// Op names an asynchronous AI operation.
type Op string

// Operation kinds.
const (
	OpSummarize Op = "summarize"
	OpEnhance   Op = "enhance"
)

// Status is the lifecycle position of an operation.
type Status string

// Operation statuses.
const (
	StatusIdle      Status = "idle"
	StatusInFlight  Status = "in-flight"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// OpState is the observable state of one operation kind.
type OpState struct {
	Status Status
	Value  string
	Err    error
}

// MarshalJSON encodes the error as its message and kind.
func (s OpState) MarshalJSON() ([]byte, error) {
	out := struct {
		Status Status      `json:"status"`
		Value  string      `json:"value,omitempty"`
		Error  string      `json:"error,omitempty"`
		Kind   apperr.Kind `json:"error_kind,omitempty"`
	}{Status: s.Status, Value: s.Value}
	if s.Err != nil {
		out.Error = s.Err.Error()
		out.Kind = apperr.KindOf(s.Err)
	}
	return json.Marshal(out)
}

// opSlot tracks the running instance of one operation kind. seq identifies
// the instance so a cancelled or superseded run cannot publish its result.
type opSlot struct {
	state  OpState
	cancel func()
	seq    uint64
}

func (o *opSlot) inFlight() bool { return o.state.Status == StatusInFlight }

func (o *opSlot) begin(cancel func()) uint64 {
	o.seq++
	o.cancel = cancel
	o.state = OpState{Status: StatusInFlight}
	return o.seq
}

// abort cancels the running instance and returns the slot to idle.
func (o *opSlot) abort() bool {
	if !o.inFlight() {
		return false
	}
	if o.cancel != nil {
		o.cancel()
	}
	o.seq++
	o.cancel = nil
	o.state = OpState{Status: StatusIdle}
	return true
}

func (o *opSlot) finish(seq uint64, value string, err error) bool {
	if o.seq != seq {
		return false
	}
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	switch {
	case apperr.KindOf(err) == apperr.KindCanceled:
		o.state = OpState{Status: StatusIdle}
	case err != nil:
		o.state = OpState{Status: StatusFailed, Err: err}
	default:
		o.state = OpState{Status: StatusSucceeded, Value: value}
	}
	return true
}
