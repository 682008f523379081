package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Envelope carries the sender and recipients handed to trapmail on the command line.
type Envelope struct {
	Sender     string   `json:"sender"`
	Recipients []string `json:"recipients"`
}

// ProcessInfo identifies the capturing process. Together the three fields form the record's
// natural key and determine its file name.
type ProcessInfo struct {
	PID         int   `json:"pid"`
	PPID        int   `json:"ppid"`
	TimestampUS int64 `json:"timestamp_us"`
}

// Time converts the microsecond timestamp into a UTC time.
func (p ProcessInfo) Time() time.Time {
	return time.UnixMicro(p.TimestampUS).UTC()
}

// Record is one captured message as persisted in the store.
type Record struct {
	Envelope   Envelope   `json:"envelope"`
	Message    Message    `json:"message"`
	Invocation Invocation `json:"invocation"`
	ProcessInfo
}

// NewRecord builds a Record, normalising nil slices and maps so that a record survives an
// Encode/Decode round trip unchanged.
func NewRecord(env Envelope, raw []byte, inv Invocation, proc ProcessInfo) Record {
	rec := Record{
		Envelope:    env,
		Message:     Message(raw),
		Invocation:  inv,
		ProcessInfo: proc,
	}
	rec.normalize()
	return rec
}

func (r *Record) normalize() {
	if r.Envelope.Recipients == nil {
		r.Envelope.Recipients = []string{}
	}
	if r.Message == nil {
		r.Message = Message{}
	}
	if r.Invocation.Args == nil {
		r.Invocation.Args = []string{}
	}
	if r.Invocation.Flags == nil {
		r.Invocation.Flags = []Flag{}
	}
	if r.Invocation.Env == nil {
		r.Invocation.Env = map[string]string{}
	}
}

// Encode serialises the record as indented JSON followed by a newline. The output is
// byte-stable: struct fields keep declaration order and map keys are sorted.
func Encode(r Record) ([]byte, error) {
	r.normalize()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a record produced by Encode. Unknown fields are ignored.
func Decode(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	r.normalize()
	return r, nil
}

// String renders the record the way `trapmail dump` prints it.
func (r Record) String() string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Mail sent on %s UTC from PID %d (PPID %d).\n",
		r.Time().Format("2006-01-02 15:04:05.000000"), r.PID, r.PPID)
	fmt.Fprintf(&b, "Sender: %s\n", r.Envelope.Sender)
	fmt.Fprintf(&b, "Recipients: %v\n", r.Envelope.Recipients)
	for _, f := range r.Invocation.Flags {
		fmt.Fprintf(&b, "Flag: %s\n", f)
	}
	b.WriteString(r.Message.String())
	return b.String()
}
