package store

import (
	"time"

	"github.com/dhcgn/trapmail/model"
)

// Predicate selects records. Predicates run after a record has been decoded.
type Predicate func(model.Record) bool

// All matches records satisfying every predicate. Nil predicates are skipped; no predicates
// match everything.
func All(preds ...Predicate) Predicate {
	return func(rec model.Record) bool {
		for _, p := range preds {
			if p != nil && !p(rec) {
				return false
			}
		}
		return true
	}
}

// Any matches records satisfying at least one predicate.
func Any(preds ...Predicate) Predicate {
	return func(rec model.Record) bool {
		for _, p := range preds {
			if p != nil && p(rec) {
				return true
			}
		}
		return false
	}
}

// Where adapts an arbitrary function.
func Where(fn func(model.Record) bool) Predicate {
	return Predicate(fn)
}

func ByPID(pid int) Predicate {
	return func(rec model.Record) bool { return rec.PID == pid }
}

func ByPPID(ppid int) Predicate {
	return func(rec model.Record) bool { return rec.PPID == ppid }
}

// Between matches records captured in [from, to). A zero bound leaves that side open.
func Between(from, to time.Time) Predicate {
	return func(rec model.Record) bool {
		ts := rec.TimestampUS
		if !from.IsZero() && ts < from.UnixMicro() {
			return false
		}
		if !to.IsZero() && ts >= to.UnixMicro() {
			return false
		}
		return true
	}
}

func BySender(sender string) Predicate {
	return func(rec model.Record) bool { return rec.Envelope.Sender == sender }
}

// ByRecipient matches records addressed to rcpt.
func ByRecipient(rcpt string) Predicate {
	return func(rec model.Record) bool {
		for _, r := range rec.Envelope.Recipients {
			if r == rcpt {
				return true
			}
		}
		return false
	}
}

// WithFlag matches records whose invocation carried the named flag.
func WithFlag(name model.FlagName) Predicate {
	return func(rec model.Record) bool { return rec.Invocation.Has(name) }
}
