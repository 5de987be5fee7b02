package accountant

import "fmt"

// Ledger tracks aggregate resident bytes against a ceiling. It is not safe for
// concurrent use; the owner serializes access.
type Ledger struct {
	ceiling int64
	used    int64
}

// NewLedger returns a ledger with the given ceiling in bytes.
func NewLedger(ceiling int64) *Ledger {
	if ceiling < 0 {
		ceiling = 0
	}
	return &Ledger{ceiling: ceiling}
}

func (l *Ledger) Ceiling() int64 { return l.ceiling }

func (l *Ledger) Used() int64 { return l.used }

// Available is the headroom left below the ceiling, never negative.
func (l *Ledger) Available() int64 {
	if a := l.ceiling - l.used; a > 0 {
		return a
	}
	return 0
}

// Fits reports whether n more bytes stay within the ceiling.
func (l *Ledger) Fits(n int64) bool { return n <= l.ceiling-l.used }

// Reserve records n bytes as used, failing if that would cross the ceiling.
func (l *Ledger) Reserve(n int64) error {
	if n < 0 {
		return fmt.Errorf("reserve: negative size %d", n)
	}
	if !l.Fits(n) {
		return fmt.Errorf("reserve %d bytes: %d of %d in use", n, l.used, l.ceiling)
	}
	l.used += n
	return nil
}

// Release returns n bytes. Usage is clamped at zero.
func (l *Ledger) Release(n int64) {
	l.used -= n
	if l.used < 0 {
		l.used = 0
	}
}

// Adjust applies a footprint change observed after load. Unlike Reserve it may
// push usage past the ceiling; the pressure monitor reclaims the excess.
func (l *Ledger) Adjust(delta int64) {
	l.used += delta
	if l.used < 0 {
		l.used = 0
	}
}
