package lending

// Outcome is the result of a borrow or return request. Outcomes are values, not errors.
type Outcome int

const (
	// Invalid means the request referenced an unknown borrower or copy, or a copy out of circulation.
	Invalid Outcome = iota

	// Success means the borrow or return took effect.
	Success

	// AlreadyHeld means another borrower holds the copy.
	AlreadyHeld

	// LimitReached means the borrower already holds as many copies as the role allows.
	LimitReached

	// NotHeld means the borrower returned a copy they do not hold.
	NotHeld
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case AlreadyHeld:
		return "already_held"
	case LimitReached:
		return "limit_reached"
	case NotHeld:
		return "not_held"
	default:
		return "invalid"
	}
}

// Policy applies the borrow and return rules on top of the Ledger.
//
// In relaxed mode the limit check and the copy acquisition are separate steps,
// so concurrent borrows by the same borrower may overshoot the limit by the number of racing requests.
// In strict mode the borrower lock is held across both steps; the lock order is always borrower before copy.
// Copy ownership is unaffected by the mode: a copy has at most one holder in both.
type Policy struct {
	ledger *Ledger
	strict bool
}

// NewPolicy creates a Policy on top of the given Ledger.
func NewPolicy(ledger *Ledger, strict bool) *Policy {
	return &Policy{ledger: ledger, strict: strict}
}

// Strict reports whether the strict borrow-limit protocol is active.
func (p *Policy) Strict() bool {
	return p.strict
}

// Borrow lets the Borrower take the Copy.
func (p *Policy) Borrow(b *Borrower, c *Copy) Outcome {
	if b == nil || c == nil || c.Retired() {
		return Invalid
	}

	if p.strict {
		return p.borrowStrict(b, c)
	}

	return p.borrowRelaxed(b, c)
}

func (p *Policy) borrowRelaxed(b *Borrower, c *Copy) Outcome {
	b.mu.Lock()
	limitReached := b.limitReachedLocked()
	b.mu.Unlock()

	if limitReached {
		return LimitReached
	}

	if !p.ledger.TryAcquire(c) {
		return AlreadyHeld
	}

	b.mu.Lock()
	b.held[c.ID] = c
	b.mu.Unlock()

	return Success
}

func (p *Policy) borrowStrict(b *Borrower, c *Copy) Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limitReachedLocked() {
		return LimitReached
	}

	if !p.ledger.TryAcquire(c) {
		return AlreadyHeld
	}

	b.held[c.ID] = c

	return Success
}

// Return gives the Copy back. The Ledger is only touched if the Borrower actually held the Copy.
func (p *Policy) Return(b *Borrower, c *Copy) Outcome {
	if b == nil || c == nil {
		return Invalid
	}

	b.mu.Lock()
	_, held := b.held[c.ID]
	delete(b.held, c.ID)
	b.mu.Unlock()

	if !held {
		return NotHeld
	}

	p.ledger.Release(c)

	return Success
}
