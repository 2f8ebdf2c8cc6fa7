package remote

// RefundKey identifies an account's refund credit in one collateral asset.
type RefundKey struct {
	Asset   string
	Account string
}

// RefundLedger holds amounts owed back to origin-domain accounts after a
// remote request could not be honored. Credits accrue across failures and are
// cleared in full when drained by an outbound transfer. Not safe for
// concurrent use — the engine serializes all access.
type RefundLedger struct {
	credits map[RefundKey]int64
}

func NewRefundLedger() *RefundLedger {
	return &RefundLedger{
		credits: make(map[RefundKey]int64),
	}
}

func (r *RefundLedger) Credit(asset, account string, amount int64) {
	if amount <= 0 {
		return
	}
	r.credits[RefundKey{asset, account}] += amount
}

func (r *RefundLedger) Balance(asset, account string) int64 {
	return r.credits[RefundKey{asset, account}]
}

// Drain reads and zeroes the credit in one step. The caller must either send
// the returned amount outbound or re-credit it on failure.
func (r *RefundLedger) Drain(asset, account string) int64 {
	key := RefundKey{asset, account}
	amount := r.credits[key]
	delete(r.credits, key)
	return amount
}

// Snapshot returns a copy of all credits.
func (r *RefundLedger) Snapshot() map[RefundKey]int64 {
	cp := make(map[RefundKey]int64, len(r.credits))
	for k, v := range r.credits {
		cp[k] = v
	}
	return cp
}

// Restore replaces all credits from a snapshot.
func (r *RefundLedger) Restore(credits map[RefundKey]int64) {
	r.credits = make(map[RefundKey]int64, len(credits))
	for k, v := range credits {
		r.credits[k] = v
	}
}
