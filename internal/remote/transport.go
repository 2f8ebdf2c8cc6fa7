package remote

import "github.com/google/uuid"

// Transfer is an outbound cross-domain payout or refund. RequestID is the
// inbound request that caused it: a transfer re-published after a restart
// carries a fresh TransferID but the same RequestID, which is what the
// destination relayer reconciles against.
type Transfer struct {
	TransferID  uuid.UUID
	RequestID   uuid.UUID
	Destination string // destination domain identifier
	PoolID      string
	PoolAddress string
	Asset       string
	Amount      int64
	Receiver    string
}

// Transport is the remote-messaging collaborator for the outbound direction.
// Send must be at-least-once with a stable TransferID so the remote side can
// dedup. QuoteFee prices a send to the destination in the local fee-budget
// unit.
type Transport interface {
	Send(t Transfer) error
	QuoteFee(destination string) (int64, error)
}
