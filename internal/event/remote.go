package event

import "github.com/google/uuid"

// RemotePurchase is a ticket purchase initiated on a remote domain. The
// escrowed collateral already moved with the message: by the time this request
// reaches the engine the funds are held locally and cannot be returned by
// failing the call.
type RemotePurchase struct {
	RequestID    uuid.UUID
	Origin       string // origin domain identifier
	LotteryID    uint64
	Bucket       int64
	Count        int64
	Buyer        string // buyer's account on the origin domain
	Receiver     string // local account receiving tickets (and any refund credit)
	EscrowAsset  string
	EscrowAmount int64
}

func (p *RemotePurchase) IdempotencyKey() string {
	return p.RequestID.String()
}

func (p *RemotePurchase) RequestKind() Kind {
	return KindRemotePurchase
}

func (p *RemotePurchase) Lottery() uint64 {
	return p.LotteryID
}

// RemoteClaim asks for a claimant's winnings to be sent back toward the
// origin domain through the pool identified by PoolID.
type RemoteClaim struct {
	RequestID uuid.UUID
	Origin    string
	Sender    string // claimant account
	LotteryID uint64
	PoolID    string
}

func (c *RemoteClaim) IdempotencyKey() string {
	return c.RequestID.String()
}

func (c *RemoteClaim) RequestKind() Kind {
	return KindRemoteClaim
}

func (c *RemoteClaim) Lottery() uint64 {
	return c.LotteryID
}

// RemoteRefundDrain asks for the sender's accrued refund credit to be sent
// back toward the origin domain. On the wire this is a dispatch with lottery
// id 0; the parser maps the sentinel to this type so nothing downstream
// branches on a magic value.
type RemoteRefundDrain struct {
	RequestID uuid.UUID
	Origin    string
	Sender    string
	PoolID    string
}

func (d *RemoteRefundDrain) IdempotencyKey() string {
	return d.RequestID.String()
}

func (d *RemoteRefundDrain) RequestKind() Kind {
	return KindRemoteRefundDrain
}

func (d *RemoteRefundDrain) Lottery() uint64 {
	return 0
}
