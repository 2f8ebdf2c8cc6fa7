package event

import (
	"time"
)

// Kind discriminates applied-operation envelopes and inbound requests.
type Kind int32

const (
	KindUnknown Kind = iota
	KindCreateLottery
	KindSetPrices
	KindPurchase
	KindRemotePurchase
	KindRemoteClaim
	KindRemoteRefundDrain
	KindClaim
	KindResolve
	KindTransferProceeds
	KindAddProceeds
	KindWithdrawFees
	KindFundFeeBudget
	KindDeposit
	KindRecordPrice
)

// Envelope wraps every applied operation in the event log.
type Envelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Stable idempotency key: remote request id for remote ops, a fresh
	// uuid for locally originated ops
	IdempotencyKey string

	// Operation discriminator
	Kind Kind

	// Lottery context; 0 for operations not tied to one lottery
	LotteryID uint64

	// Engine-observed time of application
	Timestamp time.Time

	// JSON-encoded operation detail
	Payload []byte
}

// Request is the interface all inbound remote requests implement.
type Request interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// RequestKind returns the discriminator
	RequestKind() Kind

	// Lottery returns the lottery context (0 for refund drains)
	Lottery() uint64
}

func (k Kind) String() string {
	switch k {
	case KindCreateLottery:
		return "CreateLottery"
	case KindSetPrices:
		return "SetPrices"
	case KindPurchase:
		return "Purchase"
	case KindRemotePurchase:
		return "RemotePurchase"
	case KindRemoteClaim:
		return "RemoteClaim"
	case KindRemoteRefundDrain:
		return "RemoteRefundDrain"
	case KindClaim:
		return "Claim"
	case KindResolve:
		return "Resolve"
	case KindTransferProceeds:
		return "TransferProceeds"
	case KindAddProceeds:
		return "AddProceeds"
	case KindWithdrawFees:
		return "WithdrawFees"
	case KindFundFeeBudget:
		return "FundFeeBudget"
	case KindDeposit:
		return "Deposit"
	case KindRecordPrice:
		return "RecordPrice"
	default:
		return "Unknown"
	}
}

// ParseKind maps the string form stored in the event log back to a Kind.
func ParseKind(s string) Kind {
	switch s {
	case "CreateLottery":
		return KindCreateLottery
	case "SetPrices":
		return KindSetPrices
	case "Purchase":
		return KindPurchase
	case "RemotePurchase":
		return KindRemotePurchase
	case "RemoteClaim":
		return KindRemoteClaim
	case "RemoteRefundDrain":
		return KindRemoteRefundDrain
	case "Claim":
		return KindClaim
	case "Resolve":
		return KindResolve
	case "TransferProceeds":
		return KindTransferProceeds
	case "AddProceeds":
		return KindAddProceeds
	case "WithdrawFees":
		return KindWithdrawFees
	case "FundFeeBudget":
		return KindFundFeeBudget
	case "Deposit":
		return KindDeposit
	case "RecordPrice":
		return KindRecordPrice
	default:
		return KindUnknown
	}
}
