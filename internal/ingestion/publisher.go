package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"LottoLedger/internal/remote"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// OutboundPublisher pushes transfers toward remote domains over JetStream.
// It is the Transport the reconciler sends through: JetStream's publish ack
// stands in for delivery into the relayer, which carries the transfer the
// rest of the way.
//
// Subjects follow the pattern: lotto.outbound.transfer.{destination}
type OutboundPublisher struct {
	js      jetstream.JetStream
	fees    map[string]int64 // destination -> per-message fee
	timeout time.Duration
	log     zerolog.Logger
}

var _ remote.Transport = (*OutboundPublisher)(nil)

func NewOutboundPublisher(js jetstream.JetStream, fees map[string]int64, log zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:      js,
		fees:    fees,
		timeout: 5 * time.Second,
		log:     log,
	}
}

// transferJSON is the wire form consumed by the relayer.
type transferJSON struct {
	TransferID  string `json:"transfer_id"`
	RequestID   string `json:"request_id"`
	Destination string `json:"destination"`
	PoolID      string `json:"pool_id"`
	PoolAddress string `json:"pool_address"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	Receiver    string `json:"receiver"`
}

// Send publishes one outbound transfer. The publish blocks for the stream
// ack; a failed ack surfaces as an error so the caller can fall back to a
// refund credit.
func (op *OutboundPublisher) Send(t remote.Transfer) error {
	data, err := json.Marshal(transferJSON{
		TransferID:  t.TransferID.String(),
		RequestID:   t.RequestID.String(),
		Destination: t.Destination,
		PoolID:      t.PoolID,
		PoolAddress: t.PoolAddress,
		Asset:       t.Asset,
		Amount:      t.Amount,
		Receiver:    t.Receiver,
	})
	if err != nil {
		return fmt.Errorf("marshal transfer: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), op.timeout)
	defer cancel()

	subject := fmt.Sprintf("lotto.outbound.transfer.%s", t.Destination)
	if _, err := op.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish transfer %s: %w", t.TransferID, err)
	}

	op.log.Info().
		Str("transfer_id", t.TransferID.String()).
		Str("destination", t.Destination).
		Str("asset", t.Asset).
		Int64("amount", t.Amount).
		Msg("outbound transfer published")
	return nil
}

// QuoteFee returns the configured per-message fee for a destination.
func (op *OutboundPublisher) QuoteFee(destination string) (int64, error) {
	fee, ok := op.fees[destination]
	if !ok {
		return 0, fmt.Errorf("no fee configured for destination %q", destination)
	}
	return fee, nil
}
