package ingestion

import (
	"encoding/json"
	"fmt"

	"LottoLedger/internal/event"

	"github.com/google/uuid"
)

// ParseRawRequest converts a raw message into a typed request. The request
// type string comes from the subject that delivered it.
func ParseRawRequest(raw RawRequest, requestType string) (event.Request, error) {
	switch requestType {
	case "RemotePurchase":
		return parseRemotePurchase(raw.Data)
	case "RemoteDispatch":
		return parseRemoteDispatch(raw.Data)
	default:
		return nil, fmt.Errorf("unknown request type: %s", requestType)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match the relayer.

type remotePurchaseJSON struct {
	RequestID    string `json:"request_id"`
	Origin       string `json:"origin"`
	LotteryID    uint64 `json:"lottery_id"`
	Bucket       int64  `json:"bucket"`
	Count        int64  `json:"count"`
	Buyer        string `json:"buyer"`
	Receiver     string `json:"receiver"`
	EscrowAsset  string `json:"escrow_asset"`
	EscrowAmount int64  `json:"escrow_amount"`
}

func parseRemotePurchase(data []byte) (*event.RemotePurchase, error) {
	var j remotePurchaseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RemotePurchase: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	if j.Origin == "" || j.Receiver == "" {
		return nil, fmt.Errorf("parse RemotePurchase: missing origin or receiver")
	}
	if j.EscrowAmount < 0 {
		return nil, fmt.Errorf("parse RemotePurchase: negative escrow amount")
	}
	return &event.RemotePurchase{
		RequestID:    requestID,
		Origin:       j.Origin,
		LotteryID:    j.LotteryID,
		Bucket:       j.Bucket,
		Count:        j.Count,
		Buyer:        j.Buyer,
		Receiver:     j.Receiver,
		EscrowAsset:  j.EscrowAsset,
		EscrowAmount: j.EscrowAmount,
	}, nil
}

type remoteDispatchJSON struct {
	RequestID string `json:"request_id"`
	Origin    string `json:"origin"`
	Sender    string `json:"sender"`
	LotteryID uint64 `json:"lottery_id"`
	PoolID    string `json:"pool_id"`
}

// parseRemoteDispatch maps one wire form to two request types: lottery_id 0
// is the relayer's sentinel for "drain my refund credit", anything else is a
// claim on that lottery. The sentinel never escapes the parser as a bare zero.
func parseRemoteDispatch(data []byte) (event.Request, error) {
	var j remoteDispatchJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RemoteDispatch: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	if j.Origin == "" || j.Sender == "" {
		return nil, fmt.Errorf("parse RemoteDispatch: missing origin or sender")
	}
	if j.PoolID == "" {
		return nil, fmt.Errorf("parse RemoteDispatch: missing pool_id")
	}

	if j.LotteryID == 0 {
		return &event.RemoteRefundDrain{
			RequestID: requestID,
			Origin:    j.Origin,
			Sender:    j.Sender,
			PoolID:    j.PoolID,
		}, nil
	}

	return &event.RemoteClaim{
		RequestID: requestID,
		Origin:    j.Origin,
		Sender:    j.Sender,
		LotteryID: j.LotteryID,
		PoolID:    j.PoolID,
	}, nil
}
