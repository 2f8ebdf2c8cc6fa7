package ingestion_test

import (
	"testing"

	"LottoLedger/internal/event"
	"LottoLedger/internal/ingestion"
)

func parse(t *testing.T, requestType, body string) (event.Request, error) {
	t.Helper()
	return ingestion.ParseRawRequest(ingestion.RawRequest{Data: []byte(body)}, requestType)
}

// ============================================================================
// Test: RemotePurchase wire format
// ============================================================================

func TestParseRemotePurchase(t *testing.T) {
	req, err := parse(t, "RemotePurchase", `{
		"request_id": "8f14e45f-ceea-4e77-8bbd-1efcd2f30d1d",
		"origin": "domain-a",
		"lottery_id": 7,
		"bucket": 6350000000000,
		"count": 5,
		"buyer": "a1origin",
		"receiver": "alice",
		"escrow_asset": "USDC",
		"escrow_amount": 6372348000
	}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p, ok := req.(*event.RemotePurchase)
	if !ok {
		t.Fatalf("got %T, want *event.RemotePurchase", req)
	}
	if p.RequestID.String() != "8f14e45f-ceea-4e77-8bbd-1efcd2f30d1d" {
		t.Errorf("request id = %s", p.RequestID)
	}
	if p.LotteryID != 7 || p.Bucket != 6_350_000_000_000 || p.Count != 5 {
		t.Errorf("order fields = %d/%d/%d", p.LotteryID, p.Bucket, p.Count)
	}
	if p.Receiver != "alice" || p.EscrowAsset != "USDC" || p.EscrowAmount != 6_372_348_000 {
		t.Errorf("escrow fields = %s/%s/%d", p.Receiver, p.EscrowAsset, p.EscrowAmount)
	}
	if p.RequestKind() != event.KindRemotePurchase {
		t.Errorf("kind = %v", p.RequestKind())
	}
}

func TestParseRemotePurchase_Rejects(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"request_id":`},
		{"bad uuid", `{"request_id": "not-a-uuid", "origin": "a", "receiver": "b"}`},
		{"missing origin", `{"request_id": "8f14e45f-ceea-4e77-8bbd-1efcd2f30d1d", "receiver": "b"}`},
		{"missing receiver", `{"request_id": "8f14e45f-ceea-4e77-8bbd-1efcd2f30d1d", "origin": "a"}`},
		{"negative escrow", `{"request_id": "8f14e45f-ceea-4e77-8bbd-1efcd2f30d1d", "origin": "a", "receiver": "b", "escrow_amount": -1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parse(t, "RemotePurchase", tc.body); err == nil {
				t.Error("accepted invalid request")
			}
		})
	}
}

// ============================================================================
// Test: RemoteDispatch wire format
// ============================================================================

func TestParseRemoteDispatch_Claim(t *testing.T) {
	req, err := parse(t, "RemoteDispatch", `{
		"request_id": "8f14e45f-ceea-4e77-8bbd-1efcd2f30d1d",
		"origin": "domain-a",
		"sender": "alice",
		"lottery_id": 3,
		"pool_id": "pool-1"
	}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c, ok := req.(*event.RemoteClaim)
	if !ok {
		t.Fatalf("got %T, want *event.RemoteClaim", req)
	}
	if c.LotteryID != 3 || c.PoolID != "pool-1" || c.Sender != "alice" {
		t.Errorf("claim fields = %d/%s/%s", c.LotteryID, c.PoolID, c.Sender)
	}
	if c.Lottery() != 3 {
		t.Errorf("Lottery() = %d", c.Lottery())
	}
}

// lottery_id 0 on the wire means "drain my refund credit"; the parser turns
// the sentinel into its own type.
func TestParseRemoteDispatch_ZeroIsRefundDrain(t *testing.T) {
	req, err := parse(t, "RemoteDispatch", `{
		"request_id": "8f14e45f-ceea-4e77-8bbd-1efcd2f30d1d",
		"origin": "domain-a",
		"sender": "alice",
		"lottery_id": 0,
		"pool_id": "pool-1"
	}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	d, ok := req.(*event.RemoteRefundDrain)
	if !ok {
		t.Fatalf("got %T, want *event.RemoteRefundDrain", req)
	}
	if d.Sender != "alice" || d.PoolID != "pool-1" {
		t.Errorf("drain fields = %s/%s", d.Sender, d.PoolID)
	}
	if d.RequestKind() != event.KindRemoteRefundDrain {
		t.Errorf("kind = %v", d.RequestKind())
	}
}

func TestParseRemoteDispatch_Rejects(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"bad uuid", `{"request_id": "xyz", "origin": "a", "sender": "b", "pool_id": "p"}`},
		{"missing sender", `{"request_id": "8f14e45f-ceea-4e77-8bbd-1efcd2f30d1d", "origin": "a", "pool_id": "p"}`},
		{"missing pool id", `{"request_id": "8f14e45f-ceea-4e77-8bbd-1efcd2f30d1d", "origin": "a", "sender": "b"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parse(t, "RemoteDispatch", tc.body); err == nil {
				t.Error("accepted invalid request")
			}
		})
	}
}

func TestParse_UnknownRequestType(t *testing.T) {
	if _, err := parse(t, "Telemetry", `{}`); err == nil {
		t.Error("accepted unknown request type")
	}
}
