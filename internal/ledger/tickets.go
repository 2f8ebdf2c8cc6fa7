package ledger

import (
	"fmt"
)

// PositionKey identifies one ticket position: an account's holdings in one
// bucket of one lottery.
type PositionKey struct {
	Account   string
	LotteryID uint64
	Bucket    int64
}

// TicketLedger is the multi-position ownership store for tickets. Positions
// are mutated only by Mint (purchase) and Burn (claim) and are never
// negative. The production deployment binds an external balance store here;
// MemoryTicketLedger is the in-process implementation.
type TicketLedger interface {
	Mint(account string, lotteryID uint64, bucket int64, count int64) error
	Burn(account string, lotteryID uint64, bucket int64, count int64) error
	Balance(account string, lotteryID uint64, bucket int64) int64
}

// MemoryTicketLedger keeps positions in a map. Not safe for concurrent use —
// the engine serializes all access.
type MemoryTicketLedger struct {
	positions map[PositionKey]int64
}

func NewMemoryTicketLedger() *MemoryTicketLedger {
	return &MemoryTicketLedger{
		positions: make(map[PositionKey]int64),
	}
}

func (m *MemoryTicketLedger) Mint(account string, lotteryID uint64, bucket int64, count int64) error {
	if count <= 0 {
		return fmt.Errorf("mint count must be positive: %d", count)
	}
	m.positions[PositionKey{account, lotteryID, bucket}] += count
	return nil
}

func (m *MemoryTicketLedger) Burn(account string, lotteryID uint64, bucket int64, count int64) error {
	if count <= 0 {
		return fmt.Errorf("burn count must be positive: %d", count)
	}
	key := PositionKey{account, lotteryID, bucket}
	held := m.positions[key]
	if held < count {
		return fmt.Errorf("burn %d exceeds position %d for %s lottery %d bucket %d",
			count, held, account, lotteryID, bucket)
	}
	if held == count {
		delete(m.positions, key)
	} else {
		m.positions[key] = held - count
	}
	return nil
}

func (m *MemoryTicketLedger) Balance(account string, lotteryID uint64, bucket int64) int64 {
	return m.positions[PositionKey{account, lotteryID, bucket}]
}

// Snapshot returns a copy of all positions for state snapshots.
func (m *MemoryTicketLedger) Snapshot() map[PositionKey]int64 {
	cp := make(map[PositionKey]int64, len(m.positions))
	for k, v := range m.positions {
		cp[k] = v
	}
	return cp
}

// Restore replaces all positions from a snapshot.
func (m *MemoryTicketLedger) Restore(positions map[PositionKey]int64) {
	m.positions = make(map[PositionKey]int64, len(positions))
	for k, v := range positions {
		m.positions[k] = v
	}
}
