package domain

import (
	"math"
	"time"
)

// TransactionKind represents the kind of balance movement.
type TransactionKind string

const (
	KindTopUp TransactionKind = "topup"
	KindSpend TransactionKind = "spend"
	// KindAdjustment is the catch-all for remote records whose type tag the
	// client does not recognize. They display but carry no fuel info.
	KindAdjustment TransactionKind = "adjustment"
)

// FuelInfo captures the fuel details of a spend.
type FuelInfo struct {
	Liters        float64  `json:"liters"`
	PricePerLiter float64  `json:"price_per_liter"`
	Type          FuelType `json:"fuel_type"`
}

// Transaction is an immutable balance-changing record. Amount is signed:
// positive for top-ups, negative for spends. ResultingBalance is the
// authority's balance after the operation and is adopted verbatim.
type Transaction struct {
	ID               string          `json:"id"`
	Kind             TransactionKind `json:"kind"`
	Amount           float64         `json:"amount"`
	ResultingBalance float64         `json:"resulting_balance"`
	Timestamp        time.Time       `json:"timestamp"`
	Fuel             *FuelInfo       `json:"fuel,omitempty"`
}

// balanceEpsilon absorbs decimal-string round-trips; amounts are currency
// values with two fractional digits.
const balanceEpsilon = 0.005

// ReplayBalances replays a reverse-chronological transaction list from its
// oldest entry, summing signed amounts, and returns the index (in the given
// ordering) of the first entry whose ResultingBalance diverges from the
// recomputed running balance. Returns -1 if the ledger is consistent.
//
// A divergence is diagnostic only: the authority's values win and the running
// balance is resynced to them, so at most the earliest divergence is reported.
func ReplayBalances(txs []Transaction) int {
	if len(txs) < 2 {
		return -1
	}

	running := txs[len(txs)-1].ResultingBalance
	for i := len(txs) - 2; i >= 0; i-- {
		running += txs[i].Amount
		if math.Abs(running-txs[i].ResultingBalance) > balanceEpsilon {
			return i
		}
		running = txs[i].ResultingBalance
	}
	return -1
}
