package balance

import (
	"math"
	"sort"
)

// noiseFloor ignores floating-point leftovers below one öre.
const noiseFloor = 0.01

// Transfer is a suggested payment that moves a snapshot towards zero.
type Transfer struct {
	FromID string // Member who pays
	ToID   string // Member who receives
	Amount float64
}

type position struct {
	id     string
	order  int
	amount float64
}

// SuggestTransfers matches members who should pay with members who should
// receive, largest amounts first, producing at most len(balances)-1 payments.
// It does not change the balances it is given.
func SuggestTransfers(balances []Balance) []Transfer {
	var debtors, creditors []position
	for i, b := range balances {
		switch {
		case b.Balance < -noiseFloor:
			debtors = append(debtors, position{id: b.MemberID, order: i, amount: -b.Balance})
		case b.Balance > noiseFloor:
			creditors = append(creditors, position{id: b.MemberID, order: i, amount: b.Balance})
		}
	}
	byAmount := func(ps []position) {
		sort.SliceStable(ps, func(i, j int) bool {
			if ps[i].amount != ps[j].amount {
				return ps[i].amount > ps[j].amount
			}
			return ps[i].order < ps[j].order
		})
	}
	byAmount(debtors)
	byAmount(creditors)

	var transfers []Transfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		amount := math.Min(debtors[i].amount, creditors[j].amount)
		if amount > noiseFloor {
			transfers = append(transfers, Transfer{
				FromID: debtors[i].id,
				ToID:   creditors[j].id,
				Amount: math.Round(amount*100) / 100,
			})
		}

		debtors[i].amount -= amount
		creditors[j].amount -= amount

		if debtors[i].amount < noiseFloor {
			i++
		}
		if creditors[j].amount < noiseFloor {
			j++
		}
	}
	return transfers
}
