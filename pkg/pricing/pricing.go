package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Breakdown line labels
const (
	ItemBase          = "base"
	ItemTax           = "tax"
	ItemGroupDiscount = "group_discount"
)

// GroupDiscountMinParticipants is the party size from which the group discount applies
const GroupDiscountMinParticipants = 2

var (
	// TaxRate is added on top of the base amount
	TaxRate = decimal.RequireFromString("0.10")
	// GroupDiscountRate is taken off the base amount for groups
	GroupDiscountRate = decimal.RequireFromString("0.05")
)

var (
	ErrInvalidParticipants = errors.New("participants must be at least 1")
	ErrNegativePrice       = errors.New("unit price cannot be negative")
)

// Line is one itemized component of a quote. Discounts carry a negative amount.
type Line struct {
	Item     string          `json:"item"`
	Amount   decimal.Decimal `json:"amount"`
	Quantity int             `json:"quantity"`
}

// Quote is the priced result for a party of participants
type Quote struct {
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Participants int             `json:"participants"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	Breakdown    []Line          `json:"breakdown"`
}

// Calculate prices a booking. The same function is used for previews and for
// the amount persisted on the booking, so both always agree.
func Calculate(unitPrice decimal.Decimal, participants int) (*Quote, error) {
	if participants < 1 {
		return nil, ErrInvalidParticipants
	}
	if unitPrice.IsNegative() {
		return nil, ErrNegativePrice
	}

	base := unitPrice.Mul(decimal.NewFromInt(int64(participants)))

	lines := []Line{
		{Item: ItemBase, Amount: base, Quantity: participants},
		{Item: ItemTax, Amount: base.Mul(TaxRate), Quantity: 1},
	}
	if participants >= GroupDiscountMinParticipants {
		lines = append(lines, Line{Item: ItemGroupDiscount, Amount: base.Mul(GroupDiscountRate).Neg(), Quantity: 1})
	}

	return &Quote{
		UnitPrice:    unitPrice,
		Participants: participants,
		TotalCost:    Sum(lines),
		Breakdown:    lines,
	}, nil
}

// Sum adds up the amounts of lines
func Sum(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}

// Line returns the breakdown line labelled item, if present
func (q *Quote) Line(item string) (Line, bool) {
	for _, l := range q.Breakdown {
		if l.Item == item {
			return l, true
		}
	}
	return Line{}, false
}
