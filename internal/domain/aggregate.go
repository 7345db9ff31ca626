package domain

import "github.com/shopspring/decimal"

// LineTotal is quantity times unit price. No rounding is applied.
func LineTotal(line CartLine) decimal.Decimal {
	return line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
}

// CartTotal sums LineTotal over the given lines. An empty slice yields zero.
func CartTotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(LineTotal(line))
	}
	return total
}

// ItemCount returns the sum of quantities across the given lines.
func ItemCount(lines []CartLine) int {
	var count int
	for _, line := range lines {
		count += line.Quantity
	}
	return count
}

// Total computes CartTotal over the state's current lines.
func (s *CartState) Total() decimal.Decimal {
	return CartTotal(s.Lines())
}
