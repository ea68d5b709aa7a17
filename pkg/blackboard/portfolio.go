package blackboard

// Position is one holding in a portfolio snapshot.
type Position struct {
	Ticker   string  `json:"ticker"`
	Shares   float64 `json:"shares"`
	AvgPrice float64 `json:"avg_price"`
}

// Portfolio is the cash-and-positions snapshot a run starts from and the
// decider's projected end state.
type Portfolio struct {
	BaseCurrency string     `json:"base_currency"`
	Cash         float64    `json:"cash"`
	Positions    []Position `json:"positions"`
}

// Clone returns a deep copy. Nil-safe.
func (p *Portfolio) Clone() *Portfolio {
	if p == nil {
		return nil
	}
	c := *p
	c.Positions = append([]Position(nil), p.Positions...)
	return &c
}

// Position returns the holding for a ticker, or nil if not held.
func (p *Portfolio) Position(ticker string) *Position {
	if p == nil {
		return nil
	}
	for i := range p.Positions {
		if p.Positions[i].Ticker == ticker {
			return &p.Positions[i]
		}
	}
	return nil
}

// TotalValue prices every position with the supplied last-close map and
// returns cash plus stock value. Positions without a price contribute their
// cost basis.
func (p *Portfolio) TotalValue(prices map[string]float64) float64 {
	if p == nil {
		return 0
	}
	total := p.Cash
	for _, pos := range p.Positions {
		px, ok := prices[pos.Ticker]
		if !ok {
			px = pos.AvgPrice
		}
		total += pos.Shares * px
	}
	return total
}
