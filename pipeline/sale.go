package pipeline

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jaswdr/faker"
)

// Sale is the value carried through the queue: one transaction rung up by a
// cashier. Sales are plain values, copied in and out of the buffer.
type Sale struct {
	ID      string
	Cashier string
	Seq     int // position in the cashier's own emission order
	Amount  float64
}

// SaleGenerator produces random sales within a configured amount range. The
// underlying faker is not safe for concurrent use, so Next serializes access;
// cashiers share one generator.
type SaleGenerator struct {
	mu       sync.Mutex
	faker    faker.Faker
	min, max float64
}

// NewSaleGenerator creates a generator for amounts in [min, max].
func NewSaleGenerator(min, max float64) *SaleGenerator {
	return &SaleGenerator{
		faker: faker.New(),
		min:   min,
		max:   max,
	}
}

// Next returns a fresh sale for the given cashier and sequence number.
func (g *SaleGenerator) Next(cashier string, seq int) Sale {
	g.mu.Lock()
	amount := g.faker.Float64(2, int(g.min), int(g.max))
	g.mu.Unlock()

	return Sale{
		ID:      uuid.NewString(),
		Cashier: cashier,
		Seq:     seq,
		Amount:  amount,
	}
}
