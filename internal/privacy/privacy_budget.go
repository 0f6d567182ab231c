package privacy

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// BudgetTransaction records one privacy budget expenditure
type BudgetTransaction struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	EpsilonUsed float64   `json:"epsilon_used"`
	Purpose     string    `json:"purpose"`
	Mechanism   string    `json:"mechanism"`
	DataSize    int       `json:"data_size"`
}

// BudgetLedger collects the expenditures of one describe run. Totals use basic
// sequential composition.
type BudgetLedger struct {
	mu           sync.RWMutex
	transactions []BudgetTransaction
}

// NewBudgetLedger creates an empty ledger
func NewBudgetLedger() *BudgetLedger {
	return &BudgetLedger{
		transactions: make([]BudgetTransaction, 0),
	}
}

// Spend records an expenditure. Spending zero epsilon is not recorded.
func (bl *BudgetLedger) Spend(purpose, mechanism string, epsilon float64, dataSize int) {
	if epsilon <= 0 {
		return
	}

	bl.mu.Lock()
	defer bl.mu.Unlock()

	bl.transactions = append(bl.transactions, BudgetTransaction{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		EpsilonUsed: epsilon,
		Purpose:     purpose,
		Mechanism:   mechanism,
		DataSize:    dataSize,
	})
}

// Total returns the sum of all recorded epsilons
func (bl *BudgetLedger) Total() float64 {
	bl.mu.RLock()
	defer bl.mu.RUnlock()

	total := 0.0
	for _, tx := range bl.transactions {
		total += tx.EpsilonUsed
	}
	return total
}

// Transactions returns a copy of the recorded expenditures in order
func (bl *BudgetLedger) Transactions() []BudgetTransaction {
	bl.mu.RLock()
	defer bl.mu.RUnlock()

	out := make([]BudgetTransaction, len(bl.transactions))
	copy(out, bl.transactions)
	return out
}

// SpentBy returns the epsilon recorded under one purpose
func (bl *BudgetLedger) SpentBy(purpose string) float64 {
	bl.mu.RLock()
	defer bl.mu.RUnlock()

	total := 0.0
	for _, tx := range bl.transactions {
		if tx.Purpose == purpose {
			total += tx.EpsilonUsed
		}
	}
	return total
}
