package quota

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerDebitSequence(t *testing.T) {
	ledger := NewLedger(3, 3)

	for want := 2; want >= 0; want-- {
		got, err := ledger.Debit()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ledger.Debit()
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, 0, ledger.Remaining(), "failed debit must not touch the balance")
	assert.Equal(t, 3, ledger.Total())
}

func TestLedgerClampsRemaining(t *testing.T) {
	assert.Equal(t, 3, NewLedger(3, 5).Remaining(), "remaining above total clamps down")
	assert.Equal(t, 0, NewLedger(3, -1).Remaining())
	assert.Equal(t, 0, NewLedger(-2, 4).Total())

	_, err := NewLedger(0, 0).Debit()
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestLedgerSnapshot(t *testing.T) {
	ledger := NewLedger(10, 10)
	_, err := ledger.Debit()
	require.NoError(t, err)

	snap := ledger.Snapshot()
	assert.Equal(t, 10, snap.Total)
	assert.Equal(t, 9, snap.Remaining)
}

// Concurrent debits must spend each credit exactly once.
func TestLedgerConcurrentDebit(t *testing.T) {
	const credits = 100
	const workers = 250

	ledger := NewLedger(credits, credits)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Debit(); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, credits, granted)
	assert.Equal(t, 0, ledger.Remaining())
}
