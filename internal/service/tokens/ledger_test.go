package tokens

import (
	"chat-gateway/internal/config"
	"chat-gateway/internal/repository/db"
	"chat-gateway/internal/testutil"
	"errors"
	"sync"
	"testing"
	"time"
)

func testLedger(mockDB *testutil.MockDatabase) *Ledger {
	return NewLedger(mockDB, config.QuotaConfig{
		DailyTokenCap: 40000,
		GrantWindow:   24 * time.Hour,
	})
}

func TestGrantIfNeeded(t *testing.T) {
	t.Run("passes cap and window to the store", func(t *testing.T) {
		var gotTokens int
		var gotWindow time.Duration
		mockDB := &testutil.MockDatabase{
			GrantAllowanceFunc: func(userID string, tokens int, window time.Duration) error {
				gotTokens = tokens
				gotWindow = window
				return nil
			},
		}

		testLedger(mockDB).GrantIfNeeded("user-1")

		if gotTokens != 40000 {
			t.Errorf("Expected grant of 40000 tokens, got %d", gotTokens)
		}
		if gotWindow != 24*time.Hour {
			t.Errorf("Expected 24h window, got %v", gotWindow)
		}
	})

	t.Run("store failure does not panic", func(t *testing.T) {
		mockDB := &testutil.MockDatabase{
			GrantAllowanceFunc: func(userID string, tokens int, window time.Duration) error {
				return errors.New("connection refused")
			},
		}

		// Should log and continue
		testLedger(mockDB).GrantIfNeeded("user-1")
	})
}

func TestRemaining(t *testing.T) {
	tests := []struct {
		name      string
		allowance *db.TokenAllowance
		err       error
		expected  int
	}{
		{
			name:      "returns current balance",
			allowance: &db.TokenAllowance{UserID: "user-1", TokensRemaining: 12345},
			expected:  12345,
		},
		{
			name:     "no allowance yet returns full cap",
			expected: 40000,
		},
		{
			name:     "store error fails open to full cap",
			err:      errors.New("connection refused"),
			expected: 40000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockDB := &testutil.MockDatabase{
				GetAllowanceFunc: func(userID string) (*db.TokenAllowance, error) {
					return tt.allowance, tt.err
				},
			}

			remaining := testLedger(mockDB).Remaining("user-1")
			if remaining != tt.expected {
				t.Errorf("Remaining() = %d, expected %d", remaining, tt.expected)
			}
		})
	}
}

func TestConsume(t *testing.T) {
	t.Run("successful consume", func(t *testing.T) {
		var gotAmount int
		mockDB := &testutil.MockDatabase{
			ConsumeTokensFunc: func(userID string, amount int) (bool, error) {
				gotAmount = amount
				return true, nil
			},
		}

		if !testLedger(mockDB).Consume("user-1", 800) {
			t.Error("Expected consume to succeed")
		}
		if gotAmount != 800 {
			t.Errorf("Expected consume of 800, got %d", gotAmount)
		}
	})

	t.Run("insufficient balance", func(t *testing.T) {
		mockDB := &testutil.MockDatabase{
			ConsumeTokensFunc: func(userID string, amount int) (bool, error) {
				return false, nil
			},
		}

		if testLedger(mockDB).Consume("user-1", 999999) {
			t.Error("Expected consume to fail on insufficient balance")
		}
	})

	t.Run("zero or negative amount is a no-op success", func(t *testing.T) {
		called := false
		mockDB := &testutil.MockDatabase{
			ConsumeTokensFunc: func(userID string, amount int) (bool, error) {
				called = true
				return false, nil
			},
		}

		ledger := testLedger(mockDB)
		if !ledger.Consume("user-1", 0) || !ledger.Consume("user-1", -5) {
			t.Error("Expected non-positive consume to succeed")
		}
		if called {
			t.Error("Store should not be touched for non-positive amounts")
		}
	})

	t.Run("store error fails open", func(t *testing.T) {
		mockDB := &testutil.MockDatabase{
			ConsumeTokensFunc: func(userID string, amount int) (bool, error) {
				return false, errors.New("connection refused")
			},
		}

		if !testLedger(mockDB).Consume("user-1", 100) {
			t.Error("Expected consume to fail open on store error")
		}
	})
}

// Two concurrent consumes of 30000 against a balance of 40000: exactly one
// may win. The mock reproduces the storage layer's atomic conditional
// decrement.
func TestConsume_ConcurrentSingleWinner(t *testing.T) {
	var mu sync.Mutex
	balance := 40000

	mockDB := &testutil.MockDatabase{
		ConsumeTokensFunc: func(userID string, amount int) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			if balance < amount {
				return false, nil
			}
			balance -= amount
			return true, nil
		},
	}
	ledger := testLedger(mockDB)

	results := make(chan bool, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- ledger.Consume("user-1", 30000)
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}

	if wins != 1 {
		t.Errorf("Expected exactly 1 successful consume, got %d", wins)
	}
	if balance != 10000 {
		t.Errorf("Expected balance 10000 after single win, got %d", balance)
	}
}

func TestRecordUsage(t *testing.T) {
	var gotPeriod time.Time
	var gotTokens int
	mockDB := &testutil.MockDatabase{
		AddUsageFunc: func(userID string, periodStart time.Time, tokens int) error {
			gotPeriod = periodStart
			gotTokens = tokens
			return nil
		},
	}

	if err := testLedger(mockDB).RecordUsage("user-1", 1234); err != nil {
		t.Fatalf("RecordUsage returned error: %v", err)
	}

	if gotTokens != 1234 {
		t.Errorf("Expected 1234 tokens recorded, got %d", gotTokens)
	}

	now := time.Now().UTC()
	expectedPeriod := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if !gotPeriod.Equal(expectedPeriod) {
		t.Errorf("Expected period start %v, got %v", expectedPeriod, gotPeriod)
	}
}
