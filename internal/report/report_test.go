// internal/report/report_test.go
package report_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/dripper/api/schemas"
	"github.com/xkilldash9x/dripper/internal/config"
	"github.com/xkilldash9x/dripper/internal/faucet"
	"github.com/xkilldash9x/dripper/internal/mocks"
	"github.com/xkilldash9x/dripper/internal/report"
)

func sampleSnapshot() schemas.AccountSnapshot {
	return schemas.AccountSnapshot{
		Address:        "1BoatSLRHtKNngkdXEeobR76b53LETtpyT",
		BalanceSat:     1_234_567,
		RewardPoints:   12_345,
		LotteryTickets: 7,
		CollectedAt:    time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}
}

func TestNewWriter_Stdout(t *testing.T) {
	for _, path := range []string{"", "stdout"} {
		w, err := report.NewWriter("text", path)
		require.NoError(t, err)
		assert.NotNil(t, w)
		assert.NoError(t, w.Close())
	}
}

func TestNewWriter_UnsupportedFormat(t *testing.T) {
	w, err := report.NewWriter("xml", "stdout")
	assert.Error(t, err)
	assert.Nil(t, w)
	assert.Contains(t, err.Error(), "unsupported report format: xml")
}

func TestJSONWriter_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	w, err := report.NewWriter("json", path)
	require.NoError(t, err)

	want := sampleSnapshot()
	require.NoError(t, w.Write(want))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got schemas.AccountSnapshot
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, want.Address, got.Address)
	assert.Equal(t, want.BalanceSat, got.BalanceSat)
	assert.Equal(t, want.RewardPoints, got.RewardPoints)
	assert.Equal(t, want.LotteryTickets, got.LotteryTickets)
	assert.True(t, want.CollectedAt.Equal(got.CollectedAt))
}

func TestTextWriter_Content(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	w, err := report.NewWriter("text", path)
	require.NoError(t, err)

	require.NoError(t, w.Write(sampleSnapshot()))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, "1BoatSLRHtKNngkdXEeobR76b53LETtpyT")
	assert.Contains(t, text, "0.01234567 BTC")
	assert.Contains(t, text, "1,234,567 sat")
	assert.Contains(t, text, "12,345")
	assert.Contains(t, text, "Lottery tickets:  7")
	assert.Contains(t, text, "2026-03-14 09:26:53 UTC")
}

func TestSnapshot(t *testing.T) {
	cfg := config.NewDefaultConfig()
	r := report.New(faucet.New(cfg, zaptest.NewLogger(t)), zaptest.NewLogger(t))
	page := mocks.NewMockPage()

	// Balances are read in a fixed order: BTC, reward points, tickets.
	for _, text := range []string{"0.00012345", "1,234", "7"} {
		text := text
		page.On("Evaluate", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Run(func(args mock.Arguments) {
				*(args.Get(2).(*string)) = text
			}).Return(nil).Once()
	}

	snap, err := r.Snapshot(context.Background(), page, "1BoatSLRHtKNngkdXEeobR76b53LETtpyT")

	require.NoError(t, err)
	assert.Equal(t, "1BoatSLRHtKNngkdXEeobR76b53LETtpyT", snap.Address)
	assert.Equal(t, int64(12345), snap.BalanceSat)
	assert.Equal(t, int64(1234), snap.RewardPoints)
	assert.Equal(t, int64(7), snap.LotteryTickets)
	page.AssertExpectations(t)
}
