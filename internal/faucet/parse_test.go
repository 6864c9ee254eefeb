// internal/faucet/parse_test.go
package faucet

import (
	"testing"
	"time"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInt(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "plain", input: "42", want: 42},
		{name: "thousands separators", input: "12,345,678", want: 12345678},
		{name: "surrounding whitespace", input: "  1,234  ", want: 1234},
		{name: "non-breaking space", input: "1 234", want: 1234},
		{name: "negative", input: "-5", want: -5},
		{name: "empty", input: "", wantErr: true},
		{name: "only separators", input: ", ,", wantErr: true},
		{name: "letters", input: "abc", wantErr: true},
		{name: "decimal point", input: "1.5", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseInt(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseBTC(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "one satoshi", input: "0.00000001", want: 1},
		{name: "whole coin", input: "1", want: 100_000_000},
		{name: "typical balance", input: "0.00012345", want: 12345},
		{name: "short fraction", input: "0.1", want: 10_000_000},
		{name: "bare fraction", input: ".5", want: 50_000_000},
		{name: "thousands separators", input: "21,000,000", want: 21_000_000 * int64(satoshisPerBTC)},
		{name: "sub-satoshi digits dropped", input: "0.000000019", want: 1},
		{name: "explicit plus", input: "+0.00000002", want: 2},
		{name: "negative", input: "-0.00000002", want: -2},
		{name: "empty", input: "", wantErr: true},
		{name: "two points", input: "1.2.3", wantErr: true},
		{name: "letters", input: "1.2e3", wantErr: true},
		{name: "overflow", input: "99,999,999,999,999", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseBTC(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatBTC(t *testing.T) {
	assert.Equal(t, "0.00000000", FormatBTC(0))
	assert.Equal(t, "0.00000001", FormatBTC(1))
	assert.Equal(t, "1.00000000", FormatBTC(satoshisPerBTC))
	assert.Equal(t, "0.00012345", FormatBTC(12345))
	assert.Equal(t, "-0.50000000", FormatBTC(-satoshisPerBTC/2))
}

func TestParseCountdown(t *testing.T) {
	cases := []struct {
		name     string
		sections []string
		want     time.Duration
		wantErr  bool
	}{
		{name: "typical", sections: []string{"52", "31"}, want: 52*time.Minute + 31*time.Second},
		{name: "under a minute", sections: []string{"0", "59"}, want: 59 * time.Second},
		{name: "zero", sections: []string{"0", "0"}, want: 0},
		{name: "extra sections use the first two", sections: []string{"1", "2", "3"}, want: time.Minute + 2*time.Second},
		{name: "single section", sections: []string{"10"}, wantErr: true},
		{name: "no sections", sections: nil, wantErr: true},
		{name: "garbage minutes", sections: []string{"x", "5"}, wantErr: true},
		{name: "negative seconds", sections: []string{"1", "-5"}, wantErr: true},
		{name: "implausible minutes", sections: []string{"99999999", "0"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCountdown(tc.sections)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseLeadingInt(t *testing.T) {
	got, err := ParseLeadingInt("3,200 RP")
	require.NoError(t, err)
	assert.Equal(t, int64(3200), got)

	got, err = ParseLeadingInt("2 spins won")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)

	_, err = ParseLeadingInt("   ")
	assert.Error(t, err)
}

func TestParseBonusKey(t *testing.T) {
	got, err := ParseBonusKey("1000%")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got)

	got, err = ParseBonusKey("100 Lottery Tickets")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got)

	_, err = ParseBonusKey("")
	assert.Error(t, err)
}

// FuzzParseBTC checks that arbitrary input never panics and that every
// accepted amount survives a render/re-parse round trip unchanged.
func FuzzParseBTC(f *testing.F) {
	f.Add("0.00000001")
	f.Add("1")
	f.Add(".5")
	f.Add("-0.1")
	f.Add("21,000,000")
	f.Add("")
	f.Add("1.2.3")
	f.Add("٣.14")

	f.Fuzz(func(t *testing.T, input string) {
		sat, err := ParseBTC(input)
		if err != nil {
			return
		}

		rendered := FormatBTC(sat)
		again, err := ParseBTC(rendered)
		require.NoError(t, err, "canonical rendering %q of %q must parse", rendered, input)
		assert.Equal(t, sat, again, "round trip of %q via %q", input, rendered)
	})
}

// FuzzParseCountdown drives the countdown parser with structured input to
// cover multi-section shapes, not just the two-span case.
func FuzzParseCountdown(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)

		count, err := consumer.GetInt()
		if err != nil {
			return
		}
		sections := make([]string, 0, count%6)
		for i := 0; i < count%6; i++ {
			s, err := consumer.GetString()
			if err != nil {
				return
			}
			sections = append(sections, s)
		}

		d, err := ParseCountdown(sections)
		if err != nil {
			return
		}
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 25*time.Hour, "accepted countdowns stay within the plausibility bound")
	})
}
