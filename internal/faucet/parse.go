// internal/faucet/parse.go
package faucet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// satoshisPerBTC is the fixed subdivision of one bitcoin.
const satoshisPerBTC = 100_000_000

// ParseInt reads an integer the way the site renders one: thousands
// separators and surrounding whitespace are tolerated.
func ParseInt(s string) (int64, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ', ' ':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if cleaned == "" {
		return 0, fmt.Errorf("no digits in %q", s)
	}
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %q: %w", s, err)
	}
	return n, nil
}

// ParseBTC converts a decimal BTC amount, as displayed by the site, into
// satoshis. The conversion is exact; no float arithmetic is involved.
// Fractional digits beyond the eighth are dropped.
func ParseBTC(s string) (int64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if cleaned == "" {
		return 0, fmt.Errorf("empty BTC amount")
	}

	neg := false
	switch cleaned[0] {
	case '+':
		cleaned = cleaned[1:]
	case '-':
		neg = true
		cleaned = cleaned[1:]
	}

	whole, frac, _ := strings.Cut(cleaned, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 8 {
		frac = frac[:8]
	}
	frac += strings.Repeat("0", 8-len(frac))

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing BTC amount %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing BTC amount %q: %w", s, err)
	}
	if w > (math.MaxInt64-f)/satoshisPerBTC {
		return 0, fmt.Errorf("BTC amount %q overflows satoshis", s)
	}

	sat := w*satoshisPerBTC + f
	if neg {
		sat = -sat
	}
	return sat, nil
}

// FormatBTC renders satoshis in the site's decimal notation, the inverse
// of ParseBTC.
func FormatBTC(sat int64) string {
	sign := ""
	if sat < 0 {
		sign = "-"
		sat = -sat
	}
	return fmt.Sprintf("%s%d.%08d", sign, sat/satoshisPerBTC, sat%satoshisPerBTC)
}

// ParseCountdown converts the timer widget's sections into a duration. The
// widget renders minutes and seconds as separate spans in that order. The
// site's cooldown tops out at an hour, so anything past a day is rejected
// as a misread rather than trusted.
func ParseCountdown(sections []string) (time.Duration, error) {
	if len(sections) < 2 {
		return 0, fmt.Errorf("countdown has %d sections, want at least 2", len(sections))
	}
	minutes, err := ParseInt(sections[0])
	if err != nil {
		return 0, fmt.Errorf("countdown minutes: %w", err)
	}
	seconds, err := ParseInt(sections[1])
	if err != nil {
		return 0, fmt.Errorf("countdown seconds: %w", err)
	}
	if minutes < 0 || seconds < 0 {
		return 0, fmt.Errorf("negative countdown section in %v", sections)
	}
	if minutes > 24*60 || seconds > 3600 {
		return 0, fmt.Errorf("implausible countdown %vm %vs", minutes, seconds)
	}
	return time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second, nil
}

// ParseLeadingInt reads the first whitespace-separated token as an integer,
// for labels like "3,200 RP" or "2 spins".
func ParseLeadingInt(s string) (int64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty label")
	}
	return ParseInt(fields[0])
}

// ParseBonusKey extracts the numeric key from a reward product label such
// as "1000%" or "100 Lottery Tickets".
func ParseBonusKey(s string) (int64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty product label")
	}
	return ParseInt(strings.TrimSuffix(fields[0], "%"))
}
