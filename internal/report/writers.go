// internal/report/writers.go
package report

import (
	"fmt"
	"io"
	"os"
	"strconv"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/dripper/api/schemas"
	"github.com/xkilldash9x/dripper/internal/faucet"
)

// Writer renders account snapshots to an output.
type Writer interface {
	// Write renders a single snapshot.
	Write(snap schemas.AccountSnapshot) error
	// Close finalizes the report and releases the underlying file handle.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// NewWriter creates a snapshot writer for the given format and output path.
// An empty path or "stdout" writes to standard output.
func NewWriter(format, outputPath string) (Writer, error) {
	var writer io.WriteCloser
	isStdOut := outputPath == "" || outputPath == "stdout"

	if isStdOut {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	cleanup := func() {
		if !isStdOut {
			writer.Close()
		}
	}

	switch format {
	case "json":
		return &jsonWriter{writer: writer}, nil
	case "", "text":
		return &textWriter{writer: writer}, nil
	default:
		cleanup()
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}

// jsonWriter emits one pretty-printed JSON document per snapshot.
type jsonWriter struct {
	writer io.WriteCloser
}

func (w *jsonWriter) Write(snap schemas.AccountSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.writer.Write(data); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

func (w *jsonWriter) Close() error {
	return w.writer.Close()
}

// textWriter emits a short human-readable block per snapshot.
type textWriter struct {
	writer io.WriteCloser
}

func (w *textWriter) Write(snap schemas.AccountSnapshot) error {
	_, err := fmt.Fprintf(w.writer,
		"Account report (%s)\n"+
			"  Address:          %s\n"+
			"  Balance:          %s BTC (%s sat)\n"+
			"  Reward points:    %s\n"+
			"  Lottery tickets:  %s\n",
		snap.CollectedAt.UTC().Format("2006-01-02 15:04:05 UTC"),
		snap.Address,
		faucet.FormatBTC(snap.BalanceSat),
		groupThousands(snap.BalanceSat),
		groupThousands(snap.RewardPoints),
		groupThousands(snap.LotteryTickets),
	)
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

func (w *textWriter) Close() error {
	return w.writer.Close()
}

// groupThousands renders an integer with comma separators, matching how the
// site itself displays counters.
func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	start := 0
	if s[0] == '-' {
		start = 1
	}
	digits := len(s) - start
	if digits <= 3 {
		return s
	}

	var out []byte
	out = append(out, s[:start]...)
	lead := digits % 3
	if lead == 0 {
		lead = 3
	}
	out = append(out, s[start:start+lead]...)
	for i := start + lead; i < len(s); i += 3 {
		out = append(out, ',')
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}
