package audit

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

// TimeFormat renders entry timestamps in CSV exports and JSON views.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t in UTC using TimeFormat.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// WriteCSV writes header and rows with every value double-quoted and inner
// quotes doubled. Lines are separated by "\n" with no trailing newline, so
// N rows produce N+1 lines.
func WriteCSV(w io.Writer, header []string, rows [][]string) error {
	bw := bufio.NewWriter(w)

	if err := writeLine(bw, header); err != nil {
		return err
	}
	for i, row := range rows {
		if len(row) != len(header) {
			return fmt.Errorf("csv row %d has %d columns, want %d", i, len(row), len(header))
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
		if err := writeLine(bw, row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeLine(w *bufio.Writer, values []string) error {
	for i, v := range values {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(Quote(v)); err != nil {
			return err
		}
	}
	return nil
}

// Quote wraps v in double quotes, doubling any quote inside it.
func Quote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}
