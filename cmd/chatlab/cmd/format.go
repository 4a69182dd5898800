package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
)

// stdoutIsTTY reports whether stdout is an interactive terminal, which
// decides between carriage-return progress lines and plain log output.
func stdoutIsTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// pad right-pads s to the given display width. CJK member names and
// catchphrases are wide characters, so byte or rune counts would misalign
// the columns.
func pad(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w >= width {
		return runewidth.Truncate(s, width, "…")
	}
	return s + strings.Repeat(" ", width-w)
}

// printTable renders rows with display-width-aware column alignment.
func printTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && runewidth.StringWidth(cell) > widths[i] {
				widths[i] = runewidth.StringWidth(cell)
			}
		}
	}
	const maxCol = 40
	for i := range widths {
		if widths[i] > maxCol {
			widths[i] = maxCol
		}
	}

	var sb strings.Builder
	for i, h := range headers {
		sb.WriteString(pad(h, widths[i]))
		sb.WriteString("  ")
	}
	fmt.Println(strings.TrimRight(sb.String(), " "))
	for _, row := range rows {
		sb.Reset()
		for i, cell := range row {
			if i < len(widths) {
				sb.WriteString(pad(cell, widths[i]))
				sb.WriteString("  ")
			}
		}
		fmt.Println(strings.TrimRight(sb.String(), " "))
	}
}

// formatTS renders a UTC-seconds timestamp in the corpus timezone.
func formatTS(ts int64) string {
	return time.Unix(ts, 0).In(timezone()).Format("2006-01-02 15:04:05")
}

// parseTimeArg accepts "2006-01-02", "2006-01-02 15:04:05", or raw epoch
// seconds.
func parseTimeArg(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty time")
	}
	loc := timezone()
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, loc); err == nil {
		return t.Unix(), nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t.Unix(), nil
	}
	var epoch int64
	if _, err := fmt.Sscanf(s, "%d", &epoch); err == nil && epoch > 0 {
		return epoch, nil
	}
	return 0, fmt.Errorf("unparseable time %q (want YYYY-MM-DD or epoch seconds)", s)
}
