// Package printer formats CLI output.
package printer

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/Atharva-Kanherkar/ropy/internal/storage"
)

func init() {
	// Force color output even when not connected to TTY
	// Users can disable with NO_COLOR environment variable
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// PreviewWidth is how many characters of content a listing shows.
const PreviewWidth = 60

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	green.Printf("✓ %s", fmt.Sprintf(format, a...))
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	fmt.Printf(format, a...)
}

// Warning prints a warning message in yellow
func Warning(format string, a ...any) {
	yellow.Printf("⚠️  %s", fmt.Sprintf(format, a...))
}

// Step prints a step message with emphasis
func Step(format string, a ...any) {
	cyan.Printf("→ %s", fmt.Sprintf(format, a...))
}

// Error prints a formatted error to stderr and returns a simple error for Cobra.
func Error(title string, explanation string, suggestions []string) error {
	red.Fprintf(os.Stderr, "%s\n\n", title)
	fmt.Fprintf(os.Stderr, "%s\n", explanation)

	if len(suggestions) > 0 {
		fmt.Fprintf(os.Stderr, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(os.Stderr, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(os.Stderr, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	return fmt.Errorf("%s", title)
}

// Records prints one line per record, newest first as given.
func Records(records []storage.Record) {
	if len(records) == 0 {
		faint.Println("(no history)")
		return
	}
	for _, r := range records {
		cyan.Printf("%d", r.ID)
		faint.Printf("  %s  %-9s ", r.CreatedAt.Local().Format(time.DateTime), r.ContentType)
		fmt.Println(Preview(r, PreviewWidth))
	}
}

// Stats prints storage statistics.
func Stats(s storage.Stats) {
	fmt.Printf("Records:   %d\n", s.TotalRecords)
	for _, t := range []storage.ContentType{storage.ContentText, storage.ContentImage, storage.ContentFilePath} {
		fmt.Printf("  %-9s %d\n", t, s.ByType[t])
	}
	fmt.Printf("Database:  %s\n", HumanBytes(s.DatabaseSize))
	fmt.Printf("Images:    %s\n", HumanBytes(s.BlobSize))
}

// Preview returns a single-line summary of a record's content, at most
// width runes long.
func Preview(r storage.Record, width int) string {
	var s string
	switch r.ContentType {
	case storage.ContentImage:
		s = "[image] " + r.Content
	case storage.ContentFilePath:
		lines := strings.Split(r.Content, "\n")
		s = strings.Join(lines, ", ")
		if len(lines) > 1 {
			s = fmt.Sprintf("[%d files] %s", len(lines), s)
		}
	default:
		s = strings.Join(strings.Fields(r.Content), " ")
	}

	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:max(width-1, 0)]) + "…"
}

// HumanBytes formats n as B, KB, MB or GB.
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit && exp < 2; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMG"[exp])
}
