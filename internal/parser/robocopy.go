// This file implements the RobocopyParser which parses robocopy console
// output. With /NP /NDL /NFL there is no per-file progress; what remains
// is ERROR lines and the closing summary table, which robocopy always
// prints with binary-scaled byte counts.
//
// Example robocopy summary:
//
//	               Total    Copied   Skipped  Mismatch    FAILED    Extras
//	    Dirs :        81        14        67         0         0         0
//	   Files :       546        39       507         0         3         2
//	   Bytes :   1.234 g   567.8 m   700.1 m         0     1.2 m        90
//	   Times :   0:01:23   0:00:45                       0:00:00   0:00:38
//
//	   Speed :            94887334 Bytes/sec.
package parser

import (
	"strconv"
	"strings"
	"sync"
)

// RobocopyCounts is one row of the summary table.
type RobocopyCounts struct {
	Total    int64
	Copied   int64
	Skipped  int64
	Mismatch int64
	Failed   int64
	Extras   int64
}

// RobocopySummary holds the counts from robocopy's closing table.
type RobocopySummary struct {
	Dirs  RobocopyCounts
	Files RobocopyCounts
	Bytes RobocopyCounts

	// SpeedBytesPerSec is the Bytes/sec Speed line, when present
	SpeedBytesPerSec float64
}

// RobocopySummaryCallback is called once the core summary rows have
// been parsed. The callback receives a copy, so it's safe to store.
type RobocopySummaryCallback func(*RobocopySummary)

// RobocopyParser parses robocopy console output.
//
// It implements the LineParser interface for use with Pipeline.
// Thread-safe: can be called from multiple goroutines.
type RobocopyParser struct {
	callback RobocopySummaryCallback

	mu        sync.Mutex
	summary   RobocopySummary
	seenDirs  bool
	seenFiles bool
	seenBytes bool
	emitted   bool

	errorCount int64
	lastError  string

	linesProcessed int64
}

// NewRobocopyParser creates a new robocopy parser with the given callback.
//
// The callback fires once, after the Dirs, Files and Bytes rows have all
// been parsed. Pass nil if you only want Summary().
func NewRobocopyParser(cb RobocopySummaryCallback) *RobocopyParser {
	return &RobocopyParser{
		callback: cb,
	}
}

// ParseLine implements the LineParser interface.
func (p *RobocopyParser) ParseLine(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.linesProcessed++

	switch {
	case strings.HasPrefix(trimmed, "Dirs :"):
		if counts, ok := parseCountsRow(strings.TrimPrefix(trimmed, "Dirs :")); ok {
			p.summary.Dirs = counts
			p.seenDirs = true
		}

	case strings.HasPrefix(trimmed, "Files :"):
		// The header block also has a "Files : *.*" line; parseCountsRow
		// rejects it
		if counts, ok := parseCountsRow(strings.TrimPrefix(trimmed, "Files :")); ok {
			p.summary.Files = counts
			p.seenFiles = true
		}

	case strings.HasPrefix(trimmed, "Bytes :"):
		if counts, ok := parseCountsRow(strings.TrimPrefix(trimmed, "Bytes :")); ok {
			p.summary.Bytes = counts
			p.seenBytes = true
		}

	case strings.HasPrefix(trimmed, "Speed :") && strings.Contains(trimmed, "Bytes/sec"):
		if n, ok := firstGroupedInt(trimmed); ok {
			p.summary.SpeedBytesPerSec = float64(n)
		}

	case strings.Contains(trimmed, " ERROR ") && strings.Contains(trimmed, "(0x"):
		p.errorCount++
		p.lastError = trimmed
	}

	if p.seenDirs && p.seenFiles && p.seenBytes && !p.emitted {
		p.emitted = true
		if p.callback != nil {
			cb := p.summary // copy
			p.callback(&cb)
		}
	}
}

// parseCountsRow parses the six columns of a summary row.
//
// Byte values come as a number plus a single-letter binary scale token
// ("1.234 g"); plain counts are bare integers. Any non-numeric token
// (other than a scale suffix) means this is not a counts row.
func parseCountsRow(rest string) (RobocopyCounts, bool) {
	var counts RobocopyCounts

	fields := strings.Fields(rest)
	var values []int64
	for i := 0; i < len(fields); i++ {
		v, err := strconv.ParseFloat(strings.ReplaceAll(fields[i], ",", ""), 64)
		if err != nil {
			return counts, false
		}
		if i+1 < len(fields) {
			if mult, ok := byteScale(fields[i+1]); ok {
				v *= mult
				i++
			}
		}
		values = append(values, int64(v))
	}

	if len(values) != 6 {
		return counts, false
	}

	counts = RobocopyCounts{
		Total:    values[0],
		Copied:   values[1],
		Skipped:  values[2],
		Mismatch: values[3],
		Failed:   values[4],
		Extras:   values[5],
	}
	return counts, true
}

// byteScale maps robocopy's scale suffixes to binary multipliers.
func byteScale(s string) (float64, bool) {
	switch s {
	case "k":
		return 1 << 10, true
	case "m":
		return 1 << 20, true
	case "g":
		return 1 << 30, true
	case "t":
		return 1 << 40, true
	default:
		return 0, false
	}
}

// Summary returns the parsed summary, or nil until the core rows have
// been seen.
func (p *RobocopyParser) Summary() *RobocopySummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !(p.seenDirs && p.seenFiles && p.seenBytes) {
		return nil
	}
	s := p.summary
	return &s
}

// ErrorStats returns the ERROR line count and the most recent one.
func (p *RobocopyParser) ErrorStats() (count int64, last string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errorCount, p.lastError
}

// Stats returns parser statistics.
func (p *RobocopyParser) Stats() (linesProcessed int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.linesProcessed
}
