// Package parser provides parsing for mirror tool output streams.
//
// This file implements the ProgressParser which parses rsync's
// --info=progress2 output plus the --stats trailer. progress2 reports
// whole-transfer progress as a single repeatedly-redrawn line; each
// redraw arrives as its own line via ScanToolLines.
//
// Tested rsync Version:
//
//	rsync  version 3.4.1  protocol version 32
//
// If parsing breaks after an rsync upgrade, the progress2 output format
// may have changed.
//
// Example rsync progress output:
//
//	1,442,381,824  44%  137.52MB/s    0:00:10 (xfr#712, ir-chk=1021/1843)
//	3,244,892,426  98%  111.53MB/s    0:00:27 (xfr#1535, to-chk=0/1668)
//
// Example --stats trailer:
//
//	Number of files: 1,668 (reg: 1,535, dir: 133)
//	Number of regular files transferred: 1,535
//	Total transferred file size: 3,244,892,426 bytes
package parser

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// ProgressUpdate represents a single whole-transfer progress report.
//
// rsync redraws this roughly ten times per second during active
// transfer. Values are cumulative for the current run.
type ProgressUpdate struct {
	// Bytes transferred so far (cumulative)
	Bytes int64

	// Percent of the whole transfer (0-100)
	Percent int

	// Transfer rate in bytes per second, decoded from rsync's
	// human-readable units (powers of 1000)
	Rate float64

	// Elapsed transfer time as reported
	Elapsed time.Duration

	// FilesTransferred is the xfr# counter (cumulative)
	FilesTransferred int64

	// FilesRemaining and FilesTotal come from to-chk=REMAIN/TOTAL
	FilesRemaining int64
	FilesTotal     int64

	// Scanning is true while rsync is still building the file list
	// (ir-chk instead of to-chk); FilesTotal keeps growing then
	Scanning bool

	// Timestamp when this update was received (for rate calculations)
	ReceivedAt time.Time
}

// TransferSummary holds the end-of-run totals from --stats.
type TransferSummary struct {
	// FilesTotal is the number of files considered
	FilesTotal int64

	// FilesCreated and FilesDeleted count changes at the destination
	FilesCreated int64
	FilesDeleted int64

	// FilesTransferred is the number of regular files copied
	FilesTransferred int64

	// TotalSize is the size of the source file set
	TotalSize int64

	// BytesTransferred is the transferred file size (the copy volume)
	BytesTransferred int64

	// Wire totals, including protocol overhead
	BytesSent     int64
	BytesReceived int64
}

// ProgressCallback is called for each progress update.
// The callback receives a copy of the update, so it's safe to store.
type ProgressCallback func(*ProgressUpdate)

// ProgressParser parses rsync --info=progress2 and --stats output.
//
// It implements the LineParser interface for use with Pipeline.
// Thread-safe: can be called from multiple goroutines.
type ProgressParser struct {
	callback ProgressCallback

	mu          sync.Mutex
	current     *ProgressUpdate
	summary     TransferSummary
	summarySeen bool

	// Stats for monitoring parser health
	updatesReceived int64
	linesProcessed  int64
}

// NewProgressParser creates a new progress parser with the given callback.
//
// The callback is invoked for each parsed progress line. Pass nil for
// callback if you only want the accumulated summary.
func NewProgressParser(cb ProgressCallback) *ProgressParser {
	return &ProgressParser{
		callback: cb,
	}
}

// ParseLine implements the LineParser interface.
//
// Progress lines update Current() and fire the callback; --stats lines
// accumulate into Summary(). Anything else is ignored.
func (p *ProgressParser) ParseLine(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.linesProcessed++

	if update, ok := parseProgressLine(trimmed); ok {
		p.current = update
		p.updatesReceived++
		if p.callback != nil {
			cb := *update // copy
			p.callback(&cb)
		}
		return
	}

	p.parseSummaryLine(trimmed)
}

// parseProgressLine decodes one progress2 line.
//
// Layout: BYTES PERCENT% RATE/s ELAPSED (xfr#N, to-chk=A/B)
// The parenthetical is absent before the first file completes.
func parseProgressLine(line string) (*ProgressUpdate, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, false
	}

	bytes, ok := parseGroupedInt(fields[0])
	if !ok {
		return nil, false
	}
	if !strings.HasSuffix(fields[1], "%") {
		return nil, false
	}
	percent, err := strconv.Atoi(strings.TrimSuffix(fields[1], "%"))
	if err != nil {
		return nil, false
	}

	u := &ProgressUpdate{
		Bytes:      bytes,
		Percent:    percent,
		ReceivedAt: time.Now(),
	}

	if len(fields) >= 3 && strings.HasSuffix(fields[2], "/s") {
		u.Rate = parseRate(fields[2])
	}
	if len(fields) >= 4 && strings.Contains(fields[3], ":") {
		u.Elapsed = parseClock(fields[3])
	}

	for _, f := range fields[4:] {
		f = strings.Trim(f, "(),")
		switch {
		case strings.HasPrefix(f, "xfr#"):
			u.FilesTransferred, _ = strconv.ParseInt(strings.TrimPrefix(f, "xfr#"), 10, 64)
		case strings.HasPrefix(f, "to-chk="):
			u.FilesRemaining, u.FilesTotal = parseCheck(strings.TrimPrefix(f, "to-chk="))
		case strings.HasPrefix(f, "ir-chk="):
			u.FilesRemaining, u.FilesTotal = parseCheck(strings.TrimPrefix(f, "ir-chk="))
			u.Scanning = true
		}
	}

	return u, true
}

// parseSummaryLine folds a --stats line into the summary, if recognized.
func (p *ProgressParser) parseSummaryLine(line string) {
	set := func(dst *int64) {
		if n, ok := firstGroupedInt(line); ok {
			*dst = n
			p.summarySeen = true
		}
	}

	switch {
	case strings.HasPrefix(line, "Number of files:"):
		set(&p.summary.FilesTotal)
	case strings.HasPrefix(line, "Number of created files:"):
		set(&p.summary.FilesCreated)
	case strings.HasPrefix(line, "Number of deleted files:"):
		set(&p.summary.FilesDeleted)
	case strings.HasPrefix(line, "Number of regular files transferred:"):
		set(&p.summary.FilesTransferred)
	case strings.HasPrefix(line, "Total file size:"):
		set(&p.summary.TotalSize)
	case strings.HasPrefix(line, "Total transferred file size:"):
		set(&p.summary.BytesTransferred)
	case strings.HasPrefix(line, "Total bytes sent:"):
		set(&p.summary.BytesSent)
	case strings.HasPrefix(line, "Total bytes received:"):
		set(&p.summary.BytesReceived)
	}
}

// Stats returns parser statistics.
func (p *ProgressParser) Stats() (updatesReceived, linesProcessed int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updatesReceived, p.linesProcessed
}

// Current returns the most recent progress update, or nil before the
// first one arrives.
func (p *ProgressParser) Current() *ProgressUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	copy := *p.current
	return &copy
}

// Summary returns the accumulated --stats totals, or nil if no summary
// lines have been seen yet.
func (p *ProgressParser) Summary() *TransferSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.summarySeen {
		return nil
	}
	s := p.summary
	return &s
}

// parseGroupedInt parses an integer with optional comma grouping.
func parseGroupedInt(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// firstGroupedInt extracts the first comma-grouped integer in s.
func firstGroupedInt(s string) (int64, bool) {
	start := -1
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			start = i
			break
		}
	}
	if start < 0 {
		return 0, false
	}

	end := start
	for end < len(s) && (s[end] == ',' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	return parseGroupedInt(s[start:end])
}

// parseRate converts an rsync rate string to bytes per second.
//
// Examples:
//   - "137.52MB/s" -> 137520000
//   - "612.34kB/s" -> 612340
//   - "85B/s"      -> 85
func parseRate(s string) float64 {
	s = strings.TrimSuffix(s, "/s")

	mult := 1.0
	switch {
	case strings.HasSuffix(s, "kB"):
		mult = 1e3
		s = strings.TrimSuffix(s, "kB")
	case strings.HasSuffix(s, "MB"):
		mult = 1e6
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "GB"):
		mult = 1e9
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "TB"):
		mult = 1e12
		s = strings.TrimSuffix(s, "TB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}

	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return f * mult
}

// parseClock converts "h:mm:ss" or "mm:ss" to a duration.
func parseClock(s string) time.Duration {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}

	var total int64
	for _, part := range parts {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}

// parseCheck splits "REMAIN/TOTAL" from to-chk / ir-chk.
func parseCheck(s string) (remaining, total int64) {
	idx := strings.Index(s, "/")
	if idx < 0 {
		return 0, 0
	}
	remaining, _ = strconv.ParseInt(s[:idx], 10, 64)
	total, _ = strconv.ParseInt(s[idx+1:], 10, 64)
	return remaining, total
}

// IsFinal returns true once every file has been checked and transferred.
func (u *ProgressUpdate) IsFinal() bool {
	return !u.Scanning && u.FilesTotal > 0 && u.FilesRemaining == 0
}
