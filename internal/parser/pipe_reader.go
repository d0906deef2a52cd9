package parser

import (
	"bufio"
	"bytes"
	"io"
	"sync/atomic"
)

// PipeReader reads lines from an io.Reader (the tool's stdout pipe).
// Implements the LineSource interface for uniform lifecycle management.
//
// A pipe is immediately ready since it needs no connection handshake.
type PipeReader struct {
	reader    io.Reader
	pipeline  *Pipeline
	readyChan chan struct{}
	closed    atomic.Bool

	// Stats (atomic for thread-safety)
	bytesRead atomic.Int64
	linesRead atomic.Int64
}

// NewPipeReader creates a new pipe-based line source.
//
// The reader is typically cmd.StdoutPipe().
func NewPipeReader(r io.Reader, pipeline *Pipeline) *PipeReader {
	pr := &PipeReader{
		reader:    r,
		pipeline:  pipeline,
		readyChan: make(chan struct{}),
	}
	// Pipe is immediately ready
	close(pr.readyChan)
	return pr
}

// Run reads lines until EOF. Implements LineSource.
// MUST call pipeline.CloseChannel() on exit.
func (p *PipeReader) Run() {
	defer p.pipeline.CloseChannel()

	scanner := bufio.NewScanner(p.reader)
	scanner.Split(ScanToolLines)

	// Use a larger buffer for long tool output lines
	const maxLineSize = 64 * 1024
	scanner.Buffer(make([]byte, maxLineSize), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		p.bytesRead.Add(int64(len(line) + 1)) // +1 for newline
		p.linesRead.Add(1)
		p.pipeline.FeedLine(line)
	}
}

// Ready returns immediately-closed channel (pipe is always ready).
// Implements LineSource.
func (p *PipeReader) Ready() <-chan struct{} {
	return p.readyChan
}

// Close marks the reader as closed.
// Note: The underlying reader is typically closed by the process exiting.
// Implements LineSource.
func (p *PipeReader) Close() error {
	p.closed.Store(true)
	return nil
}

// Stats returns (bytesRead, linesRead, healthy).
// Implements LineSource.
func (p *PipeReader) Stats() (bytesRead int64, linesRead int64, healthy bool) {
	return p.bytesRead.Load(),
		p.linesRead.Load(),
		!p.closed.Load()
}

// Ensure PipeReader implements LineSource interface
var _ LineSource = (*PipeReader)(nil)

// ScanToolLines is a bufio.SplitFunc that treats both \n and \r as line
// endings. rsync separates --info=progress2 updates with bare carriage
// returns so the terminal redraws in place; a plain line scanner would
// deliver the whole transfer as one line at EOF.
func ScanToolLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance = i + 1
		// \r\n counts as a single terminator
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					advance = i + 2
				}
			} else if !atEOF {
				// Can't tell yet whether \n follows; ask for more data
				return 0, nil, nil
			}
		}
		return advance, data[:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
