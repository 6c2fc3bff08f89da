package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"m3u8conv/logger"
)

// Defaults used when the FFmpeg fields are left empty
const (
	DefaultBinary            = "ffmpeg"
	DefaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	DefaultProtocolWhitelist = "file,http,https,tcp,tls,crypto"

	progressPipeTarget = "pipe:1"
	stderrTailLines    = 5
)

// FFmpeg drives an ffmpeg binary in stream-copy mode
type FFmpeg struct {
	Binary            string
	UserAgent         string
	ProtocolWhitelist string
}

// NewFFmpeg returns an engine for the given binary, falling back to defaults for empty values
func NewFFmpeg(binary, userAgent, protocolWhitelist string) *FFmpeg {
	if binary == "" {
		binary = DefaultBinary
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if protocolWhitelist == "" {
		protocolWhitelist = DefaultProtocolWhitelist
	}
	return &FFmpeg{Binary: binary, UserAgent: userAgent, ProtocolWhitelist: protocolWhitelist}
}

// Check reports whether the ffmpeg binary can be found
func (f *FFmpeg) Check() (string, error) {
	path, err := exec.LookPath(f.Binary)
	if err != nil {
		logger.Warnf("engine [ffmpeg] unavailable: command '%s' not found in PATH", f.Binary)
		return "", fmt.Errorf("ffmpeg binary %q not found: %w", f.Binary, err)
	}
	logger.Debugf("engine [ffmpeg] available (command: %s)", path)
	return path, nil
}

// BuildArgs builds the ffmpeg command arguments for a request
func (f *FFmpeg) BuildArgs(req Request) []string {
	args := []string{"-hide_banner", "-y"}

	switch req.Kind {
	case SourceRemote:
		args = append(args, "-user_agent", f.UserAgent)
	case SourceLocalFile:
		// segment references inside the file may point at any of these
		args = append(args, "-protocol_whitelist", f.ProtocolWhitelist)
	}

	args = append(args,
		"-i", req.Source,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		"-fflags", "+genpts",
		"-avoid_negative_ts", "make_zero",
		"-progress", progressPipeTarget,
		"-nostats",
		req.Output,
	)
	return args
}

// Remux starts ffmpeg and returns its event stream
func (f *FFmpeg) Remux(ctx context.Context, req Request) <-chan Event {
	events := make(chan Event, 16)
	go f.run(ctx, req, events)
	return events
}

func (f *FFmpeg) run(ctx context.Context, req Request, events chan<- Event) {
	defer close(events)

	cmd := exec.CommandContext(ctx, f.Binary, f.BuildArgs(req)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		events <- Event{Type: EventFailed, Message: fmt.Sprintf("failed to create stdout pipe: %v", err)}
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		events <- Event{Type: EventFailed, Message: fmt.Sprintf("failed to create stderr pipe: %v", err)}
		return
	}

	if err := cmd.Start(); err != nil {
		events <- Event{Type: EventFailed, Message: fmt.Sprintf("failed to start ffmpeg: %v", err)}
		return
	}

	commandLine := strings.Join(cmd.Args, " ")
	logger.Debugf("FFmpeg command: %s", commandLine)
	events <- Event{Type: EventStarted, Message: commandLine}

	tracker := &progressTracker{}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tracker.scanDiagnostics(stderr)
	}()

	tracker.scanProgress(stdout, func(percent *float64) {
		events <- Event{Type: EventProgress, Percent: percent}
	})

	wg.Wait()
	waitErr := cmd.Wait()

	if waitErr != nil {
		events <- Event{Type: EventFailed, Message: tracker.failureMessage(ctx, waitErr)}
		return
	}
	events <- Event{Type: EventCompleted}
}

// progressTracker accumulates what ffmpeg reports on its two output streams
type progressTracker struct {
	mu       sync.Mutex
	duration float64 // seconds, 0 when unknown
	tail     []string
}

func (p *progressTracker) scanDiagnostics(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		p.mu.Lock()
		if p.duration == 0 {
			if d, ok := parseDuration(line); ok {
				p.duration = d
			}
		}
		p.tail = append(p.tail, line)
		if len(p.tail) > stderrTailLines {
			p.tail = p.tail[len(p.tail)-stderrTailLines:]
		}
		p.mu.Unlock()
	}
	drain(scanner, r)
}

func (p *progressTracker) scanProgress(r io.Reader, emit func(*float64)) {
	scanner := bufio.NewScanner(r)
	var outTime float64
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			// both keys carry microseconds
			if seconds, ok := parseMicroseconds(value); ok {
				outTime = seconds
			}
		case "progress":
			p.mu.Lock()
			duration := p.duration
			p.mu.Unlock()
			emit(percentOf(outTime, duration))
		}
	}
	drain(scanner, r)
}

// drain keeps consuming r after the scanner gave up (e.g. an overlong line)
// so ffmpeg never blocks writing to a full pipe
func drain(scanner *bufio.Scanner, r io.Reader) {
	if err := scanner.Err(); err != nil {
		logger.Debugf("engine [ffmpeg] output scan stopped: %v", err)
		io.Copy(io.Discard, r)
	}
}

func (p *progressTracker) failureMessage(ctx context.Context, err error) string {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Sprintf("conversion interrupted: %v", ctxErr)
	}

	p.mu.Lock()
	tail := append([]string(nil), p.tail...)
	p.mu.Unlock()

	if len(tail) > 0 {
		return strings.Join(tail, "; ")
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Sprintf("ffmpeg exited with status %d", exitErr.ExitCode())
	}
	return err.Error()
}
