// Package encoder wraps the external transcoder that turns one source file into
// one HLS rendition. Callers only learn whether the invocation succeeded; the
// produced files are validated elsewhere.
package encoder

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"hlsworker/logger"
)

// Job describes a single rendition to produce.
type Job struct {
	Input          string // local source file
	Playlist       string // output playlist path, its directory must exist
	Resolution     string // "WxH"
	Bitrate        string // e.g. "1500k"
	SegmentPattern string // e.g. "/tmp/x/hls/720p/segment_%03d.ts"
}

// Encoder produces an HLS rendition. Encode reports success only; expected
// failures are logged and never returned as errors.
type Encoder interface {
	Encode(ctx context.Context, job Job) bool
}

const (
	DefaultBufferSize = "2000k"

	minDeadline    = 5 * time.Minute
	maxDeadline    = 30 * time.Minute
	deadlinePerMiB = 6 * time.Second
)

// BufferSize derives the rate-control buffer as twice the bitrate.
// "1500k" gives "3000k"; anything unparsable gives DefaultBufferSize.
func BufferSize(bitrate string) string {
	digits := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(bitrate)), "k")
	n, err := strconv.Atoi(digits)
	if err != nil {
		return DefaultBufferSize
	}
	return fmt.Sprintf("%dk", n*2)
}

// Deadline bounds a single invocation by input size: about 6s per MiB,
// clamped to [5m, 30m].
func Deadline(sizeBytes int64) time.Duration {
	if sizeBytes < 0 {
		sizeBytes = 0
	}
	mib := sizeBytes / (1 << 20)
	d := time.Duration(mib) * deadlinePerMiB
	if d < minDeadline {
		return minDeadline
	}
	if d > maxDeadline {
		return maxDeadline
	}
	return d
}

// Available reports whether binary resolves on PATH.
func Available(binary string) bool {
	if _, err := exec.LookPath(binary); err != nil {
		logger.Warnf("encoder skipped: command '%s' not found in PATH", binary)
		return false
	}
	logger.Debugf("encoder available (command: %s)", binary)
	return true
}
