package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"hlsworker/logger"
)

const stderrTail = 2048

// FFmpeg runs the ffmpeg binary directly.
type FFmpeg struct {
	Binary  string
	Threads int

	// DeadlineFor overrides Deadline; tests use it to force timeouts.
	DeadlineFor func(sizeBytes int64) time.Duration
}

// NewFFmpeg returns an ffmpeg encoder using binary (default "ffmpeg").
func NewFFmpeg(binary string, threads int) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	if threads <= 0 {
		threads = 2
	}
	return &FFmpeg{Binary: binary, Threads: threads}
}

// Args builds the ffmpeg argument list for job.
func (f *FFmpeg) Args(job Job) []string {
	threads := f.Threads
	if threads <= 0 {
		threads = 2
	}
	return []string{
		"-hide_banner", "-nostdin",
		"-y",
		"-i", job.Input,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-preset", "fast",
		"-tune", "zerolatency",
		"-crf", "28",
		"-maxrate", job.Bitrate,
		"-bufsize", BufferSize(job.Bitrate),
		"-s", job.Resolution,
		"-g", "48",
		"-keyint_min", "48",
		"-sc_threshold", "0",
		"-threads", strconv.Itoa(threads),
		"-f", "hls",
		"-hls_time", "6",
		"-hls_list_size", "0",
		"-hls_segment_filename", job.SegmentPattern,
		"-hls_flags", "independent_segments",
		"-start_number", "0",
		job.Playlist,
	}
}

// Encode runs ffmpeg for job under a size-derived deadline.
func (f *FFmpeg) Encode(ctx context.Context, job Job) bool {
	info, err := os.Stat(job.Input)
	if err != nil {
		logger.Errorf("input file does not exist: %s", job.Input)
		return false
	}

	deadline := Deadline(info.Size())
	if f.DeadlineFor != nil {
		deadline = f.DeadlineFor(info.Size())
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.Binary, f.Args(job)...)
	cmd.WaitDelay = 5 * time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Infof("encoding %s at %s (maxrate %s, deadline %v)", job.Input, job.Resolution, job.Bitrate, deadline)
	start := time.Now()
	err = cmd.Run()
	if err == nil {
		logger.Infof("encoded %s in %v", job.Resolution, time.Since(start).Round(time.Millisecond))
		return true
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		logger.Errorf("ffmpeg exceeded deadline %v for %s", deadline, job.Resolution)
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logger.Errorf("ffmpeg exited with status %d for %s", exitErr.ExitCode(), job.Resolution)
		} else {
			logger.Errorf("ffmpeg invocation failed for %s: %v", job.Resolution, err)
		}
	}
	if tail := lastBytes(stderr.Bytes(), stderrTail); len(tail) > 0 {
		logger.Errorf("ffmpeg stderr: %s", tail)
	}
	return false
}

func lastBytes(b []byte, n int) string {
	b = bytes.TrimSpace(b)
	if len(b) > n {
		return fmt.Sprintf("...%s", b[len(b)-n:])
	}
	return string(b)
}
