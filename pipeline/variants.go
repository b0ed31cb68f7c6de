package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hlsworker/config"
	"hlsworker/encoder"
	"hlsworker/logger"
	"hlsworker/metrics"
)

const segmentPattern = "segment_%03d.ts"

// Reasons a variant is dropped.
const (
	VariantEncodeFailed    = "encode-failed"
	VariantMissingDir      = "missing-output-dir"
	VariantNoSegments      = "no-segments"
	VariantInvalidPlaylist = "invalid-playlist"
	VariantUploadFailed    = "upload-failed"
)

// UploadFunc publishes one file of a variant and returns its public URL.
type UploadFunc func(ctx context.Context, variant, filename, localPath string) (string, error)

// UploadResult is the outcome of one file upload: uploaded when Err is nil.
type UploadResult struct {
	File string `json:"file"`
	URL  string `json:"url,omitempty"`
	Err  error  `json:"-"`
}

func (u UploadResult) Uploaded() bool { return u.Err == nil }

// VariantResult is what happened to one variant during a run.
type VariantResult struct {
	Spec    config.VariantSpec
	Dir     string
	OK      bool
	Reason  string
	Uploads []UploadResult
}

// VariantSet aggregates the variant results of a run.
type VariantSet struct {
	// Successful holds the variants with at least one uploaded file, in table order.
	Successful config.VariantTable
	// Published lists the names of Successful.
	Published []string
	Results   []VariantResult
}

// ProcessVariants encodes, validates and uploads every variant in order.
// Variants are isolated: one failing never affects the next, and a variant
// with some failed uploads still counts if any file made it.
func ProcessVariants(ctx context.Context, enc encoder.Encoder, input, hlsDir string, specs config.VariantTable, upload UploadFunc) VariantSet {
	var set VariantSet
	for _, spec := range specs {
		res := processVariant(ctx, enc, input, hlsDir, spec, upload)
		set.Results = append(set.Results, res)
		if !res.OK {
			metrics.VariantsTotal.WithLabelValues(spec.Name, res.Reason).Inc()
			continue
		}
		metrics.VariantsTotal.WithLabelValues(spec.Name, "published").Inc()
		set.Successful = append(set.Successful, spec)
		set.Published = append(set.Published, spec.Name)
	}
	return set
}

func processVariant(ctx context.Context, enc encoder.Encoder, input, hlsDir string, spec config.VariantSpec, upload UploadFunc) VariantResult {
	dir := filepath.Join(hlsDir, spec.Name)
	res := VariantResult{Spec: spec, Dir: dir}

	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Errorf("failed to create output directory for %s: %v", spec.Name, err)
		res.Reason = VariantMissingDir
		return res
	}

	playlist := filepath.Join(dir, VariantPlaylistName)
	start := time.Now()
	ok := enc.Encode(ctx, encoder.Job{
		Input:          input,
		Playlist:       playlist,
		Resolution:     spec.Resolution,
		Bitrate:        spec.Bitrate,
		SegmentPattern: filepath.Join(dir, segmentPattern),
	})
	metrics.EncodeDuration.WithLabelValues(spec.Name).Observe(time.Since(start).Seconds())
	if !ok {
		logger.Warnf("variant %s skipped: encoder failed", spec.Name)
		res.Reason = VariantEncodeFailed
		return res
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		logger.Warnf("variant %s skipped: output directory missing", spec.Name)
		res.Reason = VariantMissingDir
		return res
	}

	if reason := validateVariant(dir, playlist); reason != "" {
		logger.Warnf("variant %s skipped: %s", spec.Name, reason)
		res.Reason = reason
		return res
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Errorf("failed to list %s: %v", dir, err)
		res.Reason = VariantMissingDir
		return res
	}

	uploaded := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		local := filepath.Join(dir, entry.Name())
		url, err := upload(ctx, spec.Name, entry.Name(), local)
		res.Uploads = append(res.Uploads, UploadResult{File: entry.Name(), URL: url, Err: err})
		if err != nil {
			metrics.UploadsTotal.WithLabelValues("failed").Inc()
			logger.Errorf("upload failed for %s of %s: %v", entry.Name(), spec.Name, err)
			continue
		}
		metrics.UploadsTotal.WithLabelValues("uploaded").Inc()
		uploaded++
	}

	if uploaded == 0 {
		res.Reason = VariantUploadFailed
		return res
	}
	if failed := len(res.Uploads) - uploaded; failed > 0 {
		logger.Warnf("variant %s published with %d of %d files missing", spec.Name, failed, len(res.Uploads))
	}
	res.OK = true
	logger.Infof("variant %s published (%d files)", spec.Name, uploaded)
	return res
}

// validateVariant returns an empty string when the output looks like a
// playable rendition, otherwise the reason it does not.
func validateVariant(dir, playlist string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return VariantMissingDir
	}
	segments := 0
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".ts") {
			segments++
		}
	}
	if segments == 0 {
		return VariantNoSegments
	}

	data, err := os.ReadFile(playlist)
	if err != nil {
		return VariantInvalidPlaylist
	}
	if ValidateManifest(string(data)) != nil {
		return VariantInvalidPlaylist
	}
	return ""
}
