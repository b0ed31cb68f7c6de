// Package pipeline turns one uploaded source video into a published HLS
// ladder: per-variant encode, validate and upload, then the master playlist,
// then a notification to the backend.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"hlsworker/blobstore"
	"hlsworker/config"
	"hlsworker/encoder"
	"hlsworker/events"
	"hlsworker/logger"
	"hlsworker/metrics"
	"hlsworker/notify"
)

// State is a stage of a run.
type State string

const (
	StateFiltering          State = "filtering"
	StateFetching           State = "fetching"
	StateTranscoding        State = "transcoding"
	StateManifestBuilding   State = "manifest_building"
	StatePublishingManifest State = "publishing_manifest"
	StateNotifying          State = "notifying"
	StateDone               State = "done"
	StateAborted            State = "aborted"
)

// Reason explains why a run was aborted.
type Reason string

const (
	ReasonFiltered             Reason = "filtered"
	ReasonMissingObject        Reason = "missing-object"
	ReasonInvalidName          Reason = "invalid-name"
	ReasonFetchFailed          Reason = "fetch-failed"
	ReasonNoVariants           Reason = "no-variants"
	ReasonManifestInvalid      Reason = "manifest-invalid"
	ReasonManifestUploadFailed Reason = "manifest-upload-failed"
	ReasonNotifyUnconfigured   Reason = "notify-unconfigured"
	ReasonNotifyExhausted      Reason = "notify-exhausted"
)

// Outcome is the result of one run. Published is true once the master
// playlist is in storage, even if the notification later failed.
type Outcome struct {
	RunID           string    `json:"run_id"`
	Bucket          string    `json:"bucket"`
	Object          string    `json:"object"`
	VideoID         string    `json:"video_id,omitempty"`
	OriginalVideoID string    `json:"original_video_id,omitempty"`
	State           State     `json:"state"`
	Reason          Reason    `json:"reason,omitempty"`
	FailedStage     State     `json:"failed_stage,omitempty"`
	Error           string    `json:"error,omitempty"`
	Variants        []string  `json:"variants,omitempty"`
	MasterURL       string    `json:"master_url,omitempty"`
	Published       bool      `json:"published"`
	RolledBack      int       `json:"rolled_back,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

// Aborted reports whether the run stopped before Done.
func (o Outcome) Aborted() bool { return o.State == StateAborted }

// Notifier sends the playlist URLs to the backend.
type Notifier interface {
	Notify(ctx context.Context, endpoint string, payload notify.Payload) error
}

// Recorder persists run outcomes. Filtered events are never recorded.
type Recorder interface {
	RecordSuccess(out Outcome) error
	RecordFailure(out Outcome) error
}

// StateObserver is told about every state a run enters.
type StateObserver interface {
	Observe(runID, object string, state State)
}

// Settings is the per-process part of the configuration a run needs.
type Settings struct {
	Filter        Filter
	Variants      config.VariantTable
	VideoPrefix   string
	BackendAPIURL string
	OrphanPolicy  string
	// TempDir is where per-run working areas are created; empty means os.TempDir.
	TempDir string
}

// SettingsFromConfig extracts Settings from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Filter: Filter{
			Prefix:     cfg.VideoPrefix,
			Extensions: cfg.AllowedExtensions,
			Marker:     cfg.HLSMarker,
		},
		Variants:      cfg.Variants.Clone(),
		VideoPrefix:   cfg.VideoPrefix,
		BackendAPIURL: cfg.BackendAPIURL,
		OrphanPolicy:  cfg.OrphanPolicy,
	}
}

// Controller runs the pipeline for trigger events. It keeps no state between runs.
type Controller struct {
	Settings Settings
	Store    blobstore.Store
	Encoder  encoder.Encoder
	Notifier Notifier

	Recorder Recorder      // optional
	Observer StateObserver // optional
	// BuildManifest defaults to BuildMasterManifest.
	BuildManifest func(config.VariantTable) (string, error)
}

// HLSRoot is the remote directory holding every artifact of a video.
func (c *Controller) HLSRoot(videoID string) string {
	return path.Join(c.Settings.VideoPrefix, "Hls", videoID)
}

// VariantObject is the remote path of one file of a variant.
func (c *Controller) VariantObject(videoID, variant, filename string) string {
	return path.Join(c.HLSRoot(videoID), variant, filename)
}

// MasterObject is the remote path of the master playlist.
func (c *Controller) MasterObject(videoID string) string {
	return path.Join(c.HLSRoot(videoID), MasterPlaylistName)
}

// Endpoint is the backend URL updated for originalVideoID.
func (c *Controller) Endpoint(originalVideoID string) string {
	return fmt.Sprintf("%s/api/videos/original/%s/hls", c.Settings.BackendAPIURL, url.PathEscape(originalVideoID))
}

type run struct {
	c   *Controller
	out Outcome
	log string
}

func (r *run) enter(s State) {
	r.out.State = s
	if s != StateFiltering {
		logger.Debugf("%s entering %s", r.log, s)
	}
	if r.c.Observer != nil {
		r.c.Observer.Observe(r.out.RunID, r.out.Object, s)
	}
}

func (r *run) abort(reason Reason, err error) Outcome {
	r.out.FailedStage = r.out.State
	r.out.Reason = reason
	if err != nil {
		r.out.Error = err.Error()
	}
	r.enter(StateAborted)
	return r.out
}

// Run processes ev to completion and never fails: every problem becomes an
// Aborted outcome with a reason. The working area is removed on every path.
func (c *Controller) Run(ctx context.Context, ev events.TriggerEvent) Outcome {
	r := &run{
		c: c,
		out: Outcome{
			RunID:     uuid.NewString(),
			Bucket:    ev.Bucket,
			Object:    ev.Name,
			StartedAt: time.Now(),
		},
	}
	r.log = fmt.Sprintf("[run %s]", r.out.RunID[:8])

	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()

	out := c.run(ctx, r, ev)
	out.FinishedAt = time.Now()
	c.finish(r.log, out)
	return out
}

func (c *Controller) finish(log string, out Outcome) {
	metrics.RunsTotal.WithLabelValues(string(out.State), string(out.Reason)).Inc()
	if out.Reason == ReasonFiltered {
		return
	}
	metrics.RunDuration.Observe(out.FinishedAt.Sub(out.StartedAt).Seconds())

	switch {
	case out.State == StateDone:
		logger.Infof("%s completed %s: %d variants published", log, out.Object, len(out.Variants))
	case out.Published:
		logger.Errorf("%s media for %s published but backend not updated (%s): %s", log, out.Object, out.Reason, out.Error)
	case out.Reason == ReasonManifestInvalid || out.Reason == ReasonManifestUploadFailed:
		logger.Errorf("%s aborted %s at %s (%s): %s", log, out.Object, out.FailedStage, out.Reason, out.Error)
	default:
		logger.Warnf("%s aborted %s at %s (%s)", log, out.Object, out.FailedStage, out.Reason)
	}

	if c.Recorder == nil {
		return
	}
	var err error
	if out.State == StateDone {
		err = c.Recorder.RecordSuccess(out)
	} else {
		err = c.Recorder.RecordFailure(out)
	}
	if err != nil {
		logger.Errorf("%s failed to record outcome: %v", log, err)
	}
}

func (c *Controller) run(ctx context.Context, r *run, ev events.TriggerEvent) Outcome {
	r.enter(StateFiltering)
	if !ev.Exists || ev.Name == "" || ev.Bucket == "" {
		return r.abort(ReasonMissingObject, nil)
	}
	if !c.Settings.Filter.Accept(ev.Name) {
		logger.Debugf("%s ignoring %s", r.log, ev.Name)
		return r.abort(ReasonFiltered, nil)
	}
	id, err := Identify(ev.Name)
	if err != nil {
		return r.abort(ReasonInvalidName, err)
	}
	r.out.VideoID = id.VideoID
	r.out.OriginalVideoID = id.OriginalVideoID
	logger.Infof("%s processing %s/%s (video %s)", r.log, ev.Bucket, ev.Name, id.VideoID)

	r.enter(StateFetching)
	workDir, err := os.MkdirTemp(c.Settings.TempDir, "hlsworker-")
	if err != nil {
		return r.abort(ReasonFetchFailed, fmt.Errorf("failed to create working area: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Errorf("%s failed to remove working area %s: %v", r.log, workDir, err)
		}
	}()

	source := filepath.Join(workDir, path.Base(ev.Name))
	if err := c.Store.Download(ctx, ev.Bucket, ev.Name, source); err != nil {
		return r.abort(ReasonFetchFailed, err)
	}

	r.enter(StateTranscoding)
	hlsDir := filepath.Join(workDir, "hls")
	if err := os.MkdirAll(hlsDir, 0755); err != nil {
		return r.abort(ReasonNoVariants, err)
	}
	upload := func(ctx context.Context, variant, filename, local string) (string, error) {
		return c.Store.Upload(ctx, ev.Bucket, c.VariantObject(id.VideoID, variant, filename), local)
	}
	set := ProcessVariants(ctx, c.Encoder, source, hlsDir, c.Settings.Variants, upload)
	if len(set.Successful) == 0 {
		return r.abort(ReasonNoVariants, nil)
	}
	r.out.Variants = set.Published

	r.enter(StateManifestBuilding)
	masterPath := filepath.Join(hlsDir, MasterPlaylistName)
	if err := c.writeManifest(set.Successful, masterPath); err != nil {
		c.rollback(ctx, r, ev.Bucket, id, set)
		return r.abort(ReasonManifestInvalid, err)
	}

	r.enter(StatePublishingManifest)
	masterURL, err := c.Store.Upload(ctx, ev.Bucket, c.MasterObject(id.VideoID), masterPath)
	if err != nil {
		c.rollback(ctx, r, ev.Bucket, id, set)
		return r.abort(ReasonManifestUploadFailed, err)
	}
	r.out.MasterURL = masterURL
	r.out.Published = true

	r.enter(StateNotifying)
	if c.Settings.BackendAPIURL == "" {
		return r.abort(ReasonNotifyUnconfigured, errors.New("backend API URL is not configured"))
	}
	variants := make([]notify.Variant, 0, len(set.Published))
	for _, name := range set.Published {
		variants = append(variants, notify.Variant{
			Resolution: name,
			URL:        c.Store.PublicURL(ev.Bucket, c.VariantObject(id.VideoID, name, VariantPlaylistName)),
		})
	}
	if err := c.Notifier.Notify(ctx, c.Endpoint(id.OriginalVideoID), notify.NewPayload(masterURL, variants)); err != nil {
		return r.abort(ReasonNotifyExhausted, err)
	}

	r.enter(StateDone)
	return r.out
}

// writeManifest renders the master playlist to disk and validates what was
// written, so a bad file never reaches storage.
func (c *Controller) writeManifest(successful config.VariantTable, dst string) error {
	build := c.BuildManifest
	if build == nil {
		build = BuildMasterManifest
	}
	content, err := build(successful)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write master playlist: %w", err)
	}
	written, err := os.ReadFile(dst)
	if err != nil {
		return fmt.Errorf("failed to read back master playlist: %w", err)
	}
	return ValidateManifest(string(written))
}

// rollback deletes the variant objects uploaded by this run when the orphan
// policy asks for it.
func (c *Controller) rollback(ctx context.Context, r *run, bucket string, id SourceIdentity, set VariantSet) {
	if c.Settings.OrphanPolicy != config.OrphanRollback {
		logger.Warnf("%s leaving %d published variants of %s without a master playlist", r.log, len(set.Successful), id.VideoID)
		return
	}
	for _, res := range set.Results {
		for _, u := range res.Uploads {
			if !u.Uploaded() {
				continue
			}
			object := c.VariantObject(id.VideoID, res.Spec.Name, u.File)
			if err := c.Store.Delete(ctx, bucket, object); err != nil {
				logger.Errorf("%s rollback failed for %s: %v", r.log, object, err)
				continue
			}
			r.out.RolledBack++
		}
	}
	logger.Infof("%s rolled back %d objects of %s", r.log, r.out.RolledBack, id.VideoID)
}
