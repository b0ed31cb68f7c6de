package pipeline

import (
	"errors"
	"path"
	"strings"
)

var errNoVideoID = errors.New("object name has no video id")

// SourceIdentity addresses a source video in storage and in the backend.
type SourceIdentity struct {
	VideoID         string `json:"video_id"`
	OriginalVideoID string `json:"original_video_id"`
}

// Identify derives the ids from an object path: "a/b/abc_123.mp4" gives
// VideoID "abc_123" and OriginalVideoID "abc". OriginalVideoID is never empty.
func Identify(objectPath string) (SourceIdentity, error) {
	base := path.Base(objectPath)
	videoID, _, _ := strings.Cut(base, ".")
	if videoID == "" || videoID == "/" {
		return SourceIdentity{}, errNoVideoID
	}

	original, _, _ := strings.Cut(videoID, "_")
	if original == "" {
		original = videoID
	}
	return SourceIdentity{VideoID: videoID, OriginalVideoID: original}, nil
}

// Filter decides which storage objects are source videos to transcode.
type Filter struct {
	Prefix     string
	Extensions []string
	// Marker is the infix carried by derived HLS artifacts.
	Marker string
}

// Accept reports whether objectPath is a source video under Prefix with an
// allowed extension that is not itself a derived artifact.
func (f Filter) Accept(objectPath string) bool {
	if !strings.HasPrefix(objectPath, f.Prefix) {
		return false
	}
	if f.Marker != "" && strings.Contains(objectPath, f.Marker) {
		return false
	}
	for _, ext := range f.Extensions {
		if strings.HasSuffix(objectPath, "."+ext) {
			return true
		}
	}
	return false
}
