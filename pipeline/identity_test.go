package pipeline

import (
	"testing"
)

func TestIdentify(t *testing.T) {
	tests := []struct {
		path     string
		video    string
		original string
	}{
		{"Revoland/PropertyVideos/abc_123.mp4", "abc_123", "abc"},
		{"Revoland/PropertyVideos/xyz_9.mp4", "xyz_9", "xyz"},
		{"Revoland/PropertyVideos/plain.mov", "plain", "plain"},
		{"Revoland/PropertyVideos/a_b_c.tar.mp4", "a_b_c", "a"},
		{"Revoland/PropertyVideos/_x.mp4", "_x", "_x"},
		{"noext", "noext", "noext"},
	}
	for _, tt := range tests {
		id, err := Identify(tt.path)
		if err != nil {
			t.Fatalf("Identify(%q) returned error: %v", tt.path, err)
		}
		if id.VideoID != tt.video || id.OriginalVideoID != tt.original {
			t.Errorf("Identify(%q) = %+v, want video %q original %q", tt.path, id, tt.video, tt.original)
		}
	}
}

func TestIdentifyRejectsEmptyName(t *testing.T) {
	for _, p := range []string{"Revoland/PropertyVideos/.mp4", ""} {
		if _, err := Identify(p); err == nil {
			t.Errorf("Identify(%q) expected error", p)
		}
	}
}

func TestFilterAccept(t *testing.T) {
	f := Filter{
		Prefix:     "Revoland/PropertyVideos",
		Extensions: []string{"mp4", "mov", "avi", "wmv", "webm"},
		Marker:     "_hls",
	}
	tests := []struct {
		path string
		want bool
	}{
		{"Revoland/PropertyVideos/abc_123.mp4", true},
		{"Revoland/PropertyVideos/clip.webm", true},
		{"Revoland/PropertyVideos/clip.MP4", false},
		{"Revoland/PropertyVideos/clip.mkv", false},
		{"Revoland/PropertyVideos/abc_hls/x.mp4", false},
		{"Revoland/PropertyVideos/Hls/abc/720p/playlist.m3u8", false},
		{"Other/abc.mp4", false},
		{"Revoland/PropertyVideos/mp4", false},
	}
	for _, tt := range tests {
		if got := f.Accept(tt.path); got != tt.want {
			t.Errorf("Accept(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
