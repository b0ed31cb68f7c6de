package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"hlsworker/config"
)

const (
	manifestHeader = "#EXTM3U"
	manifestCodecs = "avc1.42e00a,mp4a.40.2"

	VariantPlaylistName = "playlist.m3u8"
	MasterPlaylistName  = "master_playlist.m3u8"
)

var (
	ErrNoVariants      = errors.New("no successful variants")
	ErrInvalidManifest = errors.New("invalid master manifest")
)

// Bandwidth expands the "k" unit of a bitrate: "1500k" gives "1500000".
func Bandwidth(bitrate string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(bitrate)), "k", "000")
}

// BuildMasterManifest renders the multivariant playlist for the successful
// variants in the given order.
func BuildMasterManifest(variants config.VariantTable) (string, error) {
	if len(variants) == 0 {
		return "", ErrNoVariants
	}

	var b strings.Builder
	b.WriteString(manifestHeader + "\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	for _, v := range variants {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%s,RESOLUTION=%s,CODECS=\"%s\"\n",
			Bandwidth(v.Bitrate), v.Resolution, manifestCodecs)
		fmt.Fprintf(&b, "%s/%s\n", v.Name, VariantPlaylistName)
	}

	content := b.String()
	if err := ValidateManifest(content); err != nil {
		return "", err
	}
	return content, nil
}

// ValidateManifest checks a playlist is non-blank and carries the #EXTM3U marker.
func ValidateManifest(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidManifest)
	}
	if !strings.Contains(content, manifestHeader) {
		return fmt.Errorf("%w: missing %s", ErrInvalidManifest, manifestHeader)
	}
	return nil
}
