package config

import (
	"fmt"
	"regexp"
	"strings"
)

// VariantSpec describes one HLS rendition produced for every source video.
type VariantSpec struct {
	Name       string `json:"name"`       // e.g. "720p"
	Resolution string `json:"resolution"` // "WxH"
	Bitrate    string `json:"bitrate"`    // with unit suffix, e.g. "1500k"
}

// VariantTable is the ordered set of renditions. Order drives manifest order.
type VariantTable []VariantSpec

// DefaultVariants returns the stock 720p/1080p table.
func DefaultVariants() VariantTable {
	return VariantTable{
		{Name: "720p", Resolution: "1280x720", Bitrate: "1500k"},
		{Name: "1080p", Resolution: "1920x1080", Bitrate: "2500k"},
	}
}

// Clone returns a copy that callers may modify freely.
func (t VariantTable) Clone() VariantTable {
	out := make(VariantTable, len(t))
	copy(out, t)
	return out
}

// Names returns the variant names in table order.
func (t VariantTable) Names() []string {
	names := make([]string, 0, len(t))
	for _, v := range t {
		names = append(names, v.Name)
	}
	return names
}

var (
	resolutionPattern = regexp.MustCompile(`^\d+x\d+$`)
	bitratePattern    = regexp.MustCompile(`^\d+[kK]?$`)
)

// ParseVariants parses a table of the form "720p=1280x720@1500k,1080p=1920x1080@2500k".
func ParseVariants(s string) (VariantTable, error) {
	var table VariantTable
	seen := make(map[string]bool)

	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, rest, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("variant %q: expected name=WxH@bitrate", entry)
		}
		resolution, bitrate, ok := strings.Cut(rest, "@")
		if !ok {
			return nil, fmt.Errorf("variant %q: missing @bitrate", entry)
		}
		name = strings.TrimSpace(name)
		resolution = strings.TrimSpace(resolution)
		bitrate = strings.TrimSpace(bitrate)

		if name == "" || strings.ContainsAny(name, `/\`) {
			return nil, fmt.Errorf("variant %q: invalid name", entry)
		}
		if seen[name] {
			return nil, fmt.Errorf("variant %q: duplicate name %s", entry, name)
		}
		if !resolutionPattern.MatchString(resolution) {
			return nil, fmt.Errorf("variant %q: invalid resolution %s", entry, resolution)
		}
		if !bitratePattern.MatchString(bitrate) {
			return nil, fmt.Errorf("variant %q: invalid bitrate %s", entry, bitrate)
		}
		seen[name] = true
		table = append(table, VariantSpec{Name: name, Resolution: resolution, Bitrate: bitrate})
	}

	if len(table) == 0 {
		return nil, fmt.Errorf("no variants defined")
	}
	return table, nil
}
