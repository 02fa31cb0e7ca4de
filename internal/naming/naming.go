// Package naming classifies texture filenames and resolves the canonical paths
// of derived PBR channels.
package naming

import (
	"path/filepath"
	"strings"
)

// Classification is the decision taken for a discovered filename.
type Classification int

const (
	// Unknown names are never processed (empty stems, non-image files).
	Unknown Classification = iota
	// BaseColor is a plain albedo that still needs its _Color canonical name.
	BaseColor
	// AlreadyColorNamed is an albedo carrying the _Color suffix.
	AlreadyColorNamed
	// DerivedChannel is a generated _Normal, _Metalness or _Roughness map.
	DerivedChannel
	// Thumbnail is a _thumb preview.
	Thumbnail
)

func (c Classification) String() string {
	switch c {
	case BaseColor:
		return "base_color"
	case AlreadyColorNamed:
		return "color_named"
	case DerivedChannel:
		return "derived_channel"
	case Thumbnail:
		return "thumbnail"
	default:
		return "unknown"
	}
}

// IsSource reports whether files with this classification feed channel generation.
func (c Classification) IsSource() bool {
	return c == BaseColor || c == AlreadyColorNamed
}

const (
	ColorSuffix     = "_Color"
	NormalSuffix    = "_Normal"
	MetalnessSuffix = "_Metalness"
	RoughnessSuffix = "_Roughness"
	ThumbSuffix     = "_thumb"
)

// Channel is a derived PBR channel.
type Channel int

const (
	Normal Channel = iota
	Metalness
	Roughness
)

// Channels lists every derived channel in generation order.
var Channels = []Channel{Normal, Metalness, Roughness}

// Suffix returns the filename suffix of the channel.
func (c Channel) Suffix() string {
	switch c {
	case Normal:
		return NormalSuffix
	case Metalness:
		return MetalnessSuffix
	case Roughness:
		return RoughnessSuffix
	default:
		return ""
	}
}

func (c Channel) String() string {
	switch c {
	case Normal:
		return "normal"
	case Metalness:
		return "metalness"
	case Roughness:
		return "roughness"
	default:
		return "unknown"
	}
}

// ParseChannel parses a channel name case-insensitively.
func ParseChannel(s string) (Channel, bool) {
	for _, c := range Channels {
		if strings.EqualFold(strings.TrimSpace(s), c.String()) {
			return c, true
		}
	}
	return 0, false
}

// SelectChannels parses channel names into generation order, dropping
// duplicates and blanks. Names that are not channels are returned in unknown.
// No names at all selects every channel.
func SelectChannels(names []string) (channels []Channel, unknown []string) {
	want := make(map[Channel]bool)
	blank := true
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		blank = false
		c, ok := ParseChannel(name)
		if !ok {
			unknown = append(unknown, strings.TrimSpace(name))
			continue
		}
		want[c] = true
	}
	if blank {
		return Channels, nil
	}

	for _, c := range Channels {
		if want[c] {
			channels = append(channels, c)
		}
	}
	return channels, unknown
}

// Classify decides what a filename stem (no directory, no extension) is.
// Every suffix is tested before a name can become a source, so derived maps
// and thumbnails are never fed back into generation.
func Classify(stem string) Classification {
	switch {
	case stem == "":
		return Unknown
	case strings.HasSuffix(stem, ThumbSuffix):
		return Thumbnail
	case strings.HasSuffix(stem, NormalSuffix),
		strings.HasSuffix(stem, MetalnessSuffix),
		strings.HasSuffix(stem, RoughnessSuffix):
		return DerivedChannel
	case strings.HasSuffix(stem, ColorSuffix):
		if stem == ColorSuffix {
			return Unknown
		}
		return AlreadyColorNamed
	default:
		return BaseColor
	}
}

// imageExts are the extensions the decoder set understands.
var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsImageExt reports whether ext (with dot, any case) is a decodable image extension.
func IsImageExt(ext string) bool {
	return imageExts[strings.ToLower(ext)]
}

// SplitName splits a path into its directory, stem and extension.
func SplitName(path string) (dir, stem, ext string) {
	dir = filepath.Dir(path)
	base := filepath.Base(path)
	ext = filepath.Ext(base)
	stem = strings.TrimSuffix(base, ext)
	return dir, stem, ext
}

// ClassifyPath classifies a file path. Files that are not images are Unknown.
func ClassifyPath(path string) Classification {
	_, stem, ext := SplitName(path)
	if !IsImageExt(ext) {
		return Unknown
	}
	return Classify(stem)
}

// BaseStem strips a trailing _Color suffix.
func BaseStem(stem string) string {
	return strings.TrimSuffix(stem, ColorSuffix)
}

// MaterialStem strips a trailing _Color or derived channel suffix, giving
// the name shared by a material's files.
func MaterialStem(stem string) string {
	for _, suffix := range []string{ColorSuffix, NormalSuffix, MetalnessSuffix, RoughnessSuffix} {
		if strings.HasSuffix(stem, suffix) {
			return strings.TrimSuffix(stem, suffix)
		}
	}
	return stem
}

// OutputPath concatenates base path, channel suffix and extension.
func OutputPath(base string, ch Channel, ext string) string {
	return base + ch.Suffix() + ext
}

// ColorPath returns the canonical _Color path for a base path. Unknown
// extensions fall back to .png.
func ColorPath(base, ext string) string {
	if !IsImageExt(ext) {
		ext = ".png"
	}
	return base + ColorSuffix + ext
}
