package playlist

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/grafov/m3u8"

	"shuttle/internal/services"
)

// ByteRange limits a segment fetch to part of a resource.
type ByteRange struct {
	Offset int64
	Length int64
}

// Header renders the HTTP Range header value.
func (b ByteRange) Header() string {
	return fmt.Sprintf("bytes=%d-%d", b.Offset, b.Offset+b.Length-1)
}

// Segment is one fetchable unit. Index defines assembly order.
type Segment struct {
	Index     int
	URI       string
	Duration  float64
	ByteRange *ByteRange
}

// Source is a resolved stream: its ordered segments and where they came from.
type Source struct {
	URL         string
	PlaylistURL string
	Single      bool
	Bandwidth   uint32
	Live        bool
	Segments    []Segment
}

// TotalDuration sums segment durations in seconds.
func (s *Source) TotalDuration() float64 {
	if s == nil {
		return 0
	}
	var total float64
	for _, seg := range s.Segments {
		total += seg.Duration
	}
	return total
}

// HighestBandwidth returns the variant with the largest declared BANDWIDTH.
// Ties keep the first listed variant.
func HighestBandwidth(variants []*m3u8.Variant) *m3u8.Variant {
	var best *m3u8.Variant
	for _, v := range variants {
		if v == nil || strings.TrimSpace(v.URI) == "" {
			continue
		}
		if best == nil || v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	return best
}

func buildSource(origin string, playlistURL *url.URL, media *m3u8.MediaPlaylist) (*Source, error) {
	if media == nil {
		return nil, services.Wrap(services.ErrResolution, "playlist", "build", "empty media playlist", nil)
	}
	if media.Key != nil && isEncrypted(media.Key.Method) {
		return nil, services.Wrap(services.ErrResolution, "playlist", "build", fmt.Sprintf("encrypted playlists (%s) are not supported", media.Key.Method), nil)
	}

	src := &Source{
		URL:         origin,
		PlaylistURL: playlistURL.String(),
		Live:        !media.Closed,
	}
	for _, seg := range media.Segments {
		if seg == nil {
			continue
		}
		if seg.Key != nil && isEncrypted(seg.Key.Method) {
			return nil, services.Wrap(services.ErrResolution, "playlist", "build", fmt.Sprintf("encrypted segments (%s) are not supported", seg.Key.Method), nil)
		}
		abs, err := resolveReference(playlistURL, seg.URI)
		if err != nil {
			return nil, services.Wrap(services.ErrResolution, "playlist", "resolve segment", seg.URI, err)
		}
		segment := Segment{
			Index:    len(src.Segments),
			URI:      abs.String(),
			Duration: seg.Duration,
		}
		if seg.Limit > 0 {
			segment.ByteRange = &ByteRange{Offset: seg.Offset, Length: seg.Limit}
		}
		src.Segments = append(src.Segments, segment)
	}
	if len(src.Segments) == 0 {
		return nil, services.Wrap(services.ErrResolution, "playlist", "build", "playlist has no segments", nil)
	}
	return src, nil
}

func isEncrypted(method string) bool {
	method = strings.ToUpper(strings.TrimSpace(method))
	return method != "" && method != "NONE"
}
