package playlist

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/grafov/m3u8"

	"shuttle/internal/logging"
	"shuttle/internal/services"
)

const (
	maxPlaylistBytes = 8 << 20
	playlistMagic    = "#EXTM3U"
)

// Request identifies the source to resolve and how to fetch it.
type Request struct {
	URL       string
	UserAgent string
	Headers   map[string]string
}

// Resolver turns a source URL into an ordered segment list.
type Resolver struct {
	client *http.Client
	logger *slog.Logger
}

// NewResolver builds a resolver. A nil client uses http.DefaultClient.
func NewResolver(client *http.Client, logger *slog.Logger) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{client: client, logger: logging.NewComponentLogger(logger, "playlist")}
}

// Resolve fetches the source. Master playlists are narrowed to their highest
// bandwidth variant; non-playlist bodies become a single-segment source.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Source, error) {
	base, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, services.Wrap(services.ErrResolution, "playlist", "parse url", fmt.Sprintf("invalid source %q", req.URL), err)
	}

	body, isPlaylist, err := r.fetch(ctx, base.String(), req)
	if err != nil {
		return nil, err
	}
	if !isPlaylist {
		r.logger.Debug("source is a single stream", logging.String("url", base.String()))
		return &Source{
			URL:      base.String(),
			Single:   true,
			Segments: []Segment{{Index: 0, URI: base.String()}},
		}, nil
	}

	decoded, kind, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return nil, services.Wrap(services.ErrResolution, "playlist", "decode", base.String(), err)
	}

	switch kind {
	case m3u8.MASTER:
		master, ok := decoded.(*m3u8.MasterPlaylist)
		if !ok {
			return nil, services.Wrap(services.ErrResolution, "playlist", "decode", "unexpected master playlist type", nil)
		}
		variant := HighestBandwidth(master.Variants)
		if variant == nil {
			return nil, services.Wrap(services.ErrResolution, "playlist", "select variant", "master playlist has no variants", nil)
		}
		variantURL, err := resolveReference(base, variant.URI)
		if err != nil {
			return nil, services.Wrap(services.ErrResolution, "playlist", "select variant", variant.URI, err)
		}
		r.logger.Debug("selected variant",
			logging.String("variant", variantURL.String()),
			logging.Int64("bandwidth", int64(variant.Bandwidth)),
		)
		media, err := r.fetchMedia(ctx, variantURL, req)
		if err != nil {
			return nil, err
		}
		src, err := buildSource(base.String(), variantURL, media)
		if err != nil {
			return nil, err
		}
		src.Bandwidth = variant.Bandwidth
		return src, nil
	case m3u8.MEDIA:
		media, ok := decoded.(*m3u8.MediaPlaylist)
		if !ok {
			return nil, services.Wrap(services.ErrResolution, "playlist", "decode", "unexpected media playlist type", nil)
		}
		return buildSource(base.String(), base, media)
	default:
		return nil, services.Wrap(services.ErrResolution, "playlist", "decode", "unknown playlist type", nil)
	}
}

func (r *Resolver) fetchMedia(ctx context.Context, target *url.URL, req Request) (*m3u8.MediaPlaylist, error) {
	body, isPlaylist, err := r.fetch(ctx, target.String(), req)
	if err != nil {
		return nil, err
	}
	if !isPlaylist {
		return nil, services.Wrap(services.ErrResolution, "playlist", "fetch variant", "variant is not a playlist", nil)
	}
	decoded, kind, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return nil, services.Wrap(services.ErrResolution, "playlist", "decode variant", target.String(), err)
	}
	media, ok := decoded.(*m3u8.MediaPlaylist)
	if kind != m3u8.MEDIA || !ok {
		return nil, services.Wrap(services.ErrResolution, "playlist", "decode variant", "nested master playlists are not supported", nil)
	}
	return media, nil
}

// fetch returns the body when it is a playlist. Non-playlist bodies are not read past the sniff window.
func (r *Resolver) fetch(ctx context.Context, target string, req Request) ([]byte, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, false, services.Wrap(services.ErrResolution, "playlist", "build request", target, err)
	}
	ApplyHeaders(httpReq, req.UserAgent, req.Headers)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, false, services.Wrap(services.ErrResolution, "playlist", "fetch", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, services.Wrap(services.ErrResolution, "playlist", "fetch", fmt.Sprintf("%s returned status %d", target, resp.StatusCode), nil)
	}

	reader := bufio.NewReaderSize(io.LimitReader(resp.Body, maxPlaylistBytes), 1024)
	if !looksLikePlaylist(reader) {
		return nil, false, nil
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, false, services.Wrap(services.ErrResolution, "playlist", "read", target, err)
	}
	return body, true, nil
}

func looksLikePlaylist(reader *bufio.Reader) bool {
	head, _ := reader.Peek(512)
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	head = bytes.TrimLeft(head, " \t\r\n")
	return bytes.HasPrefix(head, []byte(playlistMagic))
}

// ApplyHeaders sets the user agent and caller headers on req.
func ApplyHeaders(req *http.Request, userAgent string, headers map[string]string) {
	for key, value := range headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		req.Header.Set(key, value)
	}
	if ua := strings.TrimSpace(userAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
}

func resolveReference(base *url.URL, ref string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(parsed), nil
}
