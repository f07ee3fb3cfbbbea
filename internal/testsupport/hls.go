package testsupport

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// HLSServer serves a master playlist, a high and a low variant, and segment bodies.
// Segment behaviour (failures, blocking) is controllable per index.
type HLSServer struct {
	*httptest.Server

	segments [][]byte

	mu        sync.Mutex
	hits      map[int]int
	failFirst map[int]int
	failAll   map[int]bool
	gate      chan struct{}
}

// NewHLSServer starts a server for the given segment payloads and closes it on cleanup.
func NewHLSServer(t testing.TB, segments [][]byte) *HLSServer {
	t.Helper()

	s := &HLSServer{
		segments:  segments,
		hits:      make(map[int]int),
		failFirst: make(map[int]int),
		failAll:   make(map[int]bool),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/master.m3u8", s.handleMaster)
	mux.HandleFunc("/media.m3u8", s.handleMedia("seg"))
	mux.HandleFunc("/low.m3u8", s.handleMedia("low"))
	mux.HandleFunc("/seg/", s.handleSegment)
	mux.HandleFunc("/low/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("low-variant"))
	})
	mux.HandleFunc("/direct.ts", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(Concat(segments))
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(func() {
		s.Release()
		s.Close()
	})
	return s
}

// MediaURL is the media playlist address.
func (s *HLSServer) MediaURL() string { return s.URL + "/media.m3u8" }

// MasterURL is the master playlist address.
func (s *HLSServer) MasterURL() string { return s.URL + "/master.m3u8" }

// DirectURL serves the concatenated payload as a single non-playlist stream.
func (s *HLSServer) DirectURL() string { return s.URL + "/direct.ts" }

// Hits returns how many requests reached segment index.
func (s *HLSServer) Hits(index int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[index]
}

// TotalHits returns the request count across all segments.
func (s *HLSServer) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

// FailFirst makes the first n requests for index return 503.
func (s *HLSServer) FailFirst(index, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFirst[index] = n
}

// FailAlways makes every request for index return 503.
func (s *HLSServer) FailAlways(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll[index] = true
}

// Block holds segment responses until Release is called.
func (s *HLSServer) Block() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate == nil {
		s.gate = make(chan struct{})
	}
}

// Release lets blocked segment responses proceed.
func (s *HLSServer) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate != nil {
		close(s.gate)
		s.gate = nil
	}
}

func (s *HLSServer) handleMaster(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	fmt.Fprint(w, "#EXTM3U\n"+
		"#EXT-X-STREAM-INF:BANDWIDTH=500000,RESOLUTION=640x360\n"+
		"low.m3u8\n"+
		"#EXT-X-STREAM-INF:BANDWIDTH=2000000,RESOLUTION=1920x1080\n"+
		"media.m3u8\n")
}

func (s *HLSServer) handleMedia(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		var b strings.Builder
		b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:2\n#EXT-X-MEDIA-SEQUENCE:0\n")
		for i := range s.segments {
			fmt.Fprintf(&b, "#EXTINF:2.000,\n%s/%d.ts\n", prefix, i)
		}
		b.WriteString("#EXT-X-ENDLIST\n")
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		_, _ = w.Write([]byte(b.String()))
	}
}

func (s *HLSServer) handleSegment(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/seg/"), ".ts")
	index, err := strconv.Atoi(name)
	if err != nil || index < 0 || index >= len(s.segments) {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	s.hits[index]++
	fail := s.failAll[index]
	if !fail && s.failFirst[index] > 0 {
		s.failFirst[index]--
		fail = true
	}
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	if fail {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "video/mp2t")
	_, _ = w.Write(s.segments[index])
}
