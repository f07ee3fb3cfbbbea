package download

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"os"

	"shuttle/internal/playlist"
)

// NewHTTPClient returns a client for segment fetches. Timeouts are applied
// per request through the context.
func NewHTTPClient(insecureTLS bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 32
	if insecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &http.Client{Transport: transport}
}

// fetch downloads one attempt of item into a temp file and renames it into
// place on success. Single streams have no per-request timeout.
func (e *Engine) fetch(ctx context.Context, item *workItem) error {
	reqCtx := ctx
	if !e.isSingle() && e.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, e.opts.RequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, item.seg.URI, nil)
	if err != nil {
		return &SegmentFetchError{Index: item.seg.Index, URI: item.seg.URI, Err: err}
	}
	playlist.ApplyHeaders(req, e.req.UserAgent, e.req.Headers)
	if br := item.seg.ByteRange; br != nil {
		req.Header.Set("Range", br.Header())
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return &SegmentFetchError{Index: item.seg.Index, URI: item.seg.URI, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &SegmentFetchError{Index: item.seg.Index, URI: item.seg.URI, StatusCode: resp.StatusCode}
	}
	if e.isSingle() && resp.ContentLength > 0 {
		e.mu.Lock()
		e.streamLength = resp.ContentLength
		e.mu.Unlock()
	}

	tmp := item.path + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return &SegmentFetchError{Index: item.seg.Index, URI: item.seg.URI, Err: err}
	}
	counter := &countingWriter{onWrite: e.onBytes}
	written, copyErr := io.Copy(io.MultiWriter(out, counter), resp.Body)
	closeErr := out.Close()

	fail := func(err error) error {
		e.speed.Discard(counter.n)
		_ = os.Remove(tmp)
		return &SegmentFetchError{Index: item.seg.Index, URI: item.seg.URI, Err: err}
	}
	switch {
	case copyErr != nil:
		return fail(copyErr)
	case closeErr != nil:
		return fail(closeErr)
	case written == 0:
		return fail(fmt.Errorf("empty response body"))
	}
	if err := os.Rename(tmp, item.path); err != nil {
		return fail(err)
	}
	return nil
}

func (e *Engine) isSingle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source != nil && e.source.Single
}

// onBytes feeds the speed tracker. Single streams also emit throttled
// progress since they complete only once.
func (e *Engine) onBytes(n int64) {
	e.speed.Add(n)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.source == nil || !e.source.Single || e.events == nil {
		return
	}
	now := e.now()
	if now.Sub(e.lastStreamTick) < e.opts.SpeedInterval {
		return
	}
	e.lastStreamTick = now
	e.events.emit(ProgressEvent{Progress: e.progressLocked()})
}

type countingWriter struct {
	n       int64
	onWrite func(int64)
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	if w.onWrite != nil {
		w.onWrite(int64(len(p)))
	}
	return len(p), nil
}
