// Package source fetches stream bytes over HTTP, optionally starting at a
// byte offset, and hands them to the decoder as a lazy sequence of chunks.
package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebovdev/streamplay/internal/cache"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	NetworkReadSize       = 4096
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 5 * time.Second
	MaxICYMetadataLength  = 4080
)

// UnknownLength is reported when the server does not announce a length.
const UnknownLength int64 = -1

// Options configures a Client.
type Options struct {
	UserAgent      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	// IcyMetadata asks Shoutcast/Icecast servers to interleave stream titles.
	IcyMetadata bool
	Cache       *cache.Cache
}

// Client opens audio streams by URL.
type Client struct {
	http        *resty.Client
	readTimeout time.Duration
	icyMetadata bool
	cache       *cache.Cache
}

// NewClient creates a Client. Zero timeouts fall back to defaults.
func NewClient(opts Options) *Client {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	httpClient := &http.Client{
		Timeout: 0, // No overall timeout, streams are long-lived
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: connectTimeout,
			}).DialContext,
			TLSHandshakeTimeout:   connectTimeout,
			ResponseHeaderTimeout: connectTimeout + readTimeout,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			DisableCompression:    true,
		},
	}

	rc := resty.NewWithClient(httpClient).
		SetLogger(restyLogger{}).
		SetRetryCount(0)
	if opts.UserAgent != "" {
		rc.SetHeader("User-Agent", opts.UserAgent)
	}

	return &Client{
		http:        rc,
		readTimeout: readTimeout,
		icyMetadata: opts.IcyMetadata,
		cache:       opts.Cache,
	}
}

// Open starts fetching url at the given byte offset. The returned stream
// reports the actual starting offset, which is 0 when the server ignored
// the range request.
func (c *Client) Open(ctx context.Context, url string, offset int64) (*Stream, error) {
	if offset < 0 {
		offset = 0
	}

	if s := c.openCached(url, offset); s != nil {
		return s, nil
	}

	log.Debug().Str("url", url).Int64("offset", offset).Msg("Connecting to stream")

	req := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)
	if c.icyMetadata {
		req.SetHeader("Icy-MetaData", "1")
	}
	if offset > 0 {
		req.SetHeader("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := req.Get(url)
	if err != nil {
		return nil, classify(url, err)
	}

	body := resp.RawBody()
	log.Debug().Msgf("Stream response status: %d, Content-Type: %s", resp.StatusCode(), resp.Header().Get("Content-Type"))

	s := &Stream{
		url:           url,
		body:          body,
		contentLength: UnknownLength,
		readTimeout:   c.readTimeout,
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		if n := resp.RawResponse.ContentLength; n >= 0 {
			s.contentLength = n
		}
	case http.StatusPartialContent:
		start, total, ok := parseContentRange(resp.Header().Get("Content-Range"))
		if !ok {
			body.Close()
			return nil, &TransportError{Kind: ConnectionFailed, URL: url, StatusCode: resp.StatusCode(),
				Cause: errors.New("malformed Content-Range header")}
		}
		s.offset = start
		s.contentLength = total
	default:
		body.Close()
		return nil, statusError(url, resp.StatusCode(), resp.Status())
	}

	if val := resp.Header().Get("icy-metaint"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			s.icyMetaint = n
			log.Debug().Msgf("ICY metadata interval: %d bytes", n)
		}
	}

	if c.cache != nil && s.offset == 0 && s.contentLength > 0 && s.icyMetaint == 0 {
		entry, err := c.cache.Create(url, s.contentLength)
		if err != nil {
			log.Debug().Err(err).Msg("Stream will not be cached")
		} else {
			s.entry = entry
		}
	}

	return s, nil
}

func (c *Client) openCached(url string, offset int64) *Stream {
	if c.cache == nil {
		return nil
	}
	f, size, ok := c.cache.Open(url)
	if !ok {
		return nil
	}
	if offset >= size {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil
	}
	log.Debug().Str("url", url).Int64("offset", offset).Msg("Serving stream from cache")
	return &Stream{
		url:           url,
		body:          f,
		contentLength: size,
		offset:        offset,
		readTimeout:   c.readTimeout,
	}
}

// parseContentRange parses "bytes start-end/total". A "*" total is reported
// as UnknownLength.
func parseContentRange(v string) (start, total int64, ok bool) {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "bytes ") {
		return 0, 0, false
	}
	rangePart, totalPart, found := strings.Cut(strings.TrimPrefix(v, "bytes "), "/")
	if !found {
		return 0, 0, false
	}
	startPart, _, found := strings.Cut(rangePart, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(startPart, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}
	if totalPart == "*" {
		return start, UnknownLength, true
	}
	total, err = strconv.ParseInt(totalPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return start, total, true
}

// Stream is one open fetch of a URL.
type Stream struct {
	url           string
	body          io.ReadCloser
	contentLength int64
	offset        int64
	icyMetaint    int
	readTimeout   time.Duration
	entry         *cache.Entry

	mu  sync.Mutex
	err error
}

// ContentLength returns the total length of the resource or UnknownLength.
func (s *Stream) ContentLength() int64 {
	return s.contentLength
}

// Offset returns the byte offset of the first byte the stream delivers.
func (s *Stream) Offset() int64 {
	return s.offset
}

// Err returns the transport error that ended Pump, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Pump copies audio bytes into w until the body ends, ctx is cancelled or a
// transport error occurs. Cancellation closes w without an error. ICY
// metadata is stripped and stream titles are passed to onTitle.
func (s *Stream) Pump(ctx context.Context, w *io.PipeWriter, onTitle func(string)) {
	var exitErr error
	completed := false

	defer func() {
		s.body.Close()
		s.finishCache(completed)
		if exitErr != nil {
			s.setErr(exitErr)
			w.CloseWithError(exitErr)
		} else {
			w.Close()
		}
		log.Debug().Msg("Network stream reader stopped")
	}()

	reportError := func(err error) {
		exitErr = classify(s.url, err)
		log.Error().Err(exitErr).Msg("Error reading audio data from stream")
	}

	chunkSize := int64(s.icyMetaint)
	if chunkSize == 0 {
		chunkSize = NetworkReadSize
	}

	var dst io.Writer = w
	if s.entry != nil {
		dst = &cacheTee{w: w, stream: s}
	}

	bodyReader := &contextReader{reader: s.body, ctx: ctx, timeout: s.readTimeout}
	bufReader := bufio.NewReader(bodyReader)

	for {
		if ctx.Err() != nil {
			log.Debug().Msg("Network reader context cancelled")
			return
		}

		_, err := io.CopyN(dst, bufReader, chunkSize)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			if errors.Is(err, io.EOF) {
				completed = true
				return
			}
			reportError(err)
			return
		}

		if s.icyMetaint > 0 {
			if err := s.readICYMetadata(bufReader, onTitle); err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					completed = errors.Is(err, io.EOF)
					return
				}
				reportError(fmt.Errorf("metadata read error: %w", err))
				return
			}
		}
	}
}

func (s *Stream) readICYMetadata(r *bufio.Reader, onTitle func(string)) error {
	metaLenByte, err := r.ReadByte()
	if err != nil {
		return err
	}

	metaLen := int(metaLenByte) * 16
	if metaLen == 0 {
		return nil
	}
	if metaLen > MaxICYMetadataLength {
		log.Warn().Int("metaLen", metaLen).Msg("ICY metadata too large, skipping")
		_, err := io.CopyN(io.Discard, r, int64(metaLen))
		return err
	}

	metaData := make([]byte, metaLen)
	if _, err := io.ReadFull(r, metaData); err != nil {
		return err
	}

	if title, ok := parseStreamTitle(string(metaData)); ok && onTitle != nil {
		onTitle(title)
	}
	return nil
}

func parseStreamTitle(meta string) (string, bool) {
	const marker = "StreamTitle='"
	start := strings.Index(meta, marker)
	if start < 0 {
		return "", false
	}
	start += len(marker)
	end := strings.Index(meta[start:], "';")
	if end < 0 {
		return "", false
	}
	return meta[start : start+end], true
}

func (s *Stream) finishCache(completed bool) {
	if s.entry == nil {
		return
	}
	entry := s.entry
	s.entry = nil

	if !completed || !entry.Complete() {
		entry.Abort()
		return
	}
	if err := entry.Commit(); err != nil {
		log.Debug().Err(err).Msg("Failed to commit stream to cache")
		return
	}
	log.Debug().Str("url", s.url).Msg("Stream cached")
}

// cacheTee mirrors audio bytes into the cache entry. A failing cache write
// drops the entry and never fails the stream.
type cacheTee struct {
	w      io.Writer
	stream *Stream
}

func (t *cacheTee) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if n > 0 && t.stream.entry != nil {
		if _, cerr := t.stream.entry.Write(p[:n]); cerr != nil {
			log.Debug().Err(cerr).Msg("Cache write failed, dropping entry")
			t.stream.entry.Abort()
			t.stream.entry = nil
		}
	}
	return n, err
}

// Relies on context cancellation to clean up the spawned read goroutine.
type contextReader struct {
	reader  io.Reader
	ctx     context.Context
	timeout time.Duration
}

func (cr *contextReader) Read(p []byte) (n int, err error) {
	select {
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	default:
	}

	timer := time.NewTimer(cr.timeout)
	defer timer.Stop()

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)

	go func() {
		n, err := cr.reader.Read(p)
		select {
		case done <- result{n, err}:
		case <-cr.ctx.Done():
		}
	}()

	select {
	case res := <-done:
		return res.n, res.err
	case <-timer.C:
		return 0, fmt.Errorf("%w: no data received for %v", errReadTimeout, cr.timeout)
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	}
}

// restyLogger routes resty's internal messages into zerolog.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) {
	log.Error().Msgf("resty: "+format, v...)
}

func (restyLogger) Warnf(format string, v ...interface{}) {
	log.Warn().Msgf("resty: "+format, v...)
}

func (restyLogger) Debugf(format string, v ...interface{}) {
	log.Debug().Msgf("resty: "+format, v...)
}
