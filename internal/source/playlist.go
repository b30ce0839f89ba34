package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog/log"
)

// IsPlaylistURL reports whether u points at a .pls or .m3u playlist.
func IsPlaylistURL(u string) bool {
	switch playlistKind(u) {
	case "pls", "m3u":
		return true
	}
	return false
}

func playlistKind(u string) string {
	p := u
	if parsed, err := url.Parse(u); err == nil {
		p = parsed.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".pls":
		return "pls"
	case ".m3u", ".m3u8":
		return "m3u"
	}
	return ""
}

// ResolvePlaylist returns the first stream URL listed in a .pls or .m3u
// playlist. Other URLs are returned unchanged.
func (c *Client) ResolvePlaylist(ctx context.Context, playlistURL string) (string, error) {
	kind := playlistKind(playlistURL)
	if kind == "" {
		return playlistURL, nil
	}

	resp, err := c.http.R().SetContext(ctx).Get(playlistURL)
	if err != nil {
		return "", classify(playlistURL, err)
	}
	if !resp.IsSuccess() {
		return "", statusError(playlistURL, resp.StatusCode(), resp.Status())
	}

	var urls []string
	if kind == "pls" {
		urls, err = parsePLS(resp.Body())
	} else {
		urls, err = parseM3U(resp.Body())
	}
	if err != nil {
		return "", err
	}

	log.Debug().Msgf("Found %d stream URLs in playlist", len(urls))

	base := resp.RawResponse.Request.URL
	return resolveEntry(base, urls[0])
}

// resolveEntry makes a playlist entry absolute against the URL the playlist
// was served from, so relative entries work.
func resolveEntry(base *url.URL, entry string) (string, error) {
	ref, err := url.Parse(entry)
	if err != nil {
		return "", fmt.Errorf("invalid playlist entry %q: %w", entry, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func parsePLS(data []byte) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "File") && strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if u := strings.TrimSpace(parts[1]); u != "" {
				urls = append(urls, u)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading PLS file: %w", err)
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("no valid stream URL found in PLS file")
	}
	return urls, nil
}

func parseM3U(data []byte) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading M3U file: %w", err)
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("no valid stream URL found in M3U file")
	}
	return urls, nil
}
