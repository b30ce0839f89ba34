package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsPlaylistURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://radio.example.com/lounge130.pls", true},
		{"http://example.com/list.M3U", true},
		{"http://example.com/live.m3u8?token=1", true},
		{"http://example.com/stream.mp3", false},
		{"http://example.com/pls", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := IsPlaylistURL(tt.url); got != tt.want {
				t.Errorf("IsPlaylistURL(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestResolvePlaylistPLS(t *testing.T) {
	plsContent := `[playlist]
NumberOfEntries=2
File1=http://stream1.example.com/radio.mp3
Title1=Stream 1
File2=http://stream2.example.com/radio.mp3
Title2=Stream 2
`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(plsContent))
	}))
	defer server.Close()

	c := NewClient(Options{})
	got, err := c.ResolvePlaylist(context.Background(), server.URL+"/radio.pls")
	if err != nil {
		t.Fatalf("ResolvePlaylist() error = %v", err)
	}
	if got != "http://stream1.example.com/radio.mp3" {
		t.Errorf("ResolvePlaylist() = %q, want first entry", got)
	}
}

func TestResolvePlaylistM3U(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("#EXTM3U\n#EXTINF:-1,Radio\n\nhttp://stream.example.com/live.mp3\n"))
	}))
	defer server.Close()

	c := NewClient(Options{})
	got, err := c.ResolvePlaylist(context.Background(), server.URL+"/radio.m3u")
	if err != nil {
		t.Fatalf("ResolvePlaylist() error = %v", err)
	}
	if got != "http://stream.example.com/live.mp3" {
		t.Errorf("ResolvePlaylist() = %q", got)
	}
}

func TestResolvePlaylistEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("[playlist]\nNumberOfEntries=0\n"))
	}))
	defer server.Close()

	c := NewClient(Options{})
	if _, err := c.ResolvePlaylist(context.Background(), server.URL+"/empty.pls"); err == nil {
		t.Error("Expected error for empty PLS file")
	}
}

func TestResolvePlaylistNotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	c := NewClient(Options{})
	_, err := c.ResolvePlaylist(context.Background(), server.URL+"/missing.pls")

	te, ok := err.(*TransportError)
	if !ok {
		t.Fatalf("error = %v, want *TransportError", err)
	}
	if te.Kind != NotFound {
		t.Errorf("Kind = %v, want NotFound", te.Kind)
	}
}

func TestResolvePlaylistPassThrough(t *testing.T) {
	c := NewClient(Options{})
	u := "http://example.com/stream.mp3"

	got, err := c.ResolvePlaylist(context.Background(), u)
	if err != nil {
		t.Fatalf("ResolvePlaylist() error = %v", err)
	}
	if got != u {
		t.Errorf("ResolvePlaylist() = %q, want unchanged %q", got, u)
	}
}

func TestResolvePlaylistRelativeEntries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/lists/radio.pls", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("[playlist]\nFile1=streams/hi.mp3\n"))
	})
	mux.HandleFunc("/lists/radio.m3u", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("#EXTM3U\n/live.mp3\n"))
	})
	mux.HandleFunc("/old/radio.pls", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new/radio.pls", http.StatusFound)
	})
	mux.HandleFunc("/new/radio.pls", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("[playlist]\nFile1=hi.mp3\n"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	tests := []struct {
		name     string
		playlist string
		want     string
	}{
		{"pls relative path", "/lists/radio.pls", "/lists/streams/hi.mp3"},
		{"m3u absolute path", "/lists/radio.m3u", "/live.mp3"},
		{"after redirect", "/old/radio.pls", "/new/hi.mp3"},
	}

	c := NewClient(Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ResolvePlaylist(context.Background(), server.URL+tt.playlist)
			if err != nil {
				t.Fatalf("ResolvePlaylist() error = %v", err)
			}
			if got != server.URL+tt.want {
				t.Errorf("ResolvePlaylist() = %q, want %q", got, server.URL+tt.want)
			}
		})
	}
}
