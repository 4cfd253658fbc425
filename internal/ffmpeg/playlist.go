package ffmpeg

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/renameio/v2"
)

// PlaylistHeader is the concat-demuxer manifest header.
const PlaylistHeader = "ffconcat version 1.0"

// EscapePlaylistPath escapes single quotes for a concat-demuxer file line.
// The demuxer uses shell-style quoting: ' closes the string, \' emits a
// literal quote, ' reopens it.
func EscapePlaylistPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

// FormatPlaylist renders a concat-demuxer manifest for the given entries.
func FormatPlaylist(entries []string) string {
	var b strings.Builder
	b.WriteString(PlaylistHeader)
	b.WriteByte('\n')
	for _, e := range entries {
		fmt.Fprintf(&b, "file '%s'\n", EscapePlaylistPath(e))
	}
	return b.String()
}

// WritePlaylist writes a concat-demuxer manifest to path. The write is
// atomic (write-to-temp, fsync, rename) so a concurrent reader never
// observes a partial manifest.
func WritePlaylist(path string, entries []string) error {
	if err := renameio.WriteFile(path, []byte(FormatPlaylist(entries)), 0640); err != nil {
		return fmt.Errorf("writing playlist %s: %w", path, err)
	}
	return nil
}

// writeTempPlaylist writes a manifest to a throwaway file inside dir and
// returns its path. Used for one-shot concat invocations where atomicity
// does not matter.
func writeTempPlaylist(dir, name string, entries []string) (string, error) {
	path := dir + string(os.PathSeparator) + name
	if err := os.WriteFile(path, []byte(FormatPlaylist(entries)), 0640); err != nil {
		return "", fmt.Errorf("writing playlist %s: %w", path, err)
	}
	return path, nil
}
