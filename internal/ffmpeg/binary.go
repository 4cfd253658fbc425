// Package ffmpeg wraps the ffmpeg/ffprobe binaries behind a stateless facade
// for probing, concatenating, mixing, trimming, and composing media files.
package ffmpeg

import (
	"fmt"
	"os"
	"os/exec"
)

// Binaries holds the resolved tool paths.
type Binaries struct {
	FFmpegPath  string `json:"ffmpeg_path"`
	FFprobePath string `json:"ffprobe_path"`
}

// ResolveBinaries locates ffmpeg and ffprobe. Explicitly configured paths win;
// otherwise the FFMPEG_BIN/FFPROBE_BIN environment variables, the current
// directory, and finally PATH are searched.
func ResolveBinaries(ffmpegPath, ffprobePath string) (Binaries, error) {
	b := Binaries{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}

	if b.FFmpegPath == "" {
		path, err := findBinary("ffmpeg", "FFMPEG_BIN")
		if err != nil {
			return Binaries{}, fmt.Errorf("ffmpeg not found: %w", err)
		}
		b.FFmpegPath = path
	}

	if b.FFprobePath == "" {
		path, err := findBinary("ffprobe", "FFPROBE_BIN")
		if err != nil {
			return Binaries{}, fmt.Errorf("ffprobe not found: %w", err)
		}
		b.FFprobePath = path
	}

	return b, nil
}

// findBinary searches for an executable binary by name.
// Search order:
//  1. Environment variable (if envVar is non-empty and set)
//  2. ./name (current directory, useful for development)
//  3. name on PATH (via exec.LookPath)
func findBinary(name string, envVar string) (string, error) {
	if envVar != "" {
		if envPath := os.Getenv(envVar); envPath != "" {
			if isExecutable(envPath) {
				return envPath, nil
			}
		}
	}

	localPath := "./" + name
	if isExecutable(localPath) {
		return localPath, nil
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("binary %s not found", name)
}

// isExecutable checks if a file exists and is executable by the current user.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}
