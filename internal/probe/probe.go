// Package probe wraps the command-line media tooling (ffmpeg/ffprobe) used
// to derive a thumbnail and technical metadata from an uploaded source file.
package probe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/avfoundry/proxa/internal/verr"
	"github.com/avfoundry/proxa/pkg/logger"
	"github.com/floostack/transcoder/ffmpeg"
)

var log = logger.Get("Probe")

type (
	// Metadata is the technical information extracted from a source file.
	Metadata struct {
		DurationSeconds float64
		Width           int
		Height          int
		Codec           string
	}

	// MediaProbe produces a thumbnail image and a metadata record for a
	// local media file. Both operations fail with a Processing error when
	// the tool fails or the input is unreadable.
	MediaProbe interface {
		ExtractThumbnail(ctx context.Context, path string) (string, error)
		ExtractMetadata(ctx context.Context, path string) (*Metadata, error)
	}

	Config struct {
		FfmpegBinPath  string `yaml:"ffmpeg_binary" env:"FFMPEG_BINARY" env-default:"ffmpeg"`
		FfprobeBinPath string `yaml:"ffprobe_binary" env:"FFPROBE_BINARY" env-default:"ffprobe"`
		ThumbnailDir   string `yaml:"thumbnail_dir" env:"THUMBNAIL_DIR" env-default:""`
	}

	ffmpegProbe struct {
		config Config
	}
)

// New validates that the configured ffmpeg/ffprobe binaries are resolvable
// before returning a probe. A missing binary is a configuration fault, not a
// per-request one.
func New(config Config) (*ffmpegProbe, error) {
	for _, bin := range []string{config.FfmpegBinPath, config.FfprobeBinPath} {
		if _, err := exec.LookPath(bin); err != nil {
			return nil, verr.Wrapf(verr.Configuration, err, "media tool binary '%s' could not be resolved", bin)
		}
	}

	return &ffmpegProbe{config: config}, nil
}

// ExtractThumbnail captures a single frame at the one second mark, scaled to
// a 320px-wide image, and returns the path of the written thumbnail.
func (p *ffmpegProbe) ExtractThumbnail(ctx context.Context, path string) (string, error) {
	outDir := p.config.ThumbnailDir
	if outDir == "" {
		outDir = os.TempDir()
	}
	if err := os.MkdirAll(outDir, os.ModeDir|os.ModePerm); err != nil {
		return "", verr.Wrapf(verr.Processing, err, "failed to create thumbnail output dir '%s'", outDir)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	outPath := filepath.Join(outDir, fmt.Sprintf("%s-thumb.jpg", base))

	cmd := exec.CommandContext(ctx, p.config.FfmpegBinPath,
		"-y",
		"-i", path,
		"-ss", "00:00:01.000",
		"-vframes", "1",
		"-vf", "scale=320:-1",
		"-q:v", "2",
		outPath,
	)

	log.Debugf("Extracting thumbnail for %s -> %s\n", path, outPath)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", verr.Wrapf(verr.Processing, err, "thumbnail extraction failed for '%s': %s", path, string(output))
	}

	return outPath, nil
}

// ExtractMetadata probes the file with ffprobe and returns the duration,
// frame size and codec of the first video stream.
func (p *ffmpegProbe) ExtractMetadata(_ context.Context, path string) (*Metadata, error) {
	cfg := &ffmpeg.Config{
		FfmpegBinPath:  p.config.FfmpegBinPath,
		FfprobeBinPath: p.config.FfprobeBinPath,
	}

	probed, err := ffmpeg.New(cfg).Input(path).GetMetadata()
	if err != nil {
		return nil, verr.Wrapf(verr.Processing, err, "failed to extract file metadata using ffprobe for '%s'", path)
	}

	meta := &Metadata{}
	if duration, err := strconv.ParseFloat(probed.GetFormat().GetDuration(), 64); err == nil {
		meta.DurationSeconds = duration
	}

	for _, stream := range probed.GetStreams() {
		if stream.GetCodecType() != "video" {
			continue
		}

		meta.Width = stream.GetWidth()
		meta.Height = stream.GetHeight()
		meta.Codec = stream.GetCodecName()
		break
	}

	if meta.Width == 0 || meta.Height == 0 {
		return nil, verr.Newf(verr.Processing, "no video stream found in '%s'", path)
	}

	return meta, nil
}
