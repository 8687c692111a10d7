// Package postprocess runs the catalog's optional ffmpeg step over raw
// provider output, e.g. turning an MP4 frame sequence into a distributable
// GIF. It knows nothing about payment or caching.
package postprocess

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/starkbot-labs/media-gateway/internal/catalog"
)

type Transcoder struct {
	timeout time.Duration
	log     *logrus.Entry
}

func NewTranscoder(logger *logrus.Logger) *Transcoder {
	return &Transcoder{
		timeout: 60 * time.Second,
		log:     logger.WithField("component", "transcoder"),
	}
}

// Apply runs the endpoint's post-process step, if any. Temporary files live
// in a per-call directory that is removed on every exit path.
func (t *Transcoder) Apply(ctx context.Context, step *catalog.PostProcess, name string, input []byte, outputExt string) ([]byte, error) {
	if step == nil {
		return input, nil
	}

	dir, err := os.MkdirTemp("", "transcode-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, name+"."+step.InputExtension)
	outPath := filepath.Join(dir, name+"."+outputExt)

	if err := os.WriteFile(inPath, input, 0600); err != nil {
		return nil, fmt.Errorf("write temp input: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	args := commandArgs(step, inPath, outPath)
	start := time.Now()

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.log.WithFields(logrus.Fields{
			"error":  err,
			"output": truncate(string(out), 2048),
		}).Error("ffmpeg transcode failed")
		return nil, fmt.Errorf("ffmpeg transcode failed: %w", err)
	}

	result, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read ffmpeg output: %w", err)
	}

	t.log.WithFields(logrus.Fields{
		"duration":  time.Since(start),
		"out_bytes": len(result),
	}).Debug("Transcode complete")
	return result, nil
}

func commandArgs(step *catalog.PostProcess, inPath, outPath string) []string {
	args := []string{"-i", inPath}
	args = append(args, step.FFmpegArgs...)
	args = append(args, "-y", outPath)
	return args
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
