// Package probe extracts media metadata by running ffprobe and parsing
// its JSON output.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clipforge/clipforge/internal/mediatool"
	"github.com/clipforge/clipforge/internal/video"
)

// Extractor probes media files for stream metadata.
type Extractor struct {
	Bin    string // ffprobe binary path
	Runner mediatool.Runner
	Logger zerolog.Logger
}

// Extract runs ffprobe against path and returns derived media metadata.
// On tool failure or unparsable output it returns empty metadata rather
// than an error: missing metadata must not abort the pipeline, and zero
// values mean "not extracted".
func (e *Extractor) Extract(ctx context.Context, path string) video.Metadata {
	var md video.Metadata

	res, err := e.Runner.Run(ctx, e.bin(), []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	})
	if err != nil {
		e.Logger.Warn().Err(err).Str("path", path).Msg("ffprobe failed, skipping metadata")
		return md
	}

	parsed, err := ParseJSON(res.Stdout)
	if err != nil {
		e.Logger.Warn().Err(err).Str("path", path).Msg("ffprobe output unparsable, skipping metadata")
		return md
	}

	md.Duration = parsed.Format.Duration
	md.Bitrate = parsed.Format.BitRate
	if md.Bitrate == 0 && parsed.Format.Size > 0 && md.Duration > 0 {
		// Some containers omit bit_rate; derive it from size and duration.
		md.Bitrate = int64(float64(parsed.Format.Size) * 8 / md.Duration)
	}
	if v := parsed.FirstVideo; v != nil {
		md.Width = v.Width
		md.Height = v.Height
		md.Codec = v.Codec
		md.FrameRate = ParseFrameRate(v.AvgFrameRate)
		md.AspectRatio = v.DisplayAspectRatio
		if md.AspectRatio == "" && v.Width > 0 && v.Height > 0 {
			md.AspectRatio = fmt.Sprintf("%d:%d", v.Width, v.Height)
		}
	}
	md.HasAudio = parsed.HasAudio
	return md
}

func (e *Extractor) bin() string {
	if e.Bin != "" {
		return e.Bin
	}
	return "ffprobe"
}

// ParseFrameRate converts an ffprobe rational string such as
// "30000/1001" into frames per second by numeric division. Arbitrary
// expressions are never evaluated.
func ParseFrameRate(r string) float64 {
	r = strings.TrimSpace(r)
	if r == "" || r == "0/0" {
		return 0
	}
	num, den, found := strings.Cut(r, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// Result is the parsed output of a single ffprobe call. FirstVideo is
// the first video-typed stream (nil if none).
type Result struct {
	Format     FormatInfo
	FirstVideo *VideoStream
	HasAudio   bool
}

// FormatInfo holds container-level metadata from ffprobe's format section.
type FormatInfo struct {
	Duration float64
	Size     int64
	BitRate  int64
}

// VideoStream holds the parsed properties of a single video stream.
type VideoStream struct {
	Codec              string
	Width              int
	Height             int
	AvgFrameRate       string
	DisplayAspectRatio string
}

// ParseJSON converts raw ffprobe JSON output into a Result. Exported for
// testing without a real ffprobe binary.
func ParseJSON(data []byte) (*Result, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}

	out := &Result{
		Format: FormatInfo{
			Duration: parseFloat(raw.Format.Duration),
			Size:     parseInt64(raw.Format.Size),
			BitRate:  parseInt64(raw.Format.BitRate),
		},
	}
	for i := range raw.Streams {
		s := &raw.Streams[i]
		switch s.CodecType {
		case "video":
			if out.FirstVideo == nil {
				out.FirstVideo = &VideoStream{
					Codec:              s.CodecName,
					Width:              s.Width,
					Height:             s.Height,
					AvgFrameRate:       s.AvgFrameRate,
					DisplayAspectRatio: s.DisplayAspectRatio,
				}
			}
		case "audio":
			out.HasAudio = true
		}
	}
	return out, nil
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
	BitRate  string `json:"bit_rate"`
}

type ffprobeStream struct {
	CodecName          string `json:"codec_name"`
	CodecType          string `json:"codec_type"`
	Width              int    `json:"width"`
	Height             int    `json:"height"`
	AvgFrameRate       string `json:"avg_frame_rate"`
	DisplayAspectRatio string `json:"display_aspect_ratio"`
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt64(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
