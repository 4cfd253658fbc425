package planner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/soracast/soracast/internal/models"
	"github.com/soracast/soracast/internal/preset"
)

// SpecDeviation describes one clip whose video parameters differ from the
// preset majority.
type SpecDeviation struct {
	ClipID string
	Path   string
	Spec   models.VideoSpec
}

// SpecReport summarizes the video-parameter check for one preset. Concat with
// stream copy requires uniform parameters across all clips, so any deviation
// will glitch at splice points.
type SpecReport struct {
	PresetID   string
	Majority   models.VideoSpec
	Deviations []SpecDeviation
}

// Uniform reports whether every clip matched the majority spec.
func (r *SpecReport) Uniform() bool {
	return len(r.Deviations) == 0
}

// ValidateMotionSpecs probes every clip of every preset and checks that all
// clips within a preset share one video spec. Deviations are logged with a
// suggested re-encode command but never fail startup.
func ValidateMotionSpecs(ctx context.Context, presets *preset.Resolver, prober MediaProber, logger *slog.Logger) ([]SpecReport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var reports []SpecReport
	for _, pr := range presets.All() {
		report, err := validatePreset(ctx, pr, prober)
		if err != nil {
			return nil, fmt.Errorf("validating preset %q: %w", pr.ID, err)
		}
		if !report.Uniform() {
			for _, d := range report.Deviations {
				logger.Warn("motion clip deviates from preset video spec",
					slog.String("preset", report.PresetID),
					slog.String("clip", d.ClipID),
					slog.String("spec", d.Spec.String()),
					slog.String("expected", report.Majority.String()),
					slog.String("suggestion", reencodeCommand(d.Path, report.Majority)),
				)
			}
		}
		reports = append(reports, *report)
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].PresetID < reports[j].PresetID })
	return reports, nil
}

func validatePreset(ctx context.Context, pr *models.Preset, prober MediaProber) (*SpecReport, error) {
	clips := pr.AllClips()

	type group struct {
		spec  models.VideoSpec
		count int
	}
	var groups []group
	specs := make(map[string]models.VideoSpec, len(clips))

	for _, clip := range clips {
		spec, err := prober.VideoSpec(ctx, clip.Path)
		if err != nil {
			return nil, fmt.Errorf("clip %q: %w", clip.ID, err)
		}
		specs[clip.ID] = spec

		matched := false
		for i := range groups {
			if groups[i].spec.Equal(spec) {
				groups[i].count++
				matched = true
				break
			}
		}
		if !matched {
			groups = append(groups, group{spec: spec, count: 1})
		}
	}

	report := &SpecReport{PresetID: pr.ID}
	if len(groups) == 0 {
		return report, nil
	}

	majority := groups[0]
	for _, g := range groups[1:] {
		if g.count > majority.count {
			majority = g
		}
	}
	report.Majority = majority.spec

	for _, clip := range clips {
		if spec := specs[clip.ID]; !spec.Equal(majority.spec) {
			report.Deviations = append(report.Deviations, SpecDeviation{
				ClipID: clip.ID,
				Path:   clip.Path,
				Spec:   spec,
			})
		}
	}
	sort.Slice(report.Deviations, func(i, j int) bool {
		return report.Deviations[i].ClipID < report.Deviations[j].ClipID
	})

	return report, nil
}

// reencodeCommand renders an ffmpeg invocation that would bring path in line
// with the majority spec.
func reencodeCommand(path string, spec models.VideoSpec) string {
	return fmt.Sprintf("ffmpeg -i %q -vf scale=%d:%d,fps=%g -c:v %s -pix_fmt %s <output>",
		path, spec.Width, spec.Height, spec.Framerate, spec.Codec, spec.PixFmt)
}
