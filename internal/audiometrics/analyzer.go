package audiometrics

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"call-audit-go/internal/speakers"
	"call-audit-go/internal/types"
)

// Metric keys emitted for every call. The set is stable regardless of which
// sub-measurements succeed, so downstream consumers can rely on the shape.
const (
	KeyLUFS            = "lufs"
	KeyRMSAvgDB        = "rms_avg_db"
	KeyRMSPeakDB       = "rms_peak_db"
	KeySilenceCount    = "silence_count"
	KeySilenceTotalSec = "silence_total_sec"
	KeyAgentTalkRatio  = "agent_talk_ratio"
	KeyOverlapRatio    = "overlap_ratio"
	KeyAvgLatencySec   = "avg_response_latency_sec"
)

// MetricKeys returns every key present in an analyzer result, in a fixed order.
func MetricKeys() []string {
	return []string{
		KeyLUFS, KeyRMSAvgDB, KeyRMSPeakDB,
		KeySilenceCount, KeySilenceTotalSec,
		KeyAgentTalkRatio, KeyOverlapRatio, KeyAvgLatencySec,
	}
}

var (
	lufsRe         = regexp.MustCompile(`I:\s*(-?\d+(?:\.\d+)?)\s*LUFS`)
	meanVolumeRe   = regexp.MustCompile(`mean_volume:\s*(-?\d+(?:\.\d+)?)\s*dB`)
	maxVolumeRe    = regexp.MustCompile(`max_volume:\s*(-?\d+(?:\.\d+)?)\s*dB`)
	silenceStartRe = regexp.MustCompile(`silence_start:\s*(-?\d+(?:\.\d+)?)`)
	silenceEndRe   = regexp.MustCompile(`silence_end:\s*(-?\d+(?:\.\d+)?)`)
)

// Analyzer runs the signal-analysis tool against the raw audio and derives
// conversation metrics from transcript segments. Every sub-measurement is
// isolated: a failure degrades to its default value, never to a stage error.
type Analyzer struct {
	ffmpeg  string
	minGap  time.Duration
	noiseDB float64
	runner  commandRunner
	log     *logrus.Entry
}

func NewAnalyzer(ffmpegPath string, minGap time.Duration, noiseDB float64, log *logrus.Entry) *Analyzer {
	return &Analyzer{
		ffmpeg:  ffmpegPath,
		minGap:  minGap,
		noiseDB: noiseDB,
		runner:  &execRunner{},
		log:     log,
	}
}

// Analyze never fails; the worst case is a metrics map full of defaults.
func (a *Analyzer) Analyze(ctx context.Context, audioPath string, tr types.Transcript) types.AudioMetrics {
	values := map[string]float64{}

	values[KeyLUFS] = a.measureLoudness(ctx, audioPath)

	avg, peak := a.measureRMS(ctx, audioPath)
	values[KeyRMSAvgDB] = avg
	values[KeyRMSPeakDB] = peak

	silences := a.measureSilences(ctx, audioPath)
	values[KeySilenceCount] = float64(len(silences))
	total := 0.0
	for _, s := range silences {
		total += s.End - s.Start
	}
	values[KeySilenceTotalSec] = total

	values[KeyAgentTalkRatio] = AgentTalkRatio(tr)
	values[KeyOverlapRatio] = OverlapRatio(tr)
	values[KeyAvgLatencySec] = AvgResponseLatency(tr)

	a.log.WithFields(logrus.Fields{
		"lufs":     values[KeyLUFS],
		"silences": len(silences),
	}).Info("audio metrics computed")

	return types.AudioMetrics{Values: values, Silences: silences}
}

// measureLoudness parses the integrated loudness line from ebur128 output.
func (a *Analyzer) measureLoudness(ctx context.Context, audioPath string) float64 {
	out, err := a.runFilter(ctx, audioPath, "ebur128")
	if err != nil {
		a.log.WithError(err).Warn("loudness measurement failed, defaulting to 0.0")
		return 0.0
	}
	m := lufsRe.FindStringSubmatch(out)
	if m == nil {
		a.log.Warn("no LUFS line in ebur128 output, defaulting to 0.0")
		return 0.0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0.0
	}
	return v
}

func (a *Analyzer) measureRMS(ctx context.Context, audioPath string) (avg, peak float64) {
	out, err := a.runFilter(ctx, audioPath, "volumedetect")
	if err != nil {
		a.log.WithError(err).Warn("rms measurement failed, defaulting to {0.0, 0.0}")
		return 0.0, 0.0
	}
	if m := meanVolumeRe.FindStringSubmatch(out); m != nil {
		avg, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := maxVolumeRe.FindStringSubmatch(out); m != nil {
		peak, _ = strconv.ParseFloat(m[1], 64)
	}
	return avg, peak
}

func (a *Analyzer) measureSilences(ctx context.Context, audioPath string) []types.Interval {
	filter := fmt.Sprintf("silencedetect=noise=%gdB:d=%g", a.noiseDB, a.minGap.Seconds())
	out, err := a.runFilter(ctx, audioPath, filter)
	if err != nil {
		a.log.WithError(err).Warn("silence detection failed, defaulting to none")
		return nil
	}

	starts := silenceStartRe.FindAllStringSubmatch(out, -1)
	ends := silenceEndRe.FindAllStringSubmatch(out, -1)
	var silences []types.Interval
	for i := 0; i < len(starts) && i < len(ends); i++ {
		start, err1 := strconv.ParseFloat(starts[i][1], 64)
		end, err2 := strconv.ParseFloat(ends[i][1], 64)
		if err1 != nil || err2 != nil || end < start {
			continue
		}
		silences = append(silences, types.Interval{Start: start, End: end})
	}
	return silences
}

// runFilter feeds the file through one ffmpeg audio filter and returns the
// combined output. The filters used here report on stderr.
func (a *Analyzer) runFilter(ctx context.Context, audioPath, filter string) (string, error) {
	args := []string{"-hide_banner", "-nostats", "-i", audioPath, "-af", filter, "-f", "null", "-"}
	res, err := a.runner.Run(ctx, a.ffmpeg, args...)
	if err != nil {
		return "", fmt.Errorf("%s %v (exit %d): %w", a.ffmpeg, args, res.ExitCode, err)
	}
	return res.Stdout + res.Stderr, nil
}

// AgentTalkRatio is agent speech duration over total call duration, 0 when the
// call has no duration or no segments.
func AgentTalkRatio(tr types.Transcript) float64 {
	if tr.Duration <= 0 || len(tr.Segments) == 0 {
		return 0
	}
	agent := 0.0
	for _, seg := range speakers.Label(tr.Segments) {
		if seg.Speaker == speakers.Agent && seg.End > seg.Start {
			agent += seg.End - seg.Start
		}
	}
	ratio := agent / tr.Duration
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

// OverlapRatio stays 0.0 until diarization provides real per-speaker timing.
func OverlapRatio(types.Transcript) float64 {
	return 0.0
}

// AvgResponseLatency is the mean positive gap between consecutive segments
// spoken by different speakers.
func AvgResponseLatency(tr types.Transcript) float64 {
	segs := speakers.Label(tr.Segments)
	sum := 0.0
	n := 0
	for i := 1; i < len(segs); i++ {
		if segs[i].Speaker == segs[i-1].Speaker {
			continue
		}
		gap := segs[i].Start - segs[i-1].End
		if gap > 0 {
			sum += gap
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
