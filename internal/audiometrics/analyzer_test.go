package audiometrics

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-audit-go/internal/types"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// fakeRunner returns canned output per audio filter, keyed by a substring of
// the -af argument.
type fakeRunner struct {
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeRunner) Run(_ context.Context, _ string, args ...string) (commandResult, error) {
	filter := ""
	for i, a := range args {
		if a == "-af" && i+1 < len(args) {
			filter = args[i+1]
		}
	}
	f.calls = append(f.calls, filter)
	for key, err := range f.errs {
		if strings.Contains(filter, key) {
			return commandResult{ExitCode: 1}, err
		}
	}
	for key, out := range f.outputs {
		if strings.Contains(filter, key) {
			return commandResult{Stderr: out}, nil
		}
	}
	return commandResult{}, nil
}

func newTestAnalyzer(runner commandRunner) *Analyzer {
	return &Analyzer{
		ffmpeg:  "ffmpeg",
		minGap:  400 * time.Millisecond,
		noiseDB: -30,
		runner:  runner,
		log:     testLog(),
	}
}

func TestAnalyzeParsesAllFamilies(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"ebur128": "  Integrated loudness:\n    I:         -18.3 LUFS\n    Threshold: -28.9 LUFS\n",
		"volumedetect": "[Parsed_volumedetect_0] mean_volume: -21.5 dB\n" +
			"[Parsed_volumedetect_0] max_volume: -3.2 dB\n",
		"silencedetect": "[silencedetect] silence_start: 4.25\n" +
			"[silencedetect] silence_end: 5.5 | silence_duration: 1.25\n" +
			"[silencedetect] silence_start: 20\n" +
			"[silencedetect] silence_end: 21.75 | silence_duration: 1.75\n",
	}}

	tr := types.Transcript{
		Duration: 30,
		Segments: []types.Segment{
			{Start: 0, End: 10, Speaker: "client"},
			{Start: 11, End: 25, Speaker: "agent"},
		},
	}

	am := newTestAnalyzer(runner).Analyze(context.Background(), "call.wav", tr)

	assert.InDelta(t, -18.3, am.Values[KeyLUFS], 1e-9)
	assert.InDelta(t, -21.5, am.Values[KeyRMSAvgDB], 1e-9)
	assert.InDelta(t, -3.2, am.Values[KeyRMSPeakDB], 1e-9)
	assert.Equal(t, 2.0, am.Values[KeySilenceCount])
	assert.InDelta(t, 3.0, am.Values[KeySilenceTotalSec], 1e-9)
	require.Len(t, am.Silences, 2)
	assert.Equal(t, types.Interval{Start: 4.25, End: 5.5}, am.Silences[0])

	// agent spoke 14s of a 30s call; one client->agent turn with a 1s gap
	assert.InDelta(t, 14.0/30.0, am.Values[KeyAgentTalkRatio], 1e-9)
	assert.Equal(t, 0.0, am.Values[KeyOverlapRatio])
	assert.InDelta(t, 1.0, am.Values[KeyAvgLatencySec], 1e-9)
}

func TestAnalyzeDegradesPerFamilyOnFailure(t *testing.T) {
	runner := &fakeRunner{
		outputs: map[string]string{
			"volumedetect": "mean_volume: -20.0 dB\nmax_volume: -5.0 dB\n",
		},
		errs: map[string]error{
			"ebur128":       errors.New("exit status 1"),
			"silencedetect": errors.New("exit status 1"),
		},
	}

	am := newTestAnalyzer(runner).Analyze(context.Background(), "call.wav", types.Transcript{})

	// Failed families default; the surviving family still reports.
	assert.Equal(t, 0.0, am.Values[KeyLUFS])
	assert.Equal(t, 0.0, am.Values[KeySilenceCount])
	assert.Empty(t, am.Silences)
	assert.InDelta(t, -20.0, am.Values[KeyRMSAvgDB], 1e-9)
	assert.InDelta(t, -5.0, am.Values[KeyRMSPeakDB], 1e-9)

	// The full key set is present regardless of failures.
	for _, key := range MetricKeys() {
		assert.Contains(t, am.Values, key)
	}
}

func TestAnalyzeUnparseableOutputDefaults(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"ebur128":       "garbage with no loudness line",
		"volumedetect":  "also garbage",
		"silencedetect": "",
	}}

	am := newTestAnalyzer(runner).Analyze(context.Background(), "call.wav", types.Transcript{})

	assert.Equal(t, 0.0, am.Values[KeyLUFS])
	assert.Equal(t, 0.0, am.Values[KeyRMSAvgDB])
	assert.Equal(t, 0.0, am.Values[KeyRMSPeakDB])
	assert.Equal(t, 0.0, am.Values[KeySilenceCount])
}

func TestAgentTalkRatio(t *testing.T) {
	t.Run("zero without duration", func(t *testing.T) {
		tr := types.Transcript{Segments: []types.Segment{{Start: 0, End: 5, Speaker: "agent"}}}
		assert.Equal(t, 0.0, AgentTalkRatio(tr))
	})

	t.Run("zero without segments", func(t *testing.T) {
		assert.Equal(t, 0.0, AgentTalkRatio(types.Transcript{Duration: 60}))
	})

	t.Run("clamped to one", func(t *testing.T) {
		tr := types.Transcript{
			Duration: 10,
			Segments: []types.Segment{{Start: 0, End: 25, Speaker: "agent"}},
		}
		assert.Equal(t, 1.0, AgentTalkRatio(tr))
	})

	t.Run("untagged segments use alternation", func(t *testing.T) {
		// client 0-10, agent 10-20 by the alternating heuristic
		tr := types.Transcript{
			Duration: 20,
			Segments: []types.Segment{
				{Start: 0, End: 10},
				{Start: 10, End: 20},
			},
		}
		assert.InDelta(t, 0.5, AgentTalkRatio(tr), 1e-9)
	})
}

func TestAvgResponseLatency(t *testing.T) {
	t.Run("zero without turns", func(t *testing.T) {
		assert.Equal(t, 0.0, AvgResponseLatency(types.Transcript{}))
	})

	t.Run("same speaker gaps ignored", func(t *testing.T) {
		tr := types.Transcript{Segments: []types.Segment{
			{Start: 0, End: 5, Speaker: "agent"},
			{Start: 8, End: 12, Speaker: "agent"},
		}}
		assert.Equal(t, 0.0, AvgResponseLatency(tr))
	})

	t.Run("mean of positive turn gaps", func(t *testing.T) {
		tr := types.Transcript{Segments: []types.Segment{
			{Start: 0, End: 5, Speaker: "client"},
			{Start: 6, End: 10, Speaker: "agent"},  // 1s gap
			{Start: 13, End: 20, Speaker: "client"}, // 3s gap
			{Start: 19, End: 25, Speaker: "agent"},  // overlap, ignored
		}}
		assert.InDelta(t, 2.0, AvgResponseLatency(tr), 1e-9)
	})
}
