package triggers

import (
	"strings"

	"github.com/sirupsen/logrus"

	"call-audit-go/internal/speakers"
	"call-audit-go/internal/types"
)

// Detector scans transcript segments for lexicon matches. Matching is exact
// substring containment on normalized text; morphological variants are an
// accepted miss.
type Detector struct {
	enabled  bool
	lexicons []Lexicon
	log      *logrus.Entry
}

func NewDetector(enabled bool, lexicons []Lexicon, log *logrus.Entry) *Detector {
	return &Detector{enabled: enabled, lexicons: lexicons, log: log}
}

// Detect emits one timestamped, speaker-attributed event per (segment, term)
// match. Segments without an explicit speaker tag fall back to the shared
// alternating heuristic.
func (d *Detector) Detect(tr types.Transcript) []types.TriggerEvent {
	if !d.enabled {
		d.log.Debug("lexicon matching disabled")
		return nil
	}

	attr := speakers.NewAttributor()
	var events []types.TriggerEvent
	for _, seg := range tr.Segments {
		speaker := attr.Next(seg.Speaker)
		normalized := Normalize(seg.Text)
		if normalized == "" {
			continue
		}
		for _, lex := range d.lexicons {
			for _, term := range lex.Terms {
				if !strings.Contains(normalized, term) {
					continue
				}
				end := seg.End
				events = append(events, types.TriggerEvent{
					Type:    lex.Category,
					Term:    term,
					TStart:  seg.Start,
					TEnd:    &end,
					Speaker: speaker,
					Extra:   map[string]any{"quote": strings.TrimSpace(seg.Text)},
				})
			}
		}
	}

	d.log.WithFields(logrus.Fields{
		"segments": len(tr.Segments),
		"events":   len(events),
	}).Info("trigger detection finished")
	return events
}
