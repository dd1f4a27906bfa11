// Package speakers provides the alternating-speaker fallback used wherever a
// transcript segment carries no explicit speaker tag. It is a stand-in for
// diarization: every stage shares this one implementation so labels agree
// across trigger detection, metric derivation and score serialization.
package speakers

import "call-audit-go/internal/types"

const (
	Agent  = "agent"
	Client = "client"
)

// Attributor assigns speakers segment by segment. The first untagged segment
// is attributed to the client; untagged segments alternate from there.
// Explicit tags pass through and reset the alternation anchor.
type Attributor struct {
	prior string
}

func NewAttributor() *Attributor {
	return &Attributor{}
}

func (a *Attributor) Next(explicit string) string {
	if explicit != "" {
		a.prior = explicit
		return explicit
	}
	speaker := Client
	if a.prior == Client {
		speaker = Agent
	}
	a.prior = speaker
	return speaker
}

// Label returns a copy of segs with every empty speaker filled in.
func Label(segs []types.Segment) []types.Segment {
	attr := NewAttributor()
	out := make([]types.Segment, len(segs))
	for i, seg := range segs {
		seg.Speaker = attr.Next(seg.Speaker)
		out[i] = seg
	}
	return out
}
