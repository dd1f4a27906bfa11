package speakers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"call-audit-go/internal/types"
)

func TestAttributorAlternatesFromClient(t *testing.T) {
	attr := NewAttributor()

	assert.Equal(t, Client, attr.Next(""))
	assert.Equal(t, Agent, attr.Next(""))
	assert.Equal(t, Client, attr.Next(""))
	assert.Equal(t, Agent, attr.Next(""))
}

func TestAttributorExplicitTagResetsAnchor(t *testing.T) {
	attr := NewAttributor()

	assert.Equal(t, Client, attr.Next(""))
	// Explicit tag passes through untouched.
	assert.Equal(t, Agent, attr.Next(Agent))
	// Alternation continues from the explicit tag.
	assert.Equal(t, Client, attr.Next(""))
	assert.Equal(t, "supervisor", attr.Next("supervisor"))
	assert.Equal(t, Client, attr.Next(""))
}

func TestLabelFillsOnlyEmptySpeakers(t *testing.T) {
	segs := []types.Segment{
		{Start: 0, End: 2, Text: "hello"},
		{Start: 2, End: 5, Text: "hi there", Speaker: Agent},
		{Start: 5, End: 8, Text: "i have a question"},
	}

	labeled := Label(segs)

	assert.Equal(t, Client, labeled[0].Speaker)
	assert.Equal(t, Agent, labeled[1].Speaker)
	assert.Equal(t, Client, labeled[2].Speaker)
	// Input slice is untouched.
	assert.Empty(t, segs[0].Speaker)
}
