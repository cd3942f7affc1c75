package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReplyNoMarkers(t *testing.T) {
	text, actions := ParseReply("Just a normal reply.")
	assert.Equal(t, "Just a normal reply.", text)
	assert.Empty(t, actions)
}

func TestParseReplyKarmaUp(t *testing.T) {
	text, actions := ParseReply("Nice! {karma+}")
	assert.Equal(t, "Nice!", text)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionKarma, actions[0].Kind)
	assert.Equal(t, 1, actions[0].Delta)
}

func TestParseReplyKarmaDown(t *testing.T) {
	text, actions := ParseReply("Rude. {karma-}")
	assert.Equal(t, "Rude.", text)
	require.Len(t, actions, 1)
	assert.Equal(t, -1, actions[0].Delta)
}

func TestParseReplyGenerateImage(t *testing.T) {
	text, actions := ParseReply("Sure, here you go. {gen} a red cat wearing sunglasses")
	assert.Equal(t, "Sure, here you go.", text)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionGenerateImage, actions[0].Kind)
	assert.Equal(t, "a red cat wearing sunglasses", actions[0].Prompt)
}

func TestParseReplyEditImage(t *testing.T) {
	text, actions := ParseReply("On it. {edit} make the sky purple")
	assert.Equal(t, "On it.", text)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionEditImage, actions[0].Kind)
	assert.Equal(t, "make the sky purple", actions[0].Prompt)
}

func TestParseReplyEmptyMarkerBodyDropped(t *testing.T) {
	text, actions := ParseReply("Hmm. {gen}")
	assert.Equal(t, "Hmm.", text)
	assert.Empty(t, actions)

	text, actions = ParseReply("Hmm. {edit}   ")
	assert.Equal(t, "Hmm.", text)
	assert.Empty(t, actions)
}

func TestParseReplyKarmaPlusImage(t *testing.T) {
	text, actions := ParseReply("Love it! {karma+} {gen} a golden trophy")
	assert.Equal(t, "Love it!", text)
	require.Len(t, actions, 2)
	assert.Equal(t, ActionKarma, actions[0].Kind)
	assert.Equal(t, ActionGenerateImage, actions[1].Kind)
	assert.Equal(t, "a golden trophy", actions[1].Prompt)
}

func TestParseReplyFirstSuffixMarkerWins(t *testing.T) {
	text, actions := ParseReply("Ok. {gen} a dog {edit} never mind")
	assert.Equal(t, "Ok.", text)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionGenerateImage, actions[0].Kind)
	assert.Equal(t, "a dog  never mind", actions[0].Prompt)
}

func TestParseReplyStripsKarmaArtifacts(t *testing.T) {
	text, actions := ParseReply("Your score is (karma: 5) now, well done. {karma+}")
	assert.NotContains(t, text, "karma")
	assert.NotContains(t, text, "5")
	require.Len(t, actions, 1)
}

func TestParseReplyWholeReplyIsMarker(t *testing.T) {
	text, actions := ParseReply("{karma+}")
	assert.Empty(t, text)
	require.Len(t, actions, 1)
}
