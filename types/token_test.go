package types_test

import (
	"testing"

	"github.com/agentforge/conductor/types"
	"github.com/stretchr/testify/assert"
)

func TestEstimateTokenizer_CountTokens(t *testing.T) {
	tok := types.NewEstimateTokenizer()
	assert.Equal(t, 0, tok.CountTokens(""))
	assert.Greater(t, tok.CountTokens("a reasonably long sentence of english text"), 0)
}

func TestEstimateTokenizer_CountMessagesTokens(t *testing.T) {
	tok := types.NewEstimateTokenizer()
	msgs := []types.Message{
		types.NewSystemMessage("you are an agent"),
		types.NewUserMessage("do the thing"),
	}
	total := tok.CountMessagesTokens(msgs)
	assert.Equal(t, tok.CountMessageTokens(msgs[0])+tok.CountMessageTokens(msgs[1]), total)
}
