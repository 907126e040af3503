package types

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenCounter is a Tokenizer backed by a real BPE encoding
// (github.com/pkoukk/tiktoken-go), used wherever a component needs an
// accurate token count rather than EstimateTokenizer's character-ratio
// guess. Grounded on the teacher's llm/tokenizer.TiktokenTokenizer, adapted
// to the error-free types.Tokenizer contract: encoding data can fail to
// load (first call may need to fetch BPE rank data), so TiktokenCounter
// falls back to EstimateTokenizer rather than surface an error this
// interface has no room for.
type TiktokenCounter struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	fallback *EstimateTokenizer
}

// NewTiktokenCounter constructs a counter using the cl100k_base encoding,
// the one shared by every model family this module's providers target
// (OpenAI-compatible gpt-3.5/4-class endpoints and Ollama-fronted local
// models alike), per the teacher's modelEncodings default case.
func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{encoding: "cl100k_base", fallback: NewEstimateTokenizer()}
}

func (t *TiktokenCounter) init() *tiktoken.Tiktoken {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err == nil {
			t.enc = enc
		}
	})
	return t.enc
}

// CountTokens counts text via the real BPE encoding, falling back to
// EstimateTokenizer's character-ratio estimate if the encoding failed to
// load.
func (t *TiktokenCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	enc := t.init()
	if enc == nil {
		return t.fallback.CountTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// CountMessageTokens counts one message, including the teacher's per-message
// role/name/overhead accounting.
func (t *TiktokenCounter) CountMessageTokens(msg Message) int {
	tokens := 4 // per-message overhead: <|start|>role\n content <|end|>\n
	tokens += t.CountTokens(msg.Content)
	if msg.Name != "" {
		tokens += t.CountTokens(msg.Name)
	}
	for _, tc := range msg.ToolCalls {
		tokens += t.CountTokens(tc.Name)
		tokens += t.CountTokens(string(tc.Arguments))
	}
	return tokens
}

// CountMessagesTokens counts a full message list, plus the conversation-end
// overhead the teacher's CountMessages tallies.
func (t *TiktokenCounter) CountMessagesTokens(msgs []Message) int {
	total := 3
	for _, msg := range msgs {
		total += t.CountMessageTokens(msg)
	}
	return total
}

// EstimateToolTokens estimates the token cost of tool schemas passed to the
// model, reusing EstimateTokenizer's per-tool heuristic since tool schemas
// aren't plain chat messages tiktoken's message framing applies to.
func (t *TiktokenCounter) EstimateToolTokens(tools []ToolSchema) int {
	return t.fallback.EstimateToolTokens(tools)
}
