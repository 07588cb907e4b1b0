package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Claude has no public tokenizer; cl100k_base is close enough for
// admission decisions.
const fallbackEncoding = "cl100k_base"

// tokensPerMessage covers the per-turn framing overhead.
const tokensPerMessage = 3

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	encodingMu    sync.RWMutex
)

// Estimator approximates token counts for prompt sizing. A zero
// Estimator falls back to a characters-over-four heuristic, so callers
// never have to treat estimation as fallible.
type Estimator struct {
	encoding *tiktoken.Tiktoken
}

// NewEstimator builds an estimator for the given model, reusing cached
// encodings across instances.
func NewEstimator(model string) *Estimator {
	encodingMu.RLock()
	cached, ok := encodingCache[model]
	encodingMu.RUnlock()
	if ok {
		return &Estimator{encoding: cached}
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return &Estimator{}
		}
	}

	encodingMu.Lock()
	encodingCache[model] = encoding
	encodingMu.Unlock()

	return &Estimator{encoding: encoding}
}

// Count returns the approximate token count for text.
func (e *Estimator) Count(text string) int {
	if e == nil || e.encoding == nil {
		return len(text) / 4
	}
	return len(e.encoding.Encode(text, nil, nil))
}

// CountRequest approximates the prompt size of a chat request,
// including per-message framing and the reply priming.
func (e *Estimator) CountRequest(req Request) int {
	total := tokensPerMessage
	if req.System != "" {
		total += e.Count(req.System)
	}
	for _, m := range req.Messages {
		total += tokensPerMessage
		total += e.Count(m.Role)
		total += e.Count(m.Content)
	}
	return total
}
