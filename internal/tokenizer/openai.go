package tokenizer

import (
	"errors"

	"github.com/pkoukk/tiktoken-go"
)

var allSpecialTokens = []string{"all"}

type openAICounter struct {
	encoding *tiktoken.Tiktoken
	name     string
}

func (counter openAICounter) Name() string {
	return counter.name
}

// CountString encodes input with special tokens allowed, so that text containing
// markers such as <|endoftext|> is counted instead of rejected.
func (counter openAICounter) CountString(input string) (int, error) {
	if counter.encoding == nil {
		return 0, errors.New("nil tiktoken encoder")
	}
	tokenIDs := counter.encoding.Encode(input, allSpecialTokens, nil)
	return len(tokenIDs), nil
}
