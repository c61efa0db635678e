// Package tokenizer counts tokens with the BPE encodings used by OpenAI models.
package tokenizer

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/temirov/codeprompt/internal/types"
)

// ErrInvalidEncoding reports an encoding or model name that no tokenizer supports.
var ErrInvalidEncoding = errors.New("invalid tokenizer encoding")

// Counter estimates token counts for text content.
type Counter interface {
	Name() string
	CountString(input string) (int, error)
}

// Config captures tokenizer selection. Model, when set, selects the encoding used by
// that model and takes precedence over Encoding.
type Config struct {
	Encoding string
	Model    string
}

// DefaultEncoding is used when neither an encoding nor a model is configured.
const DefaultEncoding = "cl100k"

// Encoding describes one supported encoding.
type Encoding struct {
	// Name is the short name accepted on the command line.
	Name string
	// BaseName is the tiktoken encoding identifier.
	BaseName  string
	ModelInfo string
}

var encodings = []Encoding{
	{Name: "cl100k", BaseName: tiktoken.MODEL_CL100K_BASE, ModelInfo: "ChatGPT models, text-embedding-ada-002"},
	{Name: "o200k", BaseName: tiktoken.MODEL_O200K_BASE, ModelInfo: "GPT-4o models, o1 models"},
	{Name: "p50k", BaseName: tiktoken.MODEL_P50K_BASE, ModelInfo: "Code models, text-davinci-002, text-davinci-003"},
	{Name: "p50k_edit", BaseName: tiktoken.MODEL_P50K_EDIT, ModelInfo: "Edit models like text-davinci-edit-001, code-davinci-edit-001"},
	{Name: "r50k", BaseName: tiktoken.MODEL_R50K_BASE, ModelInfo: "GPT-3 models like davinci"},
}

var encodingAliases = map[string]string{
	"gpt2": "r50k",
}

// ResolveEncoding maps a short name, an alias or a tiktoken identifier to an Encoding.
// An empty name resolves to DefaultEncoding.
func ResolveEncoding(name string) (Encoding, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		normalized = DefaultEncoding
	}
	if alias, found := encodingAliases[normalized]; found {
		normalized = alias
	}
	for _, encoding := range encodings {
		if normalized == encoding.Name || normalized == encoding.BaseName {
			return encoding, nil
		}
	}
	return Encoding{}, fmt.Errorf("%w %q (supported: %s)", ErrInvalidEncoding, name, strings.Join(EncodingNames(), ", "))
}

// EncodingNames lists the short names of the supported encodings.
func EncodingNames() []string {
	names := make([]string, 0, len(encodings)+len(encodingAliases))
	for _, encoding := range encodings {
		names = append(names, encoding.Name)
	}
	for alias := range encodingAliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return names
}

// ModelInfo describes the models that use encoding. Unknown names yield an empty string.
func ModelInfo(encoding string) string {
	resolved, err := ResolveEncoding(encoding)
	if err != nil {
		return ""
	}
	return resolved.ModelInfo
}

// Select resolves the encoding named by cfg without loading it.
func Select(cfg Config) (Encoding, error) {
	model := strings.ToLower(strings.TrimSpace(cfg.Model))
	if model == "" {
		return ResolveEncoding(cfg.Encoding)
	}
	if baseName, found := tiktoken.MODEL_TO_ENCODING[model]; found {
		return ResolveEncoding(baseName)
	}
	longestPrefix := ""
	for prefix := range tiktoken.MODEL_PREFIX_TO_ENCODING {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(longestPrefix) {
			longestPrefix = prefix
		}
	}
	if longestPrefix != "" {
		return ResolveEncoding(tiktoken.MODEL_PREFIX_TO_ENCODING[longestPrefix])
	}
	return Encoding{}, fmt.Errorf("%w: no encoding for model %q", ErrInvalidEncoding, cfg.Model)
}

// NewCounter returns a Counter for the configured encoding together with the seed of
// the token report. Configuration errors wrap ErrInvalidEncoding.
func NewCounter(cfg Config) (Counter, types.TokenReport, error) {
	encoding, selectErr := Select(cfg)
	if selectErr != nil {
		return nil, types.TokenReport{}, selectErr
	}
	tiktokenEncoding, loadErr := tiktoken.GetEncoding(encoding.BaseName)
	if loadErr != nil {
		return nil, types.TokenReport{}, fmt.Errorf("initialize tokenizer %s: %w", encoding.BaseName, loadErr)
	}
	report := types.TokenReport{Encoding: encoding.Name, ModelInfo: encoding.ModelInfo}
	return openAICounter{encoding: tiktokenEncoding, name: encoding.Name}, report, nil
}
