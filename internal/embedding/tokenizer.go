package embedding

import (
	"fmt"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
// All three slices have length maxTokens.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

const (
	clsTokenID = 101
	sepTokenID = 102
)

// SimpleTokenizer is a word-split tokenizer with hash-based token IDs (for testing or fallback).
type SimpleTokenizer struct{}

// Tokenize splits text into words and produces padded token IDs up to maxTokens.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	words := SplitWords(text)
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = clsTokenID
	attentionMask[0] = 1

	pos := 1
	for _, word := range words {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(HashString(word) % 30000)
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = sepTokenID
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// WordPieceTokenizer wraps a HuggingFace tokenizer.json (the one shipped with the
// sentence-transformers model) so ONNX inputs match what the model was trained on.
type WordPieceTokenizer struct {
	tk *tokenizer.Tokenizer
}

// NewWordPieceTokenizer loads tokenizer.json from path.
func NewWordPieceTokenizer(path string) (*WordPieceTokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}
	return &WordPieceTokenizer{tk: tk}, nil
}

// Tokenize encodes text with special tokens, truncating to maxTokens (the final
// position keeps [SEP]) and zero-padding the rest. Encoding failures fall back to
// an empty [CLS] [SEP] sequence.
func (t *WordPieceTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	enc, err := t.tk.EncodeSingle(text, true)
	if err != nil || len(enc.GetIds()) == 0 {
		inputIDs[0], attentionMask[0] = clsTokenID, 1
		if maxTokens > 1 {
			inputIDs[1], attentionMask[1] = sepTokenID, 1
		}
		return inputIDs, attentionMask, tokenTypeIDs
	}

	ids := enc.GetIds()
	mask := enc.GetAttentionMask()
	types := enc.GetTypeIds()
	n := len(ids)
	if n > maxTokens {
		n = maxTokens
	}
	for i := 0; i < n; i++ {
		inputIDs[i] = int64(ids[i])
		attentionMask[i] = 1
		if i < len(mask) {
			attentionMask[i] = int64(mask[i])
		}
		if i < len(types) {
			tokenTypeIDs[i] = int64(types[i])
		}
	}
	if len(ids) > maxTokens {
		inputIDs[maxTokens-1] = int64(ids[len(ids)-1])
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// SplitWords splits text on whitespace and returns non-empty words.
func SplitWords(text string) []string {
	var words []string
	word := ""
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' {
			if word != "" {
				words = append(words, word)
				word = ""
			}
		} else {
			word += string(r)
		}
	}
	if word != "" {
		words = append(words, word)
	}
	return words
}

// HashString returns a deterministic hash for use as a simple token ID.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
