package onnx

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"unicode"
)

// Special token ids of the bert-base-uncased vocabulary used by MiniLM.
const (
	clsTokenID = 101 // [CLS]
	sepTokenID = 102 // [SEP]
	unkTokenID = 100 // [UNK]
)

// Tokenizer handles BERT-style WordPiece tokenization.
type Tokenizer struct {
	vocab map[string]int
	cls   int64
	sep   int64
	unk   int64
}

// LoadTokenizer loads the vocabulary from a HuggingFace tokenizer.json.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tokenizerData struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &tokenizerData); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(tokenizerData.Model.Vocab) == 0 {
		return nil, fmt.Errorf("%s has no model.vocab", path)
	}

	return NewTokenizer(tokenizerData.Model.Vocab), nil
}

// NewTokenizer builds a tokenizer from a vocabulary. Special tokens are
// looked up by name and fall back to the bert-base ids.
func NewTokenizer(vocab map[string]int) *Tokenizer {
	lookup := func(tok string, fallback int) int64 {
		if id, ok := vocab[tok]; ok {
			return int64(id)
		}
		return int64(fallback)
	}
	return &Tokenizer{
		vocab: vocab,
		cls:   lookup("[CLS]", clsTokenID),
		sep:   lookup("[SEP]", sepTokenID),
		unk:   lookup("[UNK]", unkTokenID),
	}
}

// Tokenize converts text to token IDs (without [CLS]/[SEP]).
func (t *Tokenizer) Tokenize(text string) []int64 {
	var tokens []int64
	for _, word := range basicSplit(strings.ToLower(text)) {
		if id, ok := t.vocab[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}
		tokens = append(tokens, t.wordPiece(word)...)
	}
	return tokens
}

// Encode returns input ids and attention mask padded to maxLen, with
// [CLS] and [SEP] added and the text truncated to fit.
func (t *Tokenizer) Encode(text string, maxLen int) (ids, mask []int64) {
	tokens := t.Tokenize(text)
	if len(tokens) > maxLen-2 {
		tokens = tokens[:maxLen-2]
	}

	ids = make([]int64, maxLen)
	mask = make([]int64, maxLen)

	ids[0], mask[0] = t.cls, 1
	for i, tok := range tokens {
		ids[i+1], mask[i+1] = tok, 1
	}
	end := len(tokens) + 1
	ids[end], mask[end] = t.sep, 1

	return ids, mask
}

// basicSplit splits on whitespace and isolates punctuation, as BERT's basic
// tokenizer does.
func basicSplit(text string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}

// wordPiece splits a word greedily into the longest known sub-words.
// A word with an unknown piece maps to a single [UNK].
func (t *Tokenizer) wordPiece(word string) []int64 {
	var ids []int64
	runes := []rune(word)
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := false
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub // WordPiece continuation prefix
			}
			if id, ok := t.vocab[sub]; ok {
				ids = append(ids, int64(id))
				start = end
				found = true
				break
			}
			end--
		}
		if !found {
			return []int64{t.unk}
		}
	}
	return ids
}

// meanPool averages hidden states over attended positions.
// hidden is [seqLen * hiddenSize] in row-major order.
func meanPool(hidden []float32, mask []int64, seqLen, hiddenSize int) []float32 {
	out := make([]float32, hiddenSize)
	var attended float32
	for i := 0; i < seqLen; i++ {
		if mask[i] == 0 {
			continue
		}
		attended++
		offset := i * hiddenSize
		for j := 0; j < hiddenSize; j++ {
			out[j] += hidden[offset+j]
		}
	}
	if attended > 0 {
		for j := range out {
			out[j] /= attended
		}
	}
	return out
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
