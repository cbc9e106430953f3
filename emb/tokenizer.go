// Package emb holds the text resources around the classifier: the BERT
// vocabulary tokenizer, word2vec vectors, projector metadata and the ONNX
// scoring session.
package emb

import (
	"errors"
	"fmt"
	"os"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"

	"yashubustudio/patentcls/labels"
)

// PadToken is the vocabulary entry used to fill padded positions.
const PadToken = "[PAD]"

// Tokenizer encodes sentences with a HuggingFace tokenizer.json file.
type Tokenizer struct {
	tk    *tokenizer.Tokenizer
	vocab map[string]int
	padID int
}

// NewTokenizer loads tokenizer.json from path.
func NewTokenizer(path string) (*Tokenizer, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: tokenizer %s", labels.ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat tokenizer: %w", err)
	}
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	vocab := tk.GetVocab(true)
	return &Tokenizer{tk: tk, vocab: vocab, padID: vocab[PadToken]}, nil
}

// Vocab returns a copy of the token to id mapping, added tokens included.
func (t *Tokenizer) Vocab() map[string]int {
	out := make(map[string]int, len(t.vocab))
	for k, v := range t.vocab {
		out[k] = v
	}
	return out
}

// PadID is the id of PadToken, or 0 when the vocabulary lacks it.
func (t *Tokenizer) PadID() int {
	return t.padID
}

// TokenID looks up a single vocabulary entry.
func (t *Tokenizer) TokenID(token string) (int, bool) {
	id, ok := t.vocab[token]
	return id, ok
}

// Encode tokenizes a normalized sentence with [CLS] and [SEP] added.
func (t *Tokenizer) Encode(text string) ([]int, error) {
	en, err := t.tk.EncodeSingle(NormalizeText(text), true)
	if err != nil {
		return nil, fmt.Errorf("encode text: %w", err)
	}
	return append([]int(nil), en.Ids...), nil
}

// Mask marks every non-pad position with 1.
func Mask(ids []int, padID int) []int {
	mask := make([]int, len(ids))
	for i, id := range ids {
		if id != padID {
			mask[i] = 1
		}
	}
	return mask
}
