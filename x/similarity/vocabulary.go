package similarity

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"strings"

	"golang.org/x/exp/mmap"

	"github.com/pkg/errors"
)

// Vocabulary is a read-only inverse-document-frequency table backing
// TEXT scoring, plus a synonym table normalizing aliases to a
// canonical token before lookup. Building the underlying file is out
// of scope here; Vocabulary only ever reads it.
type Vocabulary struct {
	idf      map[string]float64
	synonyms map[string]string
}

// NewEmptyVocabulary returns a vocabulary with no learned weights;
// TEXT scoring falls back to raw term-overlap counting, which keeps
// the similarity engine usable before a vocabulary file is deployed.
func NewEmptyVocabulary() *Vocabulary {
	return &Vocabulary{idf: map[string]float64{}, synonyms: map[string]string{}}
}

// LoadVocabulary reads a flat binary file of (token, idf) pairs via a
// read-only mmap and decodes every pair into an in-memory map; the
// mapping is closed before returning. Format: uint32 token length, token bytes,
// float64 idf, repeated to EOF.
func LoadVocabulary(path string) (*Vocabulary, error) {
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open vocabulary file")
	}
	defer reader.Close()

	section := io.NewSectionReader(reader, 0, int64(reader.Len()))
	buf := bufio.NewReader(section)

	idf := map[string]float64{}
	for {
		var length uint32
		if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrap(err, "failed to read token length")
		}
		token := make([]byte, length)
		if _, err := io.ReadFull(buf, token); err != nil {
			return nil, errors.Wrap(err, "failed to read token")
		}
		var weight float64
		if err := binary.Read(buf, binary.LittleEndian, &weight); err != nil {
			return nil, errors.Wrap(err, "failed to read idf weight")
		}
		idf[string(token)] = weight
	}

	return &Vocabulary{idf: idf, synonyms: map[string]string{}}, nil
}

// WithSynonyms returns a Vocabulary that shares v's idf table and uses
// exactly the given alias -> canonical mappings during tokenization;
// synonyms already set on v are not kept.
func (v *Vocabulary) WithSynonyms(synonyms map[string]string) *Vocabulary {
	merged := make(map[string]string, len(synonyms))
	for alias, canonical := range synonyms {
		merged[alias] = canonical
	}
	return &Vocabulary{idf: v.idf, synonyms: merged}
}

func (v *Vocabulary) tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if canonical, ok := v.synonyms[f]; ok {
			f = canonical
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func (v *Vocabulary) weight(token string) float64 {
	if w, ok := v.idf[token]; ok {
		return w
	}
	return 1 // unweighted fallback so an empty vocabulary still ranks by raw overlap
}

// textScore is a weighted-Jaccard-style overlap: shared tokens are
// counted once each at their idf weight, normalized by the query's
// own weighted length so score is in [0, 1].
func (v *Vocabulary) textScore(query, candidate string) float64 {
	queryTokens := v.tokenize(query)
	if len(queryTokens) == 0 {
		return 0
	}
	candidateSet := make(map[string]bool)
	for _, t := range v.tokenize(candidate) {
		candidateSet[t] = true
	}

	var matched, total float64
	seen := make(map[string]bool)
	for _, t := range queryTokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		w := v.weight(t)
		total += w
		if candidateSet[t] {
			matched += w
		}
	}
	if total == 0 {
		return 0
	}
	return matched / total
}

// signedLog1p is log1p(|x|) with the sign of x reapplied, used to
// score net votes symmetrically around zero.
func signedLog1p(x int64) float64 {
	sign := 1.0
	if x < 0 {
		sign = -1
		x = -x
	}
	return sign * math.Log1p(float64(x))
}
