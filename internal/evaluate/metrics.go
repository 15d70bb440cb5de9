package evaluate

import (
	"bytes"
	"math"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/stat"
)

// Metric names as they appear in the report.
const (
	KeyExactMatch = "Exact Match (EM)"
	KeyF1         = "F1 Score"
	KeyBLEU       = "BLEU"
	KeyTokenF1    = "Token F1 (multiset)"
)

// Metrics holds the scores of one (model, method) pair. All values are in
// [0, 1].
type Metrics struct {
	ExactMatch float64
	// F1 is the set-precision overlap reported as "F1 Score".
	F1   float64
	BLEU float64
	// TokenF1 is the multiset token F1, present only when enabled.
	TokenF1 *float64
}

// MarshalJSON writes the metrics in a fixed key order.
func (m Metrics) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	write := func(key string, v float64) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		val, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
		return nil
	}
	for _, kv := range []struct {
		key string
		v   float64
	}{{KeyExactMatch, m.ExactMatch}, {KeyF1, m.F1}, {KeyBLEU, m.BLEU}} {
		if err := write(kv.key, kv.v); err != nil {
			return nil, err
		}
	}
	if m.TokenF1 != nil {
		if err := write(KeyTokenF1, *m.TokenF1); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *Metrics) UnmarshalJSON(b []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = Metrics{ExactMatch: raw[KeyExactMatch], F1: raw[KeyF1], BLEU: raw[KeyBLEU]}
	if v, ok := raw[KeyTokenF1]; ok {
		m.TokenF1 = &v
	}
	return nil
}

// Get returns the metric stored under a report key.
func (m Metrics) Get(key string) (float64, bool) {
	switch key {
	case KeyExactMatch:
		return m.ExactMatch, true
	case KeyF1:
		return m.F1, true
	case KeyBLEU:
		return m.BLEU, true
	case KeyTokenF1:
		if m.TokenF1 == nil {
			return 0, false
		}
		return *m.TokenF1, true
	}
	return 0, false
}

// ExactMatch is the mean of trimmed string equality.
func ExactMatch(preds, refs []string) float64 {
	return meanOver(preds, refs, func(p, r string) float64 {
		if strings.TrimSpace(p) == strings.TrimSpace(r) {
			return 1
		}
		return 0
	})
}

// SetPrecisionF1 scores |set(p) & set(r)| / |set(p)| over whitespace tokens,
// 0 when the prediction has no tokens, averaged over pairs. This is the
// "F1 Score" of the report.
func SetPrecisionF1(preds, refs []string) float64 {
	return meanOver(preds, refs, func(p, r string) float64 {
		pset := tokenSet(p)
		if len(pset) == 0 {
			return 0
		}
		rset := tokenSet(r)
		common := 0
		for tok := range pset {
			if _, ok := rset[tok]; ok {
				common++
			}
		}
		return float64(common) / float64(len(pset))
	})
}

// TokenF1 is the harmonic mean of multiset token precision and recall,
// averaged over pairs. Two empty strings score 1.
func TokenF1(preds, refs []string) float64 {
	return meanOver(preds, refs, func(p, r string) float64 {
		pt, rt := strings.Fields(p), strings.Fields(r)
		if len(pt) == 0 || len(rt) == 0 {
			if len(pt) == len(rt) {
				return 1
			}
			return 0
		}
		counts := make(map[string]int, len(rt))
		for _, tok := range rt {
			counts[tok]++
		}
		common := 0
		for _, tok := range pt {
			if counts[tok] > 0 {
				counts[tok]--
				common++
			}
		}
		if common == 0 {
			return 0
		}
		precision := float64(common) / float64(len(pt))
		recall := float64(common) / float64(len(rt))
		return 2 * precision * recall / (precision + recall)
	})
}

func meanOver(preds, refs []string, score func(p, r string) float64) float64 {
	n := min(len(preds), len(refs))
	if n == 0 {
		return 0
	}
	xs := make([]float64, n)
	for i := range n {
		xs[i] = score(preds[i], refs[i])
	}
	return stat.Mean(xs, nil)
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// bleuMaxOrder is the longest n-gram BLEU counts.
const bleuMaxOrder = 4

// BLEU computes corpus BLEU with one reference per prediction: uniform
// weights up to 4-grams, no smoothing, brevity penalty and 13a tokenization.
func BLEU(preds, refs []string) float64 {
	var matches, possible [bleuMaxOrder]int
	predLen, refLen := 0, 0
	for i := range min(len(preds), len(refs)) {
		pt, rt := Tokenize13a(preds[i]), Tokenize13a(refs[i])
		predLen += len(pt)
		refLen += len(rt)
		for n := 1; n <= bleuMaxOrder; n++ {
			refCounts := ngramCounts(rt, n)
			for g, c := range ngramCounts(pt, n) {
				matches[n-1] += min(c, refCounts[g])
			}
			if k := len(pt) - n + 1; k > 0 {
				possible[n-1] += k
			}
		}
	}

	var logSum float64
	for n := range bleuMaxOrder {
		if possible[n] == 0 || matches[n] == 0 {
			return 0
		}
		logSum += math.Log(float64(matches[n])/float64(possible[n])) / bleuMaxOrder
	}
	geoMean := math.Exp(logSum)
	if refLen == 0 {
		return geoMean
	}
	ratio := float64(predLen) / float64(refLen)
	bp := 1.0
	if ratio <= 1 {
		bp = math.Exp(1 - 1/ratio)
	}
	return geoMean * bp
}

func ngramCounts(toks []string, n int) map[string]int {
	counts := map[string]int{}
	for i := 0; i+n <= len(toks); i++ {
		counts[strings.Join(toks[i:i+n], "\x00")]++
	}
	return counts
}

var tok13a = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile("([{-~\\[-` -&(-+:-@/])"), " ${1} "},
	{regexp.MustCompile(`([^0-9])([\.,])`), "${1} ${2} "},
	{regexp.MustCompile(`([\.,])([^0-9])`), " ${1} ${2}"},
	{regexp.MustCompile(`([0-9])(-)`), "${1} ${2} "},
}

// htmlEntities are unescaped in order, so "&amp;lt;" ends up as "<".
var htmlEntities = [][2]string{{"&quot;", `"`}, {"&amp;", "&"}, {"&lt;", "<"}, {"&gt;", ">"}}

// Tokenize13a splits text the way the mteval-v13a script does.
func Tokenize13a(line string) []string {
	line = strings.ReplaceAll(line, "<skipped>", "")
	line = strings.ReplaceAll(line, "-\n", "")
	line = strings.ReplaceAll(line, "\n", " ")
	if strings.Contains(line, "&") {
		for _, e := range htmlEntities {
			line = strings.ReplaceAll(line, e[0], e[1])
		}
	}
	line = " " + line + " "
	for _, r := range tok13a {
		line = r.re.ReplaceAllString(line, r.repl)
	}
	return strings.Fields(line)
}
