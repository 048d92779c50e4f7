// Package similarity scores how alike two already-normalized strings are.
//
// The composite score is the maximum of three signals:
//   - edit ratio: 2·LCS / (|a| + |b|) over runes
//   - token prefix: share of tokens of A that prefix, or are prefixed by, a token of B
//   - token containment: |tokens(A) ∩ tokens(B)| / max(1, |tokens(A)|)
//
// Tokens shorter than MinTokenLength are discarded before any signal is computed.
package similarity

import (
	"errors"
	"strings"
)

// MinTokenLength is the shortest token that takes part in scoring.
const MinTokenLength = 3

// ErrInvalidThresholds is returned when thresholds are outside [0, 1] or out of order.
var ErrInvalidThresholds = errors.New("similarity: invalid thresholds")

// Thresholds are the configurable cut-offs the resolvers compare scores with.
type Thresholds struct {
	NameStrict    float64 `mapstructure:"name_strict"`
	NameSecondary float64 `mapstructure:"name_secondary"`
	Description   float64 `mapstructure:"description"`
}

// DefaultThresholds returns 0.80 / 0.70 / 0.50.
func DefaultThresholds() Thresholds {
	return Thresholds{
		NameStrict:    0.80,
		NameSecondary: 0.70,
		Description:   0.50,
	}
}

// Validate checks ranges and that the secondary name threshold is below the strict one.
func (t Thresholds) Validate() error {
	for _, v := range []float64{t.NameStrict, t.NameSecondary, t.Description} {
		if v <= 0 || v > 1 {
			return ErrInvalidThresholds
		}
	}
	if t.NameSecondary > t.NameStrict {
		return ErrInvalidThresholds
	}
	return nil
}

// Tokens splits on whitespace and keeps tokens of at least MinTokenLength runes.
func Tokens(s string) []string {
	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= MinTokenLength {
			out = append(out, f)
		}
	}
	return out
}

// Score returns the composite similarity of a and b in [0, 1].
func Score(a, b string) float64 {
	ta, tb := Tokens(a), Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	best := EditRatio(strings.Join(ta, " "), strings.Join(tb, " "))
	if p := tokenPrefix(ta, tb); p > best {
		best = p
	}
	if c := tokenContainment(ta, tb); c > best {
		best = c
	}
	return best
}

// EditRatio is the longest-common-subsequence ratio 2·LCS / (|a| + |b|).
func EditRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 0
	}
	return 2 * float64(lcsLength(ra, rb)) / float64(total)
}

// TokenPrefix is the token prefix signal on raw strings.
func TokenPrefix(a, b string) float64 {
	return tokenPrefix(Tokens(a), Tokens(b))
}

// TokenContainment is the token containment signal on raw strings.
func TokenContainment(a, b string) float64 {
	return tokenContainment(Tokens(a), Tokens(b))
}

func tokenPrefix(ta, tb []string) float64 {
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	matched := 0
	for _, x := range ta {
		for _, y := range tb {
			if strings.HasPrefix(x, y) || strings.HasPrefix(y, x) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(ta))
}

func tokenContainment(ta, tb []string) float64 {
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inB := make(map[string]struct{}, len(tb))
	for _, t := range tb {
		inB[t] = struct{}{}
	}
	seen := make(map[string]struct{}, len(ta))
	common := 0
	for _, t := range ta {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := inB[t]; ok {
			common++
		}
	}
	return float64(common) / float64(max(1, len(seen)))
}

// lcsLength uses two rolling rows.
func lcsLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
