// Package accountant estimates the resident memory cost of a model and keeps
// the running total against a hard ceiling.
package accountant

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"modelcore/pkg/types"
)

const (
	MiB = int64(1) << 20
	GiB = int64(1) << 30

	// DefaultContextSize is assumed when a language model omits one.
	DefaultContextSize = 4096
	// FallbackParams is used when no parameter count can be parsed.
	FallbackParams = int64(7_000_000_000)
	// MaxParams caps parsed parameter counts. Anything above it estimates to
	// more than any ceiling.
	MaxParams = int64(100_000_000_000_000)
	// ContextBytesPerToken approximates KV cache plus scratch per context token.
	ContextBytesPerToken = int64(128 << 10)
	// baselineBits is the 16-bit reference precision.
	baselineBits = 16
)

// fixedTiers holds per-tier resident sizes for fixed-size categories.
var fixedTiers = map[types.Category]map[string]int64{
	types.CategoryTranscription: {
		"tiny":   273 * MiB,
		"base":   388 * MiB,
		"small":  852 * MiB,
		"medium": 2100 * MiB,
		"large":  3900 * MiB,
	},
	types.CategoryTextEmbedding: {
		"tiny":   96 * MiB,
		"small":  256 * MiB,
		"base":   512 * MiB,
		"medium": 896 * MiB,
		"large":  1340 * MiB,
	},
	types.CategoryImageEmbedding: {
		"small":  384 * MiB,
		"base":   600 * MiB,
		"medium": 1100 * MiB,
		"large":  1710 * MiB,
	},
}

var tierOrder = []string{"tiny", "small", "base", "medium", "large"}

// sizeToken matches parameter counts such as 7b, 1.5B or 270m.
var sizeToken = regexp.MustCompile(`(?i)(?:^|[^a-z0-9.])(\d+(?:\.\d+)?)([bm])(?:$|[^a-z0-9])`)

// quantBits matches the bit width inside a quantization scheme name.
var quantBits = regexp.MustCompile(`(?i)^(?:i?q|f|bf|fp)(\d+)`)

// Estimate returns the expected resident footprint of desc in bytes. It never
// returns less than one MiB.
func Estimate(desc types.ModelDescriptor) int64 {
	var n int64
	if desc.Category == types.CategoryLanguage {
		n = estimateLanguage(desc)
	} else {
		n = estimateFixed(desc)
	}
	if n < MiB {
		n = MiB
	}
	return n
}

func estimateLanguage(desc types.ModelDescriptor) int64 {
	params, ok := ParseParams(desc.Size)
	if !ok {
		params, ok = ParseParams(desc.ID)
	}
	if !ok {
		params = FallbackParams
	}
	bits := QuantBits(desc.Quantization)
	weights := params * int64(bits) / 8
	ctx := int64(desc.ContextSize)
	if ctx <= 0 {
		ctx = DefaultContextSize
	}
	if ctx > (math.MaxInt64-weights)/ContextBytesPerToken {
		return math.MaxInt64
	}
	return weights + ctx*ContextBytesPerToken
}

func estimateFixed(desc types.ModelDescriptor) int64 {
	table := fixedTiers[desc.Category]
	if len(table) == 0 {
		return FallbackParams * baselineBits / 8
	}
	if v, ok := table[Tier(desc)]; ok {
		return v
	}
	// Unknown tier: assume the largest entry.
	var largest int64
	for _, v := range table {
		if v > largest {
			largest = v
		}
	}
	return largest
}

// Tier resolves the declared size tier from desc.Size, falling back to a tier
// name embedded in the model id (whisper-small, bge-base).
func Tier(desc types.ModelDescriptor) string {
	if t := strings.ToLower(strings.TrimSpace(desc.Size)); t != "" {
		return t
	}
	for _, part := range strings.FieldsFunc(strings.ToLower(desc.ID), splitToken) {
		for _, t := range tierOrder {
			if part == t {
				return t
			}
		}
	}
	return ""
}

func splitToken(r rune) bool { return r == '-' || r == '_' || r == '.' || r == '/' || r == ':' }

// ParseParams extracts a parameter count from a size token or model name.
// Counts above MaxParams saturate to it.
func ParseParams(s string) (int64, bool) {
	m := sizeToken.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil && !math.IsInf(v, 1) || v <= 0 {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "b":
		v *= 1e9
	case "m":
		v *= 1e6
	}
	if v >= float64(MaxParams) {
		return MaxParams, true
	}
	return int64(v), true
}

// QuantBits returns the weight precision implied by a quantization scheme.
// Unknown or empty schemes count as the 16-bit baseline.
func QuantBits(scheme string) int {
	s := strings.TrimSpace(scheme)
	if s == "" {
		return baselineBits
	}
	m := quantBits.FindStringSubmatch(s)
	if m == nil {
		return baselineBits
	}
	bits, err := strconv.Atoi(m[1])
	if err != nil || bits <= 0 || bits > 32 {
		return baselineBits
	}
	return bits
}
