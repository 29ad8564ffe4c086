package aigen

import (
	"regexp"
	"strconv"
	"strings"
)

// Bid extraction from free text is best effort: a missing or malformed bid
// is simply no bid, never an error.
var bidPattern = regexp.MustCompile(`(?i)(?:bid|offer|出价|我出)[:：\s]*[$¥€]?\s*(\d+(?:\.\d+)?)|[$¥€]\s*(\d+(?:\.\d+)?)`)

func ParseBid(content string) (int64, bool) {
	m := bidPattern.FindStringSubmatch(content)
	if m == nil {
		return 0, false
	}
	raw := m[1]
	if raw == "" {
		raw = m[2]
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return int64(v), true
}

var emotionKeywords = []struct {
	tag   string
	words []string
}{
	{"excited", []string{"amazing", "incredible", "love", "excellent", "brilliant", "太棒", "惊艳"}},
	{"aggressive", []string{"outbid", "mine", "won't lose", "take it", "志在必得", "势在必得"}},
	{"worried", []string{"risk", "concern", "doubt", "careful", "担心", "风险"}},
	{"confident", []string{"sure", "certain", "clearly", "obviously", "确定", "肯定"}},
}

func ClassifyEmotion(content string) string {
	lower := strings.ToLower(content)
	for _, e := range emotionKeywords {
		for _, w := range e.words {
			if strings.Contains(lower, w) {
				return e.tag
			}
		}
	}
	return "neutral"
}
