package content

import (
	"math"
	"strings"

	"github.com/eringen/spacetraveling/richtext"
)

// WordsPerMinute is the reading speed assumed by ReadingMinutes.
const WordsPerMinute = 200

// ReadingMinutes estimates the time to read doc: every whitespace-separated
// token of every heading and block counts as a word, rounded up to whole
// minutes.
func ReadingMinutes(doc Document) int {
	words := 0
	for _, sec := range doc.Body {
		words += len(strings.Fields(sec.Heading))
		for _, b := range sec.Content {
			words += len(strings.Fields(richtext.PlainText(b)))
		}
	}
	return int(math.Ceil(float64(words) / WordsPerMinute))
}
