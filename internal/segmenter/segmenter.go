package segmenter

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/code-100-precent/LingBook/internal/models"
	"github.com/code-100-precent/LingBook/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

const DefaultMaxUnitLength = 500

var (
	htmlTags      = regexp.MustCompile(`<[^>]+>`)
	multiSpaces   = regexp.MustCompile(`[ \t]+`)
	multiNewLines = regexp.MustCompile(`\n{3,}`)
	paragraphGap  = regexp.MustCompile(`\n\s*\n`)
)

// TextSegmenter splits documents into synthesis-sized units.
type TextSegmenter struct{}

func New() *TextSegmenter {
	return &TextSegmenter{}
}

func (s *TextSegmenter) Clean(text string) string {
	return Clean(text)
}

func (s *TextSegmenter) Segment(content string, maxUnitLength int) []models.TextUnit {
	units := Segment(content, maxUnitLength)
	logger.Debug("text segmented",
		zap.Int("units", len(units)),
		zap.Int("max_unit_length", maxUnitLength))
	return units
}

// Clean strips markup and characters speech engines stumble on, and
// normalizes whitespace. Clean(Clean(x)) == Clean(x).
func Clean(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = htmlTags.ReplaceAllString(text, " ")
	text = strings.Map(keepRune, text)
	text = multiSpaces.ReplaceAllString(text, " ")
	text = multiNewLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

const keptPunctuation = "，。！？、；：\"'（）【】《》-—…,.!?;:()[]<>"

func keepRune(r rune) rune {
	switch {
	case r >= 0x4e00 && r <= 0x9fa5:
	case r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)):
	case r == '\n' || r == ' ' || r == '\t':
	case unicode.IsSpace(r):
		return ' '
	case strings.ContainsRune(keptPunctuation, r):
	default:
		return -1
	}
	return r
}

// Segment cleans content and packs paragraphs, then sentences of oversized
// paragraphs, into units of at most maxUnitLength runes. A single sentence
// with no split point may exceed the limit.
func Segment(content string, maxUnitLength int) []models.TextUnit {
	if maxUnitLength <= 0 {
		maxUnitLength = DefaultMaxUnitLength
	}
	cleaned := Clean(content)
	if cleaned == "" {
		return nil
	}

	acc := &accumulator{max: maxUnitLength}
	for _, p := range paragraphGap.Split(cleaned, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if runeLen(p) <= maxUnitLength {
			acc.add(p, "\n")
			continue
		}
		acc.flush()
		for i, s := range splitSentences(p) {
			sep := ""
			if i > 0 && s.spaced {
				sep = " "
			}
			acc.add(s.text, sep)
		}
	}
	acc.flush()
	return acc.units
}

type accumulator struct {
	b     strings.Builder
	n     int
	max   int
	units []models.TextUnit
}

func (a *accumulator) add(piece, sep string) {
	pl := runeLen(piece)
	sl := runeLen(sep)
	if a.n > 0 && a.n+sl+pl > a.max {
		a.flush()
	}
	if a.n > 0 {
		a.b.WriteString(sep)
		a.n += sl
	}
	a.b.WriteString(piece)
	a.n += pl
}

func (a *accumulator) flush() {
	if text := strings.TrimSpace(a.b.String()); text != "" {
		a.units = append(a.units, models.NewTextUnit(len(a.units), text))
	}
	a.b.Reset()
	a.n = 0
}

type sentence struct {
	text string
	// whitespace separated it from the previous sentence in the source
	spaced bool
}

func isTerminator(r rune) bool {
	return strings.ContainsRune("。！？.!?", r)
}

func isCloser(r rune) bool {
	return strings.ContainsRune("\"'）)】》]", r)
}

// splitSentences cuts after runs of terminators (plus closing quotes and
// brackets). A '.' between two digits is not a terminator.
func splitSentences(p string) []sentence {
	rs := []rune(p)
	var out []sentence
	start := 0
	spaced := false
	for i := 0; i < len(rs); i++ {
		if !isTerminator(rs[i]) {
			continue
		}
		if rs[i] == '.' && i > 0 && i+1 < len(rs) && unicode.IsDigit(rs[i-1]) && unicode.IsDigit(rs[i+1]) {
			continue
		}
		end := i + 1
		for end < len(rs) && (isTerminator(rs[end]) || isCloser(rs[end])) {
			end++
		}
		next := end
		for next < len(rs) && unicode.IsSpace(rs[next]) {
			next++
		}
		if text := strings.TrimSpace(string(rs[start:end])); text != "" {
			out = append(out, sentence{text: text, spaced: spaced})
		}
		spaced = next > end
		start = next
		i = next - 1
	}
	if start < len(rs) {
		if text := strings.TrimSpace(string(rs[start:])); text != "" {
			out = append(out, sentence{text: text, spaced: spaced})
		}
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
