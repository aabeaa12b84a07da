package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/DeafMist/nse-radar/internal/models"
)

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

var (
	whitespace  = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "in": {}, "for": {},
	"of": {}, "and": {}, "or": {}, "on": {}, "with": {}, "by": {},
	"is": {}, "are": {}, "has": {}, "have": {}, "that": {}, "this": {},
	"from": {}, "under": {}, "regulation": {}, "sebi": {}, "company": {},
	"informed": {}, "exchange": {}, "limited": {}, "ltd": {},
}

// NormalizeText decodes HTML entities and squeezes whitespace, keeping punctuation.
func NormalizeText(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = whitespace.ReplaceAllString(decoded, " ")
	return strings.TrimSpace(decoded)
}

// RemoveURLs removes all URLs from the input text.
func RemoveURLs(input string) string {
	return urlRegex.ReplaceAllString(input, " ")
}

// CleanText strips HTML entities, punctuation, squeezes whitespace, and removes URLs.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = RemoveURLs(decoded)
	decoded = punctuation.ReplaceAllString(decoded, " ")
	decoded = whitespace.ReplaceAllString(decoded, " ")
	decoded = strings.TrimSpace(decoded)
	return decoded
}

// ExtractKeywords returns the most frequent words that are not stop-words.
func ExtractKeywords(text string, limit, minLen int) []string {
	clean := strings.ToLower(CleanText(text))
	if clean == "" {
		return nil
	}

	freq := make(map[string]int)
	for _, token := range strings.Fields(clean) {
		token = strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len([]rune(token)) < minLen {
			continue
		}
		if _, skip := stopwords[token]; skip {
			continue
		}
		if _, err := strconv.Atoi(token); err == nil {
			continue
		}
		freq[token]++
	}

	if len(freq) == 0 {
		return nil
	}

	type kv struct {
		word  string
		count int
	}

	pairs := make([]kv, 0, len(freq))
	for word, count := range freq {
		pairs = append(pairs, kv{word: word, count: count})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count == pairs[j].count {
			return pairs[i].word < pairs[j].word
		}
		return pairs[i].count > pairs[j].count
	})

	max := limit
	if max <= 0 || max > len(pairs) {
		max = len(pairs)
	}

	keywords := make([]string, 0, max)
	for i := 0; i < max; i++ {
		keywords = append(keywords, pairs[i].word)
	}

	return keywords
}

// DocumentID hashes the natural key so re-ingested announcements keep their ID.
func DocumentID(rec models.AnnouncementRecord) string {
	s := sha1.Sum([]byte(rec.Key()))
	return hex.EncodeToString(s[:])
}

// Fingerprint hashes the key and every mutable field. It changes whenever an
// upsert would change the stored row.
func Fingerprint(rec models.AnnouncementRecord) string {
	parts := []string{
		rec.Key(),
		str(rec.CompanyName),
		str(rec.Details),
		ts(rec.ReceiptTime),
		ts(rec.DisseminationTime),
		str(rec.AttachmentURL),
		str(rec.FileSize),
	}
	if rec.DifferenceSeconds != nil {
		parts = append(parts, strconv.FormatInt(*rec.DifferenceSeconds, 10))
	} else {
		parts = append(parts, "")
	}
	s := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(s[:])
}

func str(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func ts(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}
