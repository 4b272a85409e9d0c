package mission

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	idPrefix     = "RECON"
	idDateLayout = "20060102"
	maxSlugLen   = 48
)

// NewID derives a filesystem-safe mission identifier from a target name and a
// date, e.g. "Dún Aonghasa" on 2026-10-17 becomes "RECON_DUN_AONGHASA_20261017".
func NewID(targetName string, date time.Time) string {
	return fmt.Sprintf("%s_%s_%s", idPrefix, slug(targetName), date.UTC().Format(idDateLayout))
}

func slug(s string) string {
	var sb strings.Builder
	pendingSep := false
	for _, r := range foldAccents(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingSep && sb.Len() > 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToUpper(r))
			pendingSep = false
			continue
		}
		pendingSep = true
	}

	out := sb.String()
	if len(out) > maxSlugLen {
		out = strings.TrimRight(out[:maxSlugLen], "_")
	}
	if out == "" {
		return "TARGET"
	}
	return out
}

var accentFolds = map[rune]rune{
	'á': 'a', 'à': 'a', 'â': 'a', 'ä': 'a', 'ã': 'a', 'å': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i',
	'ó': 'o', 'ò': 'o', 'ô': 'o', 'ö': 'o', 'õ': 'o', 'ø': 'o',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u',
	'ñ': 'n', 'ç': 'c', 'ý': 'y',
}

func foldAccents(s string) []rune {
	runes := []rune(s)
	for i, r := range runes {
		if f, ok := accentFolds[unicode.ToLower(r)]; ok {
			runes[i] = f
		}
	}
	return runes
}

// ParseNumPoints parses a waypoint count, rejecting anything that is not a
// positive whole number ("8", "8.0" are accepted; "2.5", "-3", "x" are not).
func ParseNumPoints(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, NewInputError("num_points", fmt.Sprintf("must be positive: %d given", n))
		}
		return n, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, NewInputError("num_points", fmt.Sprintf("not a number: %q", s))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, NewInputError("num_points", fmt.Sprintf("must be a whole number: %q given", s))
	}
	if f <= 0 || f > math.MaxInt32 {
		return 0, NewInputError("num_points", fmt.Sprintf("out of range: %q given", s))
	}
	return int(f), nil
}
