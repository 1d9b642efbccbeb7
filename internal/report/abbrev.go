package report

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// typeCodes maps the site's room type strings to the two-letter codes used
// in report labels. An unknown type is a reportable error, never a silent
// default.
var typeCodes = map[string]string{
	"Wohngemeinschaft": "WG",
	"Einzelzimmer":     "EZ",
	"Einzelapartment":  "EA",
}

// tokenRe picks a short leading word plus any trailing digit group out of a
// free-form room description, e.g. "Turmstrasse 25-27" -> "Turms 25-27".
var tokenRe = regexp.MustCompile(`(?i)^([a-zäöüß]{2,5})[a-zäöüß\s]*([\d-]*)`)

const abbrevWidth = 11

// AbbrevRoom builds the fixed-width room label: an 11-column abbreviated
// description followed by the type code. The abbreviation prefers a
// parenthesized segment of the description, then the leading token + digits
// pattern, then a plain prefix.
func AbbrevRoom(typeStr, description string) (string, error) {
	code, ok := typeCodes[typeStr]
	if !ok {
		return "", fmt.Errorf("unknown room type %q", typeStr)
	}

	runes := []rune(description)
	short := ""
	if i := lastIndexRune(runes, '('); i >= 0 && i < len(runes)-1 {
		short = string(runes[i+1 : len(runes)-1])
	} else if m := tokenRe.FindStringSubmatch(description); m != nil {
		short = strings.TrimSpace(m[1] + " " + m[2])
	} else if len(runes) > 10 {
		short = string(runes[:10])
	} else {
		short = description
	}

	return padRight(short, abbrevWidth) + " " + code, nil
}

// FormatDelta renders an ETA drift value with an explicit sign, the given
// unit suffix, and a fixed width of six columns. nil renders as "?".
func FormatDelta(v *int, suffix string) string {
	var s string
	switch {
	case v == nil:
		s = "?"
	case *v == 0:
		s = "0"
	case *v > 0:
		s = "+" + strconv.Itoa(*v)
	default:
		s = "-" + strconv.Itoa(-*v)
	}
	return fmt.Sprintf("%6s", s+suffix)
}

func lastIndexRune(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

func padRight(s string, width int) string {
	if n := len([]rune(s)); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
