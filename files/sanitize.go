package files

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

var pathSeparators = strings.NewReplacer("/", " ", "\\", " ")

// SanitizeName turns a client supplied filename into a safe single path
// component: accents are folded to ASCII, separators and whitespace become
// underscores, anything else outside [A-Za-z0-9_.-] is dropped and leading
// or trailing dots and underscores are trimmed. The result may be empty.
func SanitizeName(name string) string {
	decomposed := norm.NFKD.String(name)

	var b strings.Builder
	for _, r := range decomposed {
		if r < utf8.RuneSelf {
			b.WriteRune(r)
		}
	}

	name = pathSeparators.Replace(b.String())
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeNameChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}
