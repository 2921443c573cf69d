// Package extract pulls raw module references out of source text.
package extract

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// prefixes is the closed set of qualifying roots a reference may carry.
var prefixes = []string{"crate::", "gitai::", "super::", "self::"}

// space matches Unicode whitespace: RE2's \s alone is ASCII-only and omits
// vertical tab, so no-break and other Unicode spaces are added explicitly.
const space = `[\s\v\p{Z}\x{1c}-\x{1f}\x{85}]`

var usePattern = regexp.MustCompile(`use` + space + `+(crate::|gitai::|super::|self::)?([a-zA-Z0-9_:]+)`)

// DecodeError reports source bytes that are not valid UTF-8.
type DecodeError struct {
	// Offset is the byte index of the first invalid sequence.
	Offset int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid UTF-8 at byte %d", e.Offset)
}

// Decode validates data as UTF-8 source text.
func Decode(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", &DecodeError{Offset: firstInvalid(data)}
	}
	return string(data), nil
}

func firstInvalid(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return len(data)
}

// Extract returns every module reference in text, in order of occurrence.
// Duplicates are kept. Each result is the matched prefix (possibly empty)
// joined with the identifier path, e.g. "crate::domain::entities::Foo".
func Extract(text string) []string {
	matches := usePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, m[1]+m[2])
	}
	return refs
}

// Prefixes returns the recognised qualifying prefixes.
func Prefixes() []string {
	return append([]string(nil), prefixes...)
}
