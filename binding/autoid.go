package binding

import (
	"reflect"
	"regexp"
	"runtime"
	"strings"
	"unicode"

	"github.com/edgecomet/apcore/core"
)

// moduleIDPattern is core.ModuleIDPattern compiled once.
var moduleIDPattern = regexp.MustCompile(core.ModuleIDPattern)

// autoID generates a module id from fn's fully-qualified runtime name
// when the caller does not supply one, per spec.md §4.9: "joining the
// defining namespace and qualified name of the function, lowercasing,
// replacing non-alphanumerics with _". Go's module id grammar also
// requires every dot-segment to start with a letter (spec.md §6), so a
// segment left digit- or underscore-leading after normalization is
// given a leading "n" rather than "_" — the spec's own prefix character
// doesn't satisfy its own grammar once ported to Go's stricter pattern.
func autoID(fn reflect.Value) string {
	name := runtimeName(fn)
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '.' })
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if seg := normalizeSegment(p); seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return "binding.anonymous_function"
	}
	return strings.Join(segments, ".")
}

func runtimeName(fn reflect.Value) string {
	pc := fn.Pointer()
	rf := runtime.FuncForPC(pc)
	if rf == nil {
		return "anonymous"
	}
	name := rf.Name()
	name = strings.TrimSuffix(name, "-fm") // method value closure suffix
	return name
}

func normalizeSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return ""
	}
	if out[0] < 'a' || out[0] > 'z' {
		out = "n" + out
	}
	return out
}
