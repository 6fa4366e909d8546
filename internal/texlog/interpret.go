// Package texlog turns raw TeX engine output into a structured Diagnostic.
// The engine's log format is free text; classification is a priority-ordered
// signature match that degrades to Unknown rather than failing.
package texlog

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Kind classifies a diagnostic extracted from engine output.
type Kind string

const (
	KindMissingResource  Kind = "missing_resource"
	KindUndefinedControl Kind = "undefined_control_sequence"
	KindUnmatchedEnv     Kind = "unmatched_environment"
	KindEmergencyStop    Kind = "emergency_stop"
	KindSyntaxError      Kind = "syntax_error"
	KindUnknown          Kind = "unknown"
)

// Diagnostic is the structured failure description derived from a pass log.
type Diagnostic struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

var (
	// -file-line-error makes errors look like "./document.tex:12: message".
	fileLineErrRe = regexp.MustCompile(`(?m)^(\./[^\s:]+|[^\s:]+\.tex):(\d+): (.+)$`)
	// Classic "l.<n>" location marker following a "! ..." error line.
	lineMarkerRe = regexp.MustCompile(`(?m)^l\.(\d+)`)

	missingFileRe = regexp.MustCompile(`(?m)^! LaTeX Error: File ` + "`" + `([^']+)' not found`)
	missingPkgRe  = regexp.MustCompile(`(?m)LaTeX Error: File ` + "`" + `([^']+)\.sty' not found`)
	missingFontRe = regexp.MustCompile(`(?m)^! Font \S+ not loadable|! Package fontspec Error`)
	undefinedRe   = regexp.MustCompile(`(?m)^! Undefined control sequence`)
	envBeginEndRe = regexp.MustCompile(`(?m)\\begin\{([^}]+)\} on input line (\d+) ended by \\end\{([^}]+)\}`)
	envUnmatchRe  = regexp.MustCompile(`(?m)^! LaTeX Error: \\begin\{([^}]+)\}`)
	emergencyRe   = regexp.MustCompile(`(?m)^! Emergency stop`)
	bangLineRe    = regexp.MustCompile(`(?m)^! (.+)$`)
)

// Interpret classifies raw engine output. It never fails: when no signature
// matches, it falls back to Unknown with the last non-empty output line.
func Interpret(output []byte) Diagnostic {
	text := decode(output)

	if m := missingPkgRe.FindStringSubmatch(text); m != nil {
		return locate(text, Diagnostic{
			Kind:    KindMissingResource,
			Message: "missing package: " + m[1],
		})
	}
	if m := missingFileRe.FindStringSubmatch(text); m != nil {
		return locate(text, Diagnostic{
			Kind:    KindMissingResource,
			Message: "file not found: " + m[1],
		})
	}
	if missingFontRe.MatchString(text) {
		return locate(text, Diagnostic{
			Kind:    KindMissingResource,
			Message: firstBangLine(text, "font or package resource not loadable"),
		})
	}
	if undefinedRe.MatchString(text) {
		return locate(text, Diagnostic{
			Kind:    KindUndefinedControl,
			Message: "undefined control sequence" + undefinedDetail(text),
		})
	}
	if m := envBeginEndRe.FindStringSubmatch(text); m != nil {
		line, _ := strconv.Atoi(m[2])
		return Diagnostic{
			Kind:    KindUnmatchedEnv,
			Message: "\\begin{" + m[1] + "} ended by \\end{" + m[3] + "}",
			Line:    line,
		}
	}
	if m := envUnmatchRe.FindStringSubmatch(text); m != nil {
		return locate(text, Diagnostic{
			Kind:    KindUnmatchedEnv,
			Message: "unmatched environment \\begin{" + m[1] + "}",
		})
	}
	if emergencyRe.MatchString(text) {
		return locate(text, Diagnostic{
			Kind:    KindEmergencyStop,
			Message: firstBangLine(text, "emergency stop"),
		})
	}
	if bangLineRe.MatchString(text) {
		return locate(text, Diagnostic{
			Kind:    KindSyntaxError,
			Message: firstBangLine(text, "syntax error"),
		})
	}

	return Diagnostic{Kind: KindUnknown, Message: lastNonEmptyLine(text)}
}

// HasErrorMarker reports whether the output carries a fatal error signature.
// Used to separate real document failures from warning-only non-zero exits.
func HasErrorMarker(output []byte) bool {
	text := decode(output)
	return bangLineRe.MatchString(text) || fileLineErrRe.MatchString(text)
}

// decode normalizes engine output to a string. TeX logs are frequently not
// valid UTF-8 (8-bit font names, latin-1 hyphenation fragments); those are
// decoded as ISO 8859-1 so no byte is lost.
func decode(output []byte) string {
	if utf8.Valid(output) {
		return string(output)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(output)
	if err != nil {
		return string(output)
	}
	return string(decoded)
}

// locate fills in file/line from -file-line-error or l.<n> markers.
func locate(text string, d Diagnostic) Diagnostic {
	if m := fileLineErrRe.FindStringSubmatch(text); m != nil {
		d.File = strings.TrimPrefix(m[1], "./")
		d.Line, _ = strconv.Atoi(m[2])
		return d
	}
	if m := lineMarkerRe.FindStringSubmatch(text); m != nil {
		d.Line, _ = strconv.Atoi(m[1])
	}
	return d
}

// undefinedDetail extracts the offending control sequence from the
// "l.<n> \foo" context line that follows an undefined-control-sequence error.
func undefinedDetail(text string) string {
	idx := undefinedRe.FindStringIndex(text)
	if idx == nil {
		return ""
	}
	rest := text[idx[1]:]
	for _, line := range strings.Split(rest, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "l.") {
			if i := strings.LastIndex(line, "\\"); i >= 0 {
				return ": " + line[i:]
			}
		}
	}
	return ""
}

func firstBangLine(text, fallback string) string {
	if m := bangLineRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return fallback
}

func lastNonEmptyLine(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "no output captured"
}
