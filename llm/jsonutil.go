package llm

import (
	"regexp"
	"strings"
)

// Model output rarely arrives as clean JSON. Route classifications,
// plan task arrays, and checkpoint option lists come back wrapped in
// markdown fences, annotated with // comments, or trailing prose, and
// the structured part has to be dug out before unmarshalling.
var (
	fencedObject  = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	bareObject    = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	fencedArray   = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\[.*\\])\\s*```")
	bareArray     = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON pulls a JSON object out of model output, preferring a
// fenced block over a bare object, and scrubs comment and
// trailing-comma artifacts. Returns "" when no object is found.
func ExtractJSON(content string) string {
	if m := fencedObject.FindStringSubmatch(content); len(m) > 1 {
		return scrub(m[1])
	}
	if m := bareObject.FindString(content); m != "" {
		return scrub(m)
	}
	return ""
}

// ExtractJSONArray does the same for a JSON array, the shape planner
// task lists and checkpoint options arrive in.
func ExtractJSONArray(content string) string {
	if m := fencedArray.FindStringSubmatch(content); len(m) > 1 {
		return scrub(m[1])
	}
	if m := bareArray.FindString(content); m != "" {
		return scrub(m)
	}
	return ""
}

// scrub strips // comments outside string values and trailing commas,
// both of which models emit despite being told not to.
func scrub(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return trailingComma.ReplaceAllString(strings.Join(lines, "\n"), "$1")
}

// stripLineComment drops a // comment from a line while leaving //
// inside string values alone, so DOI and article URLs survive:
//
//	"tool": "openalex",        // literature search  → "tool": "openalex",
//	"url": "https://doi.org/x" // source             → "url": "https://doi.org/x"
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}

	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		switch {
		case escaped:
			escaped = false
		case line[i] == '\\' && inString:
			escaped = true
		case line[i] == '"':
			inString = !inString
		case !inString && line[i] == '/' && i+1 < len(line) && line[i+1] == '/':
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
