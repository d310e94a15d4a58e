package llm

import (
	"encoding/json"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantKey string // checked in the parsed object when non-empty
		wantErr bool
	}{
		{
			name:    "plain route classification",
			input:   `{"route": "execute_step", "confidence": 0.9}`,
			wantKey: "route",
		},
		{
			name:    "fenced route classification",
			input:   "```json\n{\"route\": \"new_goal\", \"confidence\": 0.82}\n```",
			wantKey: "route",
		},
		{
			name:    "fenced block with trailing prose",
			input:   "```json\n{\"route\": \"answer_question\", \"confidence\": 0.7}\n```\n\nThe user is asking about an earlier result.",
			wantKey: "route",
		},
		{
			name: "comments inside the object",
			input: "```json\n{\n  \"route\": \"resolve_checkpoint\",  // matches option 2\n  \"confidence\": 0.75\n}\n```",
			wantKey: "route",
		},
		{
			name: "comments and trailing commas",
			input: "```json\n{\n  \"sources\": [\n    \"openalex\",  // primary\n    \"pubmed\",    // clinical\n  ]\n}\n```",
			wantKey: "sources",
		},
		{
			name:    "DOI URL survives",
			input:   `{"url": "https://doi.org/10.1038/s41586-023-06555-x"}`,
			wantKey: "url",
		},
		{
			name:    "URL with a comment after it",
			input:   "{\"url\": \"https://doi.org/10.1038/x\"} // source link",
			wantKey: "url",
		},
		{
			name: "annotated checkpoint reasoning",
			input: "The first search came back empty, so I'd offer these paths forward.\n\n```json\n{\n  \"reason\": \"zero_results\",\n  \"options\": [\n    {\"label\": \"Broaden the query\", \"action\": \"continue\"},      // retry wider\n    {\"label\": \"Skip remaining steps\", \"action\": \"skip_remaining\"},\n    {\"label\": \"Export current findings\", \"action\": \"export\"},\n  ]\n}\n```\n\nLet me know which you'd prefer.",
			wantKey: "options",
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: true,
		},
		{
			name:    "prose with no JSON",
			input:   "I could not classify that turn with any confidence.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ExtractJSON(tt.input)

			if tt.wantErr {
				if result != "" {
					t.Errorf("expected empty result, got: %s", result)
				}
				return
			}
			if result == "" {
				t.Fatal("expected JSON result, got empty string")
			}

			var parsed map[string]any
			if err := json.Unmarshal([]byte(result), &parsed); err != nil {
				t.Fatalf("result is not valid JSON: %v\nresult: %s", err, result)
			}
			if tt.wantKey != "" {
				if _, ok := parsed[tt.wantKey]; !ok {
					t.Errorf("expected key %q in parsed JSON, got: %s", tt.wantKey, result)
				}
			}
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
	}{
		{
			name:    "plain task array",
			input:   `[{"description": "search OpenAlex", "tool": "openalex"}, {"description": "check ClinGen", "tool": "clingen"}]`,
			wantLen: 2,
		},
		{
			name:    "fenced task array",
			input:   "Here is the plan:\n\n```json\n[\n  {\"description\": \"search recent preprints\", \"tool\": \"biorxiv\"},\n  {\"description\": \"pull clinical abstracts\", \"tool\": \"pubmed\"}\n]\n```",
			wantLen: 2,
		},
		{
			name:    "array with comments and trailing comma",
			input:   "```json\n[\n  {\"label\": \"Continue as planned\", \"action\": \"continue\"},  // safest\n  {\"label\": \"Abort research\", \"action\": \"abort\"},\n]\n```",
			wantLen: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ExtractJSONArray(tt.input)
			if result == "" {
				t.Fatal("expected result, got empty string")
			}

			var parsed []any
			if err := json.Unmarshal([]byte(result), &parsed); err != nil {
				t.Fatalf("result is not a valid JSON array: %v\nresult: %s", err, result)
			}
			if len(parsed) != tt.wantLen {
				t.Errorf("array length = %d, want %d", len(parsed), tt.wantLen)
			}
		})
	}
}

func TestStripLineComment(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no comment",
			input:    `  "tool": "openalex",`,
			expected: `  "tool": "openalex",`,
		},
		{
			name:     "trailing comment",
			input:    `  "tool": "clingen",  // variant classifications`,
			expected: `  "tool": "clingen",`,
		},
		{
			name:     "URL in string preserved",
			input:    `  "url": "https://api.openalex.org/works",`,
			expected: `  "url": "https://api.openalex.org/works",`,
		},
		{
			name:     "URL with trailing comment",
			input:    `  "url": "https://doi.org/10.1093/nar/gkab1112",  // the record`,
			expected: `  "url": "https://doi.org/10.1093/nar/gkab1112",`,
		},
		{
			name:     "whole line comment",
			input:    `  // option ordering matters`,
			expected: ``,
		},
		{
			name:     "escaped quote in string",
			input:    `  "title": "the \"gold standard\" //assay",  // comment`,
			expected: `  "title": "the \"gold standard\" //assay",`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripLineComment(tt.input); got != tt.expected {
				t.Errorf("stripLineComment(%q)\ngot:  %q\nwant: %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestScrubProducesValidJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "trailing comma in array",
			input: `{"tools": ["openalex", "pubmed",]}`,
		},
		{
			name:  "trailing comma in object",
			input: `{"route": "clarify", "confidence": 0.4,}`,
		},
		{
			name:  "comments and trailing commas together",
			input: "{\n  \"tools\": [\n    \"openalex\",  // primary\n    \"clingen\",   // variants\n  ]\n}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := scrub(tt.input)

			var parsed any
			if err := json.Unmarshal([]byte(result), &parsed); err != nil {
				t.Fatalf("scrubbed JSON is invalid: %v\nresult: %s", err, result)
			}
		})
	}
}
