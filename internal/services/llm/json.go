package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.+?)```")

// ExtractJSON decodes a JSON object from model output. It tries the raw text,
// then a fenced code block, then the outermost braces.
func ExtractJSON(text string, v interface{}) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("empty model output")
	}

	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	if m := fencePattern.FindStringSubmatch(text); m != nil {
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), v); err == nil {
			return nil
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), v); err == nil {
			return nil
		}
	}

	return fmt.Errorf("no JSON object found in model output")
}
