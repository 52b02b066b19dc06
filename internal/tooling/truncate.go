package tooling

import "fmt"

// DefaultOutputLimit is applied to tools with no entry in
// tool_output_limits.
const DefaultOutputLimit = 4000

// truncate shortens content to limit runes, appending a textual marker
// noting how many characters were dropped. The
// event-bus copy of the output is never passed through this function.
func truncate(content string, limit int) string {
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	dropped := len(runes) - limit
	return string(runes[:limit]) + fmt.Sprintf("\n...[truncated %d characters]", dropped)
}

func outputLimitFor(limits map[string]int, name string) int {
	if limits == nil {
		return DefaultOutputLimit
	}
	if n, ok := limits[name]; ok && n > 0 {
		return n
	}
	return DefaultOutputLimit
}
