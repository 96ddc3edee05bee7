package fuse

import (
	"sort"
	"strings"
)

var safetyKeywords = []string{"safety", "warning", "danger", "caution"}
var procedureKeywords = []string{"procedure", "step", "instruction", "how to"}

// ExtractTags derives filterable tags from unit text: machine-code
// tags from the configured keyword map, plus "safety" and "procedure"
// markers.
func ExtractTags(text string, machineKeywords map[string]string) []string {
	lower := strings.ToLower(text)

	var tags []string
	for keyword, tag := range machineKeywords {
		if strings.Contains(lower, keyword) {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)

	if containsAny(lower, safetyKeywords) {
		tags = append(tags, "safety")
	}
	if containsAny(lower, procedureKeywords) {
		tags = append(tags, "procedure")
	}

	return tags
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
