package mqtt

import "strings"

// TopicMatches reports whether topic matches the subscription filter.
// Filters use the usual wildcards: + matches one level, # matches any
// remaining levels and must be last.
func TopicMatches(filter, topic string) bool {
	if filter == topic {
		return true
	}

	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")

	for i, level := range fp {
		if level == "#" {
			return i == len(fp)-1
		}
		if i >= len(tp) {
			return false
		}
		if level == "+" {
			continue
		}
		if level != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}
