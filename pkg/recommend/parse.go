package recommend

import (
	"regexp"
	"strings"
)

// listMarker matches list prefixes such as "1. ", "2) " or "- ".
var listMarker = regexp.MustCompile(`^(?:\d+[.)]|[-*•])\s+`)

// ParseRecommendations turns generated text into recommendations, one per
// non-empty line. A line of the form "Title - reason" is split on the first
// " - "; any other line becomes a title with an empty reason.
func ParseRecommendations(content string) []Recommendation {
	var recommendations []Recommendation
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}

		title, reason, found := strings.Cut(line, " - ")
		title = strings.TrimSpace(title)
		if !found || title == "" {
			recommendations = append(recommendations, Recommendation{Title: line})
			continue
		}
		recommendations = append(recommendations, Recommendation{
			Title:  strings.Trim(title, `"*`),
			Reason: strings.TrimSpace(reason),
		})
	}
	return recommendations
}
