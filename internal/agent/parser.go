package agent

import "strings"

const (
	topicsMarker   = "topics:"
	timespanMarker = "timespan:"

	defaultTimespan = "24h"
)

// SummaryRequest is what a raw user message parses into. Constructed fresh per
// message, never persisted.
type SummaryRequest struct {
	Query    string
	Topics   []string
	Timespan string
}

// ParseRequest extracts query, topics, and timespan from a raw user message.
// The legacy contract is a case-insensitive substring search over the whole
// message, so queries and topics come out lower-cased: everything before
// "topics:" is the query, everything after it (up to a later "timespan:") is a
// comma-separated topic list, and the first whitespace-delimited token after
// "timespan:" is the timespan. Malformed marker text degrades to best-effort
// extraction; there is no validation.
func ParseRequest(message string) SummaryRequest {
	lower := strings.ToLower(message)

	req := SummaryRequest{
		Query:    strings.TrimSpace(lower),
		Timespan: defaultTimespan,
	}

	topicsIdx := strings.Index(lower, topicsMarker)
	timespanIdx := strings.Index(lower, timespanMarker)

	if topicsIdx >= 0 {
		req.Query = strings.TrimSpace(lower[:topicsIdx])

		topicsPart := lower[topicsIdx+len(topicsMarker):]
		if timespanIdx > topicsIdx {
			topicsPart = lower[topicsIdx+len(topicsMarker) : timespanIdx]
		}

		for _, topic := range strings.Split(topicsPart, ",") {
			if topic = strings.TrimSpace(topic); topic != "" {
				req.Topics = append(req.Topics, topic)
			}
		}
	}

	if timespanIdx >= 0 {
		// Only claim the prefix as the query if "topics:" hasn't already.
		if topicsIdx < 0 || topicsIdx > timespanIdx {
			req.Query = strings.TrimSpace(lower[:timespanIdx])
		}

		if fields := strings.Fields(lower[timespanIdx+len(timespanMarker):]); len(fields) > 0 {
			req.Timespan = fields[0]
		}
	}

	return req
}
