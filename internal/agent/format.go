package agent

import (
	"fmt"
	"strings"
	"time"
)

const welcomeMessage = "Welcome to the News Copilot! I'm here to help you stay informed with the latest news. " +
	"Ask me to summarize news on any topic, and I'll provide you with a concise summary.\n\n" +
	"You can also specify topics and a timespan for your query. For example:\n" +
	"- 'Tell me about climate change topics: environment, policy, technology'\n" +
	"- 'Latest tech news timespan: 48h'\n" +
	"- 'Updates on AI research topics: machine learning, neural networks timespan: 7d'"

// FormatSummary renders a successful summary as the Markdown block the user
// sees: heading, topics line ("General" when none), timespan, body, and a
// generation timestamp footer.
func FormatSummary(req SummaryRequest, summary string, generatedAt time.Time) string {
	topics := "General"
	if len(req.Topics) > 0 {
		topics = strings.Join(req.Topics, ", ")
	}

	return fmt.Sprintf(
		"# News Summary: %s\n\n"+
			"**Topics:** %s\n"+
			"**Timespan:** %s\n\n"+
			"%s\n\n"+
			"---\n"+
			"*Summary generated at %s*",
		req.Query, topics, req.Timespan, summary, generatedAt.Format("2006-01-02 15:04:05"),
	)
}

// explainFailure expands an error-shaped summary result with the likely causes
// before it is shown to the user.
func explainFailure(text string) string {
	return fmt.Sprintf(
		"%s\n\n"+
			"This could be due to one of the following reasons:\n"+
			"1. The Lucid API server might be unavailable\n"+
			"2. There might be an issue with your API key\n"+
			"3. The query might be too complex or contain unsupported characters\n\n"+
			"Please try again with a simpler query, or try again later.",
		text,
	)
}
