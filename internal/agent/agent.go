// Package agent implements the news copilot: one conversation turn takes the
// latest user message, ensures a service credential, asks the insight service
// for a summary, and replies through the hosting runtime. A turn never ends
// without a reply.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"lucid-agent/internal/database"
	"lucid-agent/internal/lucid"
	"lucid-agent/internal/runtime"
)

type Agent struct {
	baseURL string
	apiKey  string
}

// New returns an agent talking to the insight service at baseURL. A non-empty
// apiKey seeds threads that have no cached credential yet; it is health-checked
// like a cached key and replaced if the service rejects it.
func New(baseURL, apiKey string) *Agent {
	return &Agent{baseURL: baseURL, apiKey: apiKey}
}

// Run executes one turn against the given environment. Every failure path
// funnels into a user-facing reply; errors are logged, not returned.
func (a *Agent) Run(ctx context.Context, env runtime.Environment) {
	if err := a.runTurn(ctx, env); err != nil {
		slog.Error("agent turn failed", "thread_id", env.Thread().ID, "error", err)

		apology := fmt.Sprintf(
			"An error occurred while processing your request: %v\n\n"+
				"Please try again with a different query, or contact support if the issue persists.",
			err,
		)
		if replyErr := env.AddReply(ctx, apology); replyErr != nil {
			slog.Error("could not deliver error reply", "thread_id", env.Thread().ID, "error", replyErr)
		}
		if inputErr := env.RequestUserInput(ctx); inputErr != nil {
			slog.Error("could not request user input", "thread_id", env.Thread().ID, "error", inputErr)
		}
	}
}

func (a *Agent) runTurn(ctx context.Context, env runtime.Environment) error {
	state := a.loadState(ctx, env)

	outcome, client := a.EnsureCredential(ctx, &state)
	if outcome.Status != CredentialValid {
		// Persist a freshly issued (or degraded) key immediately so it
		// survives even if the rest of the turn fails.
		a.saveState(ctx, env, state)
	}
	slog.Info("credential ready", "thread_id", env.Thread().ID, "status", outcome.Status.String())

	messages, err := env.ListMessages(ctx)
	if err != nil {
		return err
	}

	if len(messages) == 0 {
		if err := env.AddReply(ctx, welcomeMessage); err != nil {
			return err
		}
		return env.RequestUserInput(ctx)
	}

	last := messages[len(messages)-1]
	if last.Role != database.RoleUser {
		if err := env.AddReply(ctx, "Please provide a query for news summarization."); err != nil {
			return err
		}
		return env.RequestUserInput(ctx)
	}

	req := ParseRequest(last.Content)
	slog.Info("generating news summary", "query", req.Query, "topics", req.Topics, "timespan", req.Timespan)

	// Interim reply so the user is not left staring at silence while the
	// summary generates.
	if err := env.AddReply(ctx, "Processing your request... This may take a moment."); err != nil {
		return err
	}

	result := client.CreateNewsSummary(ctx, req.Query, req.Topics, req.Timespan)

	var response string
	switch result.Status {
	case lucid.StatusFailed, lucid.StatusUnavailable:
		response = explainFailure(result.Text)
	default:
		response = FormatSummary(req, result.Text, time.Now())
	}

	a.saveState(ctx, env, state)

	if err := env.AddReply(ctx, response); err != nil {
		return err
	}

	for _, name := range []string{"result.html", "result.txt"} {
		if err := env.WriteFile(ctx, name, []byte(response)); err != nil {
			slog.Error("could not write artifact", "thread_id", env.Thread().ID, "name", name, "error", err)
		}
	}

	return env.RequestUserInput(ctx)
}

// loadState reads the thread's session blob, falling back to the default state
// on any error so the turn can proceed. Threads without a cached credential
// start from the agent's configured key, if any.
func (a *Agent) loadState(ctx context.Context, env runtime.Environment) State {
	state := DefaultState()
	state.APIKey = a.apiKey
	if name := env.Thread().UserName; name != "" {
		state.UserName = name
	}

	raw, err := env.GetAgentData(ctx, env.Thread().StateKey())
	if err != nil {
		slog.Error("error loading session state, using defaults", "thread_id", env.Thread().ID, "error", err)
		return state
	}
	if raw == nil {
		return state
	}

	if err := json.Unmarshal(raw, &state); err != nil {
		slog.Error("error decoding session state, using defaults", "thread_id", env.Thread().ID, "error", err)
		fallback := DefaultState()
		fallback.APIKey = a.apiKey
		return fallback
	}
	if state.UserName == "" {
		state.UserName = DefaultUserName
	}
	if state.APIKey == "" {
		state.APIKey = a.apiKey
	}
	return state
}

func (a *Agent) saveState(ctx context.Context, env runtime.Environment, state State) {
	raw, err := json.Marshal(state)
	if err != nil {
		slog.Error("error encoding session state", "thread_id", env.Thread().ID, "error", err)
		return
	}

	if err := env.SaveAgentData(ctx, env.Thread().StateKey(), raw); err != nil {
		slog.Error("error saving session state", "thread_id", env.Thread().ID, "error", err)
	}
}
