package lucid

// SummaryStatus classifies the outcome of a summary request. The legacy
// contract is that summary calls never fail outright: transport and service
// errors are folded into a user-facing result instead of an error return.
type SummaryStatus int

const (
	// StatusSucceeded means the insight was generated and its content retrieved.
	StatusSucceeded SummaryStatus = iota

	// StatusFailed means the service reported success=false.
	StatusFailed

	// StatusUnavailable means the request never produced a usable response
	// (connection failure or a non-2xx status).
	StatusUnavailable

	// StatusPending means the service returned an insight id but the follow-up
	// retrieval failed or came back empty. The id is surfaced to the user so
	// the insight can be fetched later.
	StatusPending

	// StatusSubmitted means the service accepted the request but returned no
	// insight id.
	StatusSubmitted
)

func (s SummaryStatus) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusUnavailable:
		return "unavailable"
	case StatusPending:
		return "pending"
	case StatusSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// SummaryResult is what every summary-producing method returns. Text always
// holds something presentable to the user, whatever the status.
type SummaryResult struct {
	Status    SummaryStatus
	Text      string
	InsightID int64
	Message   string
}

// OK reports whether the result carries actual summary content.
func (r SummaryResult) OK() bool {
	return r.Status == StatusSucceeded
}
