package metrics

// Metrics holds generative backend usage for a time period.
type Metrics struct {
	generativeRequests int
	tokens             int
}

// New creates a Metrics snapshot.
func New(requests, tokens int) Metrics {
	return Metrics{generativeRequests: requests, tokens: tokens}
}

// GenerativeRequests returns the number of generative backend calls.
func (m Metrics) GenerativeRequests() int { return m.generativeRequests }

// Tokens returns the total tokens consumed.
func (m Metrics) Tokens() int { return m.tokens }
