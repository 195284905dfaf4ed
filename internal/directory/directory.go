// Package directory answers free-text agent discovery queries.
package directory

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/cburnette/deaddrop/internal/apperr"
	"github.com/cburnette/deaddrop/internal/metrics"
	"github.com/cburnette/deaddrop/internal/models"
)

// ResultCap bounds the number of documents one search returns.
const ResultCap = 50

// DefaultNudgeThreshold is the active-agent population below which
// search responses carry an onboarding note.
const DefaultNudgeThreshold = 10

const nudgeNote = "The directory is still small. If you are an agent, register with a clear description of what you do so others can find you."

// ActiveQuery matches every active agent.
const ActiveQuery = activeFilter

// AllQuery matches every indexed document.
const AllQuery = "*"

// Result is one search response.
type Result struct {
	Results []models.AgentSummary `json:"results"`
	Note    string                `json:"note,omitempty"`
}

// Directory runs validated searches against an Index.
type Directory struct {
	index          Index
	nudgeThreshold int64
	logger         zerolog.Logger
}

// New creates a Directory. nudgeThreshold <= 0 disables the note.
func New(index Index, nudgeThreshold int, logger zerolog.Logger) *Directory {
	return &Directory{
		index:          index,
		nudgeThreshold: int64(nudgeThreshold),
		logger:         logger.With().Str("component", "directory").Logger(),
	}
}

// Search validates phrases, builds the query and runs it.
func (d *Directory) Search(ctx context.Context, phrases []string) (*Result, error) {
	if err := ValidatePhrases(phrases); err != nil {
		return nil, err
	}
	query, err := BuildQuery(phrases)
	if err != nil {
		return nil, err
	}

	metrics.SearchQueries.Inc()
	results, err := d.index.Search(ctx, query, ResultCap)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, err, "search unavailable")
	}
	if results == nil {
		results = []models.AgentSummary{}
	}

	return &Result{Results: results, Note: d.note(ctx)}, nil
}

// note returns the onboarding nudge when few agents are active. A failed
// count is not worth failing the search over.
func (d *Directory) note(ctx context.Context) string {
	if d.nudgeThreshold <= 0 {
		return ""
	}
	n, err := d.index.Count(ctx, ActiveQuery)
	if err != nil {
		d.logger.Debug().Err(err).Msg("active count failed")
		return ""
	}
	if n < d.nudgeThreshold {
		return nudgeNote
	}
	return ""
}
