package interfaces

import (
	"context"

	"github.com/ternarybob/deepstock/internal/models"
)

// TradeSource fetches trade records from one provider.
// Failures must be returned as *SourceError so the scan can skip the provider.
type TradeSource interface {
	Name() string
	Fetch(ctx context.Context) ([]models.TradeRecord, error)
}

// AlertedStorage is the append-only set of trade keys already alerted.
// It is the only state carried across scan cycles.
type AlertedStorage interface {
	// Has reports whether a key was alerted before
	Has(ctx context.Context, key string) (bool, error)

	// Add records keys as alerted. Adding an existing key is a no-op.
	Add(ctx context.Context, keys ...string) error

	// Keys returns all recorded keys, sorted
	Keys(ctx context.Context) ([]string, error)

	Close() error
}

// TradeAnnotator produces advisory LLM assessments
type TradeAnnotator interface {
	// Annotate never returns a nil annotation. On failure the annotation is marked
	// unavailable and the error wraps ErrAIUnavailable.
	Annotate(ctx context.Context, trade models.ScoredTrade) (*models.Annotation, error)

	// DetectPatterns looks for clusters and unusual activity across trades
	DetectPatterns(ctx context.Context, trades []models.ScoredTrade) (*models.PatternReport, error)
}

// NewsProvider supplies recent headlines used as annotation context
type NewsProvider interface {
	Headlines(ctx context.Context, ticker string, limit int) ([]string, error)
}

// AlertChannel delivers a rendered alert. Errors are reported, never escalated.
type AlertChannel interface {
	Name() string
	Send(ctx context.Context, alert *models.Alert) error
}
