package engine

import (
	"errors"
	"fmt"
)

// ChainLimitError is returned when a chain of rule-issued queries grows past
// the configured limit. The chain stops; nothing else is affected.
type ChainLimitError struct {
	SessionID string
	QueryID   string
	Depth     int
	Limit     int
}

func (e *ChainLimitError) Error() string {
	return fmt.Sprintf("session %s: query %s exceeds chain limit: depth %d > %d",
		e.SessionID, e.QueryID, e.Depth, e.Limit)
}

// IsChainLimitError reports whether err is a ChainLimitError.
func IsChainLimitError(err error) bool {
	var ce *ChainLimitError
	return errors.As(err, &ce)
}
