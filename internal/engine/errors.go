package engine

import (
	"fmt"
	"time"
)

// ConfigError reports an invalid run configuration. It is always
// raised before any bar is simulated.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// DataGapError reports an unusable bar sequence for a chunk: either no
// bars at all, or timestamps going backwards. The run aborts rather
// than continuing with a partially invalid state, because balances are
// chunk-sequential and cannot be repaired afterwards.
type DataGapError struct {
	Symbol string
	From   time.Time
	To     time.Time
	Reason string
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("bad bar data for %s [%s, %s): %s",
		e.Symbol, e.From.Format(time.RFC3339), e.To.Format(time.RFC3339), e.Reason)
}
