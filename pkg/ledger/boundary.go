package ledger

import (
	"fmt"
)

// ExternalValueBoundary is the gate through which value of external origin
// enters the ledger. It admits only allowed source kinds, requires an
// idempotent external identifier, and requires a positive player credit.
type ExternalValueBoundary struct {
	allowedSources map[Source]bool
}

// ExternalIntentKey is the metadata key carrying the external idempotency
// identifier on admitted entries.
const ExternalIntentKey = "intentId"

// NewExternalValueBoundary creates a boundary admitting top-ups and admin
// credits only.
func NewExternalValueBoundary() *ExternalValueBoundary {
	return &ExternalValueBoundary{
		allowedSources: map[Source]bool{
			SourceTopUp:       true,
			SourceAdminCredit: true,
		},
	}
}

// Admit validates a proposed external-origin entry before it may be
// appended. It never mutates anything.
func (b *ExternalValueBoundary) Admit(input EntryInput) error {
	if !b.allowedSources[input.Source] {
		return fmt.Errorf("source %s may not enter through the external value boundary", input.Source)
	}
	if input.Party.Type != PartyPlayer {
		return fmt.Errorf("external value may only credit players, got %s", input.Party.Type)
	}
	if input.Delta <= 0 {
		return fmt.Errorf("external value must be a positive credit, got %d", input.Delta)
	}
	if input.Metadata[ExternalIntentKey] == "" {
		return fmt.Errorf("external value requires an idempotent %s", ExternalIntentKey)
	}
	return nil
}
