package boundary

import (
	"fmt"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/pokercore/holdemd/internal/domain"
	"github.com/pokercore/holdemd/pkg/ledger"
)

// ValidationCode classifies a boundary rejection; the values are the
// stable strings of domain.CodedError.
type ValidationCode string

const (
	CodeMissingField      ValidationCode = domain.CodeMissingField
	CodeInvalidAmount     ValidationCode = domain.CodeInvalidAmount
	CodeDuplicateIntent   ValidationCode = domain.CodeDuplicateIntent
	CodeForbiddenTarget   ValidationCode = domain.CodeForbiddenTarget
	CodeForbiddenTiming   ValidationCode = domain.CodeForbiddenTiming
	CodeForbiddenMetadata ValidationCode = domain.CodeForbiddenMetadata
	CodeIntentTooLong     ValidationCode = domain.CodeIntentTooLong
)

// ValidationError is one structured rejection from the boundary, anchored
// to the domain error it was built from.
type ValidationError struct {
	Code    ValidationCode `json:"code"`
	Field   string         `json:"field"`
	Message string         `json:"message"`
	Cause   error          `json:"-"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return e.Cause }

// validationError wraps a coded domain error for one intent field.
func validationError(err *domain.CodedError, field string) ValidationError {
	return ValidationError{
		Code:    ValidationCode(err.Code),
		Field:   field,
		Message: err.Message,
		Cause:   err,
	}
}

// maxIntentIDLength bounds the external idempotency key.
const maxIntentIDLength = 256

// TopUpSource is the only source string accepted on top-up intents.
const TopUpSource = "EXTERNAL_TOPUP"

// TopUpIntent is an external request to credit chips to a player. The
// intent id is the idempotency key: a given id is processed at most once.
type TopUpIntent struct {
	IntentID    string            `json:"intent_id"`
	PlayerID    string            `json:"player_id"`
	ClubID      string            `json:"club_id"`
	TableID     string            `json:"table_id,omitempty"`
	Amount      int64             `json:"amount"`
	Source      string            `json:"source"`
	RequestedAt time.Time         `json:"requested_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	// Target optionally names a non-player attribution target. External
	// chips may only credit players; anything else is rejected.
	Target ledger.Party `json:"target,omitempty"`

	// entrySource overrides the recorded source. Only the admin-credit
	// service sets it; external callers always record TOP_UP.
	entrySource ledger.Source
}

// TopUpResult reports the outcome of processing one intent.
type TopUpResult struct {
	Success     bool              `json:"success"`
	IsDuplicate bool              `json:"is_duplicate"`
	Errors      []ValidationError `json:"errors,omitempty"`
	Entry       *ledger.Entry     `json:"entry,omitempty"`
}

// TopUpConfig holds configuration for a new top-up boundary.
type TopUpConfig struct {
	Log    slog.Logger
	Ledger *ledger.Ledger

	// Strict enables the forbidden-vocabulary scan over caller metadata.
	Strict bool
}

// TopUpBoundary validates, deduplicates and time-gates external chip
// credits, and is the only writer of TOP_UP entries. The processed-intent
// set and the settlement windows are table-independent shared state, so
// both sit behind one mutex.
type TopUpBoundary struct {
	mu        sync.Mutex
	processed map[string]bool
	settling  map[string]bool

	ledger *ledger.Ledger
	guard  *ledger.ExternalValueBoundary
	strict bool
	log    slog.Logger
}

// NewTopUpBoundary creates a top-up boundary writing to the given ledger.
func NewTopUpBoundary(cfg TopUpConfig) (*TopUpBoundary, error) {
	if cfg.Log == nil {
		return nil, fmt.Errorf("topup boundary: log is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("topup boundary: ledger is required")
	}
	return &TopUpBoundary{
		processed: make(map[string]bool),
		settling:  make(map[string]bool),
		ledger:    cfg.Ledger,
		guard:     ledger.NewExternalValueBoundary(),
		strict:    cfg.Strict,
		log:       cfg.Log,
	}, nil
}

// BeginSettlement marks a table as having an active settlement. Top-ups
// targeting the table are rejected until EndSettlement.
func (b *TopUpBoundary) BeginSettlement(tableID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settling[tableID] = true
}

// EndSettlement clears a table's active-settlement mark.
func (b *TopUpBoundary) EndSettlement(tableID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.settling, tableID)
}

// InSettlement reports whether a table has an active settlement.
func (b *TopUpBoundary) InSettlement(tableID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settling[tableID]
}

// Validate checks an intent without processing it. It never mutates the
// boundary and never panics; all findings come back as a list.
func (b *TopUpBoundary) Validate(intent TopUpIntent) []ValidationError {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.validateLocked(intent)
}

func (b *TopUpBoundary) validateLocked(intent TopUpIntent) []ValidationError {
	var errs []ValidationError

	if intent.IntentID == "" {
		errs = append(errs, validationError(domain.ErrMissingField("intent id"), "intentId"))
	} else if len(intent.IntentID) > maxIntentIDLength {
		errs = append(errs, validationError(domain.ErrIntentTooLong(
			fmt.Sprintf("intent id exceeds %d characters", maxIntentIDLength)), "intentId"))
	} else if b.processed[intent.IntentID] {
		errs = append(errs, validationError(
			domain.ErrDuplicateIntent("intent id already processed"), "intentId"))
	}

	if intent.PlayerID == "" {
		errs = append(errs, validationError(domain.ErrMissingField("player id"), "playerId"))
	}
	if intent.ClubID == "" {
		errs = append(errs, validationError(domain.ErrMissingField("club id"), "clubId"))
	}

	if intent.Amount <= 0 {
		errs = append(errs, validationError(domain.ErrInvalidAmount(
			fmt.Sprintf("amount must be a positive integer, got %d", intent.Amount)), "amount"))
	}

	if intent.Source != "" && intent.Source != TopUpSource {
		errs = append(errs, validationError(domain.ErrForbiddenTarget(
			fmt.Sprintf("source must be %s", TopUpSource)), "source"))
	}

	if intent.Target.Type != "" && intent.Target.Type != ledger.PartyPlayer {
		errs = append(errs, validationError(domain.ErrForbiddenTarget(
			fmt.Sprintf("external chips may only credit players, got %s", intent.Target.Type)), "target"))
	}

	if intent.TableID != "" && b.settling[intent.TableID] {
		errs = append(errs, validationError(domain.ErrForbiddenTiming(
			fmt.Sprintf("table %s has an active settlement", intent.TableID)), "tableId"))
	}

	if b.strict {
		errs = append(errs, scanForbiddenVocabulary(intent.Metadata)...)
	}

	return errs
}

// Process validates an intent and, on acceptance, writes exactly one
// TOP_UP entry and marks the intent id processed. A duplicate intent is
// reported as such and leaves the ledger unchanged.
func (b *TopUpBoundary) Process(intent TopUpIntent) TopUpResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	if errs := b.validateLocked(intent); len(errs) > 0 {
		result := TopUpResult{Errors: errs}
		for _, e := range errs {
			if e.Code == CodeDuplicateIntent {
				result.IsDuplicate = true
			}
		}
		b.log.Debugf("topup intent %s rejected: %d validation errors", intent.IntentID, len(errs))
		return result
	}

	// Caller metadata first; the authoritative keys are stamped last so
	// they can never be shadowed.
	metadata := make(map[string]string, len(intent.Metadata)+2)
	for k, v := range intent.Metadata {
		metadata[k] = v
	}
	metadata[ledger.ExternalIntentKey] = intent.IntentID
	if !intent.RequestedAt.IsZero() {
		metadata["requestedAt"] = intent.RequestedAt.UTC().Format(time.RFC3339)
	}

	input := ledger.EntryInput{
		Source:      ledger.SourceTopUp,
		Party:       ledger.PlayerParty(intent.PlayerID),
		Delta:       intent.Amount,
		TableID:     intent.TableID,
		ClubID:      intent.ClubID,
		Description: "external chip top-up",
		Metadata:    metadata,
	}
	if intent.entrySource == ledger.SourceAdminCredit {
		input.Source = ledger.SourceAdminCredit
		input.Description = "administrative chip credit"
	}

	if err := b.guard.Admit(input); err != nil {
		coded := domain.ErrForbiddenTarget(err.Error())
		coded.Cause = err
		return TopUpResult{Errors: []ValidationError{validationError(coded, "entry")}}
	}

	entry, err := b.ledger.Append(input)
	if err != nil {
		coded := domain.ErrInvalidAmount(err.Error())
		coded.Cause = err
		return TopUpResult{Errors: []ValidationError{validationError(coded, "entry")}}
	}

	b.processed[intent.IntentID] = true
	b.log.Infof("topup %s credited %d chips to player %s", intent.IntentID, intent.Amount, intent.PlayerID)

	return TopUpResult{Success: true, Entry: &entry}
}
