package boundary

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"

	"github.com/pokercore/holdemd/internal/domain"
	"github.com/pokercore/holdemd/pkg/ledger"
)

// AdminCreditReason enumerates why an administrator credited chips.
type AdminCreditReason string

const (
	ReasonOfflineBuyIn AdminCreditReason = "OFFLINE_BUYIN"
	ReasonPromotion    AdminCreditReason = "PROMOTION"
	ReasonTesting      AdminCreditReason = "TESTING"
	ReasonCorrection   AdminCreditReason = "CORRECTION"
)

func (r AdminCreditReason) valid() bool {
	switch r {
	case ReasonOfflineBuyIn, ReasonPromotion, ReasonTesting, ReasonCorrection:
		return true
	}
	return false
}

// AdminCreditIntent is a manual chip credit issued by a registered
// administrator. It has its own idempotency key, independent of the
// top-up intent it maps to.
type AdminCreditIntent struct {
	IntentID string            `json:"intent_id"`
	AdminID  string            `json:"admin_id"`
	PlayerID string            `json:"player_id"`
	ClubID   string            `json:"club_id"`
	TableID  string            `json:"table_id,omitempty"`
	Amount   int64             `json:"amount"`
	Reason   AdminCreditReason `json:"reason"`
	Note     string            `json:"note"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AdminCreditResult reports the outcome of one admin credit.
type AdminCreditResult struct {
	Success     bool              `json:"success"`
	IsDuplicate bool              `json:"is_duplicate"`
	Errors      []ValidationError `json:"errors,omitempty"`
	Entry       *ledger.Entry     `json:"entry,omitempty"`
}

// adminCreditNamespace derives the top-up intent id each admin credit maps
// to, deterministically, so replays stay bit-identical.
var adminCreditNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("holdemd/admincredit"))

// AdminCreditConfig holds configuration for a new admin credit service.
type AdminCreditConfig struct {
	Log    slog.Logger
	TopUps *TopUpBoundary
}

// AdminCreditService validates administrative credits and writes them
// through the top-up boundary, preserving the admin metadata on the
// resulting ledger entry. Admin credits always attribute to the player;
// they never produce CLUB, AGENT or PLATFORM entries and never use the
// HAND_SETTLEMENT source.
type AdminCreditService struct {
	mu        sync.Mutex
	admins    map[string]bool
	processed map[string]bool

	topups *TopUpBoundary
	log    slog.Logger
}

// NewAdminCreditService creates the service with no registered admins.
func NewAdminCreditService(cfg AdminCreditConfig) (*AdminCreditService, error) {
	if cfg.Log == nil {
		return nil, fmt.Errorf("admincredit: log is required")
	}
	if cfg.TopUps == nil {
		return nil, fmt.Errorf("admincredit: topup boundary is required")
	}
	return &AdminCreditService{
		admins:    make(map[string]bool),
		processed: make(map[string]bool),
		topups:    cfg.TopUps,
		log:       cfg.Log,
	}, nil
}

// RegisterAdmin allows the given administrator to issue credits.
func (s *AdminCreditService) RegisterAdmin(adminID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[adminID] = true
}

// Process validates and applies one admin credit.
func (s *AdminCreditService) Process(intent AdminCreditIntent) AdminCreditResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []ValidationError

	if intent.IntentID == "" {
		errs = append(errs, validationError(domain.ErrMissingField("intent id"), "intentId"))
	} else if s.processed[intent.IntentID] {
		return AdminCreditResult{
			IsDuplicate: true,
			Errors: []ValidationError{validationError(
				domain.ErrDuplicateIntent("admin credit intent already processed"), "intentId")},
		}
	}

	if intent.AdminID == "" || !s.admins[intent.AdminID] {
		errs = append(errs, validationError(domain.ErrForbiddenTarget(
			fmt.Sprintf("admin %q is not registered", intent.AdminID)), "adminId"))
	}
	if intent.Amount <= 0 {
		errs = append(errs, validationError(domain.ErrInvalidAmount(
			fmt.Sprintf("amount must be a positive integer, got %d", intent.Amount)), "amount"))
	}
	if !intent.Reason.valid() {
		errs = append(errs, validationError(&domain.CodedError{
			Code:    domain.CodeMissingField,
			Message: fmt.Sprintf("unknown reason %q", intent.Reason),
		}, "reason"))
	}
	if strings.TrimSpace(intent.Note) == "" {
		errs = append(errs, validationError(&domain.CodedError{
			Code:    domain.CodeMissingField,
			Message: "note must be non-empty",
		}, "note"))
	}

	if len(errs) > 0 {
		s.log.Debugf("admin credit %s rejected: %d validation errors", intent.IntentID, len(errs))
		return AdminCreditResult{Errors: errs}
	}

	metadata := make(map[string]string, len(intent.Metadata)+4)
	for k, v := range intent.Metadata {
		metadata[k] = v
	}
	metadata["adminId"] = intent.AdminID
	metadata["reason"] = string(intent.Reason)
	metadata["note"] = intent.Note
	metadata["adminCreditIntentId"] = intent.IntentID

	topupIntentID := uuid.NewSHA1(adminCreditNamespace, []byte(intent.IntentID)).String()
	result := s.topups.Process(TopUpIntent{
		IntentID:    topupIntentID,
		PlayerID:    intent.PlayerID,
		ClubID:      intent.ClubID,
		TableID:     intent.TableID,
		Amount:      intent.Amount,
		RequestedAt: time.Time{},
		Metadata:    metadata,
		entrySource: ledger.SourceAdminCredit,
	})

	if !result.Success {
		return AdminCreditResult{
			IsDuplicate: result.IsDuplicate,
			Errors:      result.Errors,
		}
	}

	s.processed[intent.IntentID] = true
	s.log.Infof("admin %s credited %d chips to player %s (%s)",
		intent.AdminID, intent.Amount, intent.PlayerID, intent.Reason)

	return AdminCreditResult{Success: true, Entry: result.Entry}
}
