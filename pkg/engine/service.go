package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"

	"github.com/pokercore/holdemd/internal/domain"
	"github.com/pokercore/holdemd/pkg/boundary"
	"github.com/pokercore/holdemd/pkg/ledger"
	"github.com/pokercore/holdemd/pkg/poker"
)

// TableConfig holds configuration for one table.
type TableConfig struct {
	ID     string `json:"id"`
	ClubID string `json:"club_id"`

	SmallBlind int64 `json:"small_blind"`
	BigBlind   int64 `json:"big_blind"`

	MinPlayers int `json:"min_players"`
	MaxPlayers int `json:"max_players"`

	// Rake is the house take at settlement; shares below split it.
	Rake          RakeConfig `json:"rake"`
	ClubShareBps  int64      `json:"club_share_bps"`
	AgentShareBps int64      `json:"agent_share_bps"`
	AgentID       string     `json:"agent_id,omitempty"`

	// ActionTimeout converts a stalled action into a fold through the
	// normal reducer path; zero disables timeouts.
	ActionTimeout time.Duration `json:"action_timeout"`
}

// Buy-in bounds, in big blinds.
const (
	MinBuyInBB = 10
	MaxBuyInBB = 200
)

// TransitionKind names the state transitions that trigger snapshots.
type TransitionKind string

const (
	TransitionHandEnd        TransitionKind = "hand-end"
	TransitionRoundEnd       TransitionKind = "round-end"
	TransitionPlayerChange   TransitionKind = "player-change"
	TransitionTableLifecycle TransitionKind = "table-lifecycle"
)

// RosterPlayer is one seated player's table-level state, persisting across
// hands.
type RosterPlayer struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Stack      int64  `json:"stack"`
	Seat       int    `json:"seat"`
	SittingOut bool   `json:"sitting_out"`
}

// TableView is a read-only copy of the table runtime handed to snapshot
// sinks and state queries.
type TableView struct {
	TableID     string         `json:"table_id"`
	Config      TableConfig    `json:"config"`
	Players     []RosterPlayer `json:"players"`
	HandNumber  uint64         `json:"hand_number"`
	DealerIndex int            `json:"dealer_index"`
	Hand        *HandState     `json:"hand,omitempty"`
}

// SnapshotSink receives table views at meaningful transitions. Sinks must
// not block; persistence failures are theirs to surface.
type SnapshotSink interface {
	Capture(kind TransitionKind, view TableView)
}

// ServiceConfig holds the collaborators of a game service.
type ServiceConfig struct {
	Table TableConfig
	Log   slog.Logger
	Clock Clock

	// Recorder, Checker and TopUps wire settlement into the ledger; any
	// of them may be nil for a table that keeps no ledger.
	Recorder *ledger.SettlementRecorder
	Checker  *ledger.InvariantChecker
	Ledger   *ledger.Ledger
	TopUps   *boundary.TopUpBoundary

	// Snapshots receives table views at meaningful transitions; may be nil.
	Snapshots SnapshotSink
}

// handNamespace derives deterministic hand ids from table id and number.
var handNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("holdemd/hands"))

// GameService validates and dispatches player requests into the hand state
// machine, exposes the event stream, and records settlements. Each table
// owns one service; all state behind it is table-local.
type GameService struct {
	mu sync.Mutex

	cfg        ServiceConfig
	dispatcher *Dispatcher
	clock      Clock
	log        slog.Logger

	roster      []RosterPlayer
	dealerIndex int
	handCounter uint64

	hand       *HandState
	lastResult *HandResult

	subscribers map[int]chan GameEvent
	nextSubID   int
}

// NewGameService creates a table service.
func NewGameService(cfg ServiceConfig) (*GameService, error) {
	if cfg.Log == nil {
		return nil, fmt.Errorf("engine: log is required")
	}
	if cfg.Table.ID == "" {
		return nil, fmt.Errorf("engine: table id is required")
	}
	if cfg.Table.BigBlind <= 0 || cfg.Table.SmallBlind <= 0 {
		return nil, fmt.Errorf("engine: blinds must be positive")
	}
	if cfg.Table.MaxPlayers < 2 {
		cfg.Table.MaxPlayers = 9
	}
	if cfg.Table.MinPlayers < 2 {
		cfg.Table.MinPlayers = 2
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	dispatcher, err := NewDispatcher(clock, cfg.Table.Rake, cfg.Log)
	if err != nil {
		return nil, err
	}

	svc := &GameService{
		cfg:         cfg,
		dispatcher:  dispatcher,
		clock:       clock,
		log:         cfg.Log,
		dealerIndex: -1,
		subscribers: make(map[int]chan GameEvent),
	}

	svc.capture(TransitionTableLifecycle)
	return svc, nil
}

// ---------- Roster management ----------

// JoinRequest asks to seat a player with a buy-in.
type JoinRequest struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	BuyIn    int64  `json:"buy_in"`
	Seat     int    `json:"seat"` // -1 for any open seat
}

// JoinTable seats a player. Buy-ins are constrained to [10 BB, 200 BB].
func (s *GameService) JoinTable(req JoinRequest) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.PlayerID == "" {
		return resultFrom(domain.ErrPlayerNotFound("player id is required"))
	}
	if len(s.roster) >= s.cfg.Table.MaxPlayers {
		return resultFrom(domain.ErrTableFull())
	}
	for _, p := range s.roster {
		if p.ID == req.PlayerID {
			return resultFrom(domain.ErrInvalidAction("player already at table"))
		}
	}

	minBuyIn := MinBuyInBB * s.cfg.Table.BigBlind
	maxBuyIn := MaxBuyInBB * s.cfg.Table.BigBlind
	if req.BuyIn < minBuyIn || req.BuyIn > maxBuyIn {
		return resultFrom(domain.ErrInvalidAmount(
			fmt.Sprintf("buy-in must be between %d and %d chips", minBuyIn, maxBuyIn)))
	}

	seat := req.Seat
	if seat < 0 {
		seat = s.firstOpenSeat()
	} else {
		for _, p := range s.roster {
			if p.Seat == seat {
				return resultFrom(domain.ErrSeatTaken(seat))
			}
		}
	}

	s.roster = append(s.roster, RosterPlayer{
		ID:    req.PlayerID,
		Name:  req.Name,
		Stack: req.BuyIn,
		Seat:  seat,
	})
	s.sortRoster()

	s.log.Infof("player %s joined table %s with %d chips (seat %d)",
		req.PlayerID, s.cfg.Table.ID, req.BuyIn, seat)
	s.capture(TransitionPlayerChange)
	return resultOK()
}

// LeaveTable removes a player between hands. A player inside a running
// hand must fold (or be folded by timeout) first.
func (s *GameService) LeaveTable(playerID string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, p := range s.roster {
		if p.ID == playerID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return resultFrom(domain.ErrPlayerNotFound("player not at table"))
	}

	if s.handInProgressLocked() && s.hand.Table.PlayerIndex(playerID) >= 0 {
		pIdx := s.hand.Table.PlayerIndex(playerID)
		if s.hand.Table.Players[pIdx].InHand() {
			return resultFrom(domain.ErrInvalidAction("cannot leave during a hand; fold first"))
		}
	}

	s.roster = append(s.roster[:idx], s.roster[idx+1:]...)
	s.log.Infof("player %s left table %s", playerID, s.cfg.Table.ID)
	s.capture(TransitionPlayerChange)
	return resultOK()
}

// Rebuy tops a player's stack back up between hands, within the buy-in cap.
func (s *GameService) Rebuy(playerID string, amount int64) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handInProgressLocked() {
		return resultFrom(domain.ErrInvalidAction("cannot rebuy during a hand"))
	}
	if amount <= 0 {
		return resultFrom(domain.ErrInvalidAmount("rebuy amount must be positive"))
	}

	for i := range s.roster {
		if s.roster[i].ID != playerID {
			continue
		}
		maxStack := MaxBuyInBB * s.cfg.Table.BigBlind
		if s.roster[i].Stack+amount > maxStack {
			return resultFrom(domain.ErrInvalidAmount(
				fmt.Sprintf("rebuy would exceed the %d chip cap", maxStack)))
		}
		s.roster[i].Stack += amount
		s.capture(TransitionPlayerChange)
		return resultOK()
	}
	return resultFrom(domain.ErrPlayerNotFound("player not at table"))
}

func (s *GameService) firstOpenSeat() int {
	taken := make(map[int]bool, len(s.roster))
	for _, p := range s.roster {
		taken[p.Seat] = true
	}
	for seat := 0; seat < s.cfg.Table.MaxPlayers; seat++ {
		if !taken[seat] {
			return seat
		}
	}
	return len(s.roster)
}

func (s *GameService) sortRoster() {
	for i := 0; i < len(s.roster); i++ {
		for j := i + 1; j < len(s.roster); j++ {
			if s.roster[j].Seat < s.roster[i].Seat {
				s.roster[i], s.roster[j] = s.roster[j], s.roster[i]
			}
		}
	}
}

// ---------- Hand lifecycle ----------

func (s *GameService) handInProgressLocked() bool {
	return s.hand != nil && s.hand.Phase != PhaseComplete
}

// StartHand deals a new hand from the supplied deck order. The deck is
// external input; the engine never shuffles.
func (s *GameService) StartHand(deckCards []poker.Card) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handInProgressLocked() {
		return resultFrom(domain.ErrInvalidAction("a hand is already in progress"))
	}

	eligible := make([]poker.Player, 0, len(s.roster))
	for _, rp := range s.roster {
		if rp.SittingOut || rp.Stack <= 0 {
			continue
		}
		eligible = append(eligible, poker.Player{
			ID:     rp.ID,
			Name:   rp.Name,
			Stack:  rp.Stack,
			Status: poker.StatusActive,
			Seat:   rp.Seat,
		})
	}
	if len(eligible) < s.cfg.Table.MinPlayers {
		return resultFrom(domain.ErrInvalidAction(
			fmt.Sprintf("need at least %d funded players", s.cfg.Table.MinPlayers)))
	}

	deck, err := poker.NewDeck(deckCards)
	if err != nil {
		return resultFrom(domain.ErrInvalidAmount(err.Error()))
	}

	s.handCounter++
	s.dealerIndex = (s.dealerIndex + 1) % len(eligible)
	handID := uuid.NewSHA1(handNamespace,
		[]byte(fmt.Sprintf("%s/%d", s.cfg.Table.ID, s.handCounter))).String()

	table := poker.NewTableState(eligible, s.dealerIndex,
		s.cfg.Table.SmallBlind, s.cfg.Table.BigBlind, s.handCounter)
	hs := NewHandState(handID, s.cfg.Table.ID, table, deck, s.clock())

	next, events, err := s.dispatcher.Reduce(hs, StartHandCommand{})
	if err != nil {
		s.publishLocked(events)
		return resultFrom(domain.ErrInternal("start hand", err))
	}

	s.hand = &next
	s.publishLocked(events)

	if next.Phase == PhaseComplete {
		s.finishHandLocked()
	}
	return resultOK()
}

// ActionRequest is one player action against the running hand.
type ActionRequest struct {
	PlayerID string           `json:"player_id"`
	Type     poker.ActionType `json:"type"`
	Amount   int64            `json:"amount,omitempty"`
}

// ProcessAction validates and applies a player action.
func (s *GameService) ProcessAction(req ActionRequest) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processActionLocked(req, CodeOK)
}

func (s *GameService) processActionLocked(req ActionRequest, successCode ResponseCode) Result {
	if !s.handInProgressLocked() {
		return resultFrom(domain.ErrHandNotInProgress("no hand in progress"))
	}

	ts := s.hand.Table
	idx := ts.PlayerIndex(req.PlayerID)
	if idx == -1 {
		return resultFrom(domain.ErrPlayerNotFound("player not in this hand"))
	}
	if !ts.Players[idx].CanAct() {
		return resultFrom(domain.ErrPlayerNotActive(
			fmt.Sprintf("player %s is %s", req.PlayerID, ts.Players[idx].Status)))
	}
	if idx != ts.ActivePlayerIndex {
		return resultFrom(domain.ErrNotYourTurn())
	}
	if req.Amount < 0 {
		return resultFrom(domain.ErrInvalidAmount("amount must not be negative"))
	}

	va := poker.ComputeValidActions(ts, idx)
	if result := validateAgainst(va, req); !result.OK() {
		return result
	}

	next, events, err := s.dispatcher.Reduce(*s.hand, PlayerActionCommand{
		Action: poker.Action{PlayerID: req.PlayerID, Type: req.Type, Amount: req.Amount},
	})
	if err != nil {
		s.publishLocked(events)
		return resultFrom(domain.ErrInvalidAction(err.Error()))
	}

	s.hand = &next
	s.publishLocked(events)

	if next.Phase == PhaseComplete {
		s.finishHandLocked()
	}

	if successCode == CodeOK {
		return resultOK()
	}
	return Result{Code: successCode, Message: "action applied"}
}

// validateAgainst maps a request onto the computed valid actions, so the
// facade can answer with precise codes before touching the reducer.
func validateAgainst(va poker.ValidActions, req ActionRequest) Result {
	switch req.Type {
	case poker.ActionFold:
		if !va.CanFold {
			return resultFrom(domain.ErrInvalidAction("fold not available"))
		}
	case poker.ActionCheck:
		if !va.CanCheck {
			return resultFrom(domain.ErrInvalidAction("cannot check facing a bet"))
		}
	case poker.ActionCall:
		if !va.CanCall {
			return resultFrom(domain.ErrInvalidAction("nothing to call"))
		}
	case poker.ActionBet:
		if !va.CanBet {
			return resultFrom(domain.ErrInvalidAction("bet not available"))
		}
		if req.Amount > va.MaxBet {
			return resultFrom(domain.ErrInsufficientChips(
				fmt.Sprintf("bet %d exceeds stack %d", req.Amount, va.MaxBet)))
		}
		if req.Amount < va.MinBet {
			return resultFrom(domain.ErrInvalidAmount(
				fmt.Sprintf("bet %d below minimum %d", req.Amount, va.MinBet)))
		}
	case poker.ActionRaise:
		if !va.CanRaise {
			return resultFrom(domain.ErrInvalidAction("raise not available"))
		}
		if req.Amount > va.MaxRaise {
			return resultFrom(domain.ErrInsufficientChips(
				fmt.Sprintf("raise to %d exceeds available chips", req.Amount)))
		}
		if req.Amount < va.MinRaise {
			return resultFrom(domain.ErrInvalidAmount(
				fmt.Sprintf("raise to %d below minimum %d", req.Amount, va.MinRaise)))
		}
	case poker.ActionAllIn:
		if !va.CanAllIn {
			return resultFrom(domain.ErrInvalidAction("all-in not available"))
		}
	default:
		return resultFrom(domain.ErrInvalidAction(fmt.Sprintf("unknown action %q", req.Type)))
	}
	return resultOK()
}

// TimeoutPendingAction folds the pending player if their action deadline
// has passed. The fold runs through the normal reducer path; there is no
// out-of-band cancellation.
func (s *GameService) TimeoutPendingAction(now time.Time) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.handInProgressLocked() || s.cfg.Table.ActionTimeout <= 0 {
		return resultFrom(domain.ErrHandNotInProgress("no pending action"))
	}
	if s.hand.Table.ActivePlayerIndex < 0 {
		return resultFrom(domain.ErrHandNotInProgress("no pending action"))
	}
	if now.Sub(s.hand.LastActionTime) < s.cfg.Table.ActionTimeout {
		return resultFrom(domain.ErrInvalidAction("action deadline not reached"))
	}

	playerID := s.hand.Table.Players[s.hand.Table.ActivePlayerIndex].ID
	s.log.Infof("player %s timed out; folding", playerID)
	return s.processActionLocked(ActionRequest{
		PlayerID: playerID,
		Type:     poker.ActionFold,
	}, CodeActionTimeout)
}

// finishHandLocked copies stacks back to the roster, records the
// settlement, checks invariants and snapshots the table.
func (s *GameService) finishHandLocked() {
	result := s.hand.Result
	if result == nil {
		return
	}
	s.lastResult = result

	for i := range s.roster {
		if stack, ok := result.FinalStacks[s.roster[i].ID]; ok {
			s.roster[i].Stack = stack
		}
	}

	s.recordSettlementLocked(result)
	s.capture(TransitionHandEnd)
}

// recordSettlementLocked writes the hand's balanced settlement batch. The
// top-up boundary is closed for this table for the duration of the write.
func (s *GameService) recordSettlementLocked(result *HandResult) {
	if s.cfg.Recorder == nil {
		return
	}

	if s.cfg.TopUps != nil {
		s.cfg.TopUps.BeginSettlement(s.cfg.Table.ID)
		defer s.cfg.TopUps.EndSettlement(s.cfg.Table.ID)
	}

	clubShare := result.RakeTotal * s.cfg.Table.ClubShareBps / 10000
	agentShare := int64(0)
	if s.cfg.Table.AgentID != "" {
		agentShare = result.RakeTotal * s.cfg.Table.AgentShareBps / 10000
	}
	platformShare := result.RakeTotal - clubShare - agentShare

	winners := make([]ledger.PotWinner, 0, len(result.Awards))
	for _, award := range result.Awards {
		winners = append(winners, ledger.PotWinner{
			PlayerID: award.PlayerID,
			Amount:   award.Amount,
			PotType:  award.PotType,
		})
	}

	var stateVersion uint64
	if s.cfg.Ledger != nil {
		stateVersion = s.cfg.Ledger.StateVersion() + 1
	}

	attr := ledger.SettlementAttribution{
		HandID:       result.HandID,
		TableID:      s.cfg.Table.ID,
		ClubID:       s.cfg.Table.ClubID,
		StateVersion: stateVersion,
		PotWinners:   winners,
		RakeTotal:    result.RakeTotal,
		Rake: ledger.RakeBreakdown{
			ClubShare:     clubShare,
			AgentShare:    agentShare,
			AgentID:       s.cfg.Table.AgentID,
			PlatformShare: platformShare,
		},
		Contributions: result.Contributions,
	}

	if _, err := s.cfg.Recorder.RecordSettlement(attr); err != nil {
		s.log.Errorf("settlement for hand %s rejected: %v", result.HandID, err)
		return
	}

	if s.cfg.Checker != nil && s.cfg.Ledger != nil {
		report := s.cfg.Checker.CheckAll(s.cfg.Ledger)
		if !report.AllPassed {
			for _, v := range report.Violations {
				s.log.Errorf("ledger invariant %s violated after hand %s: %s",
					v.Invariant, result.HandID, v.Cause)
			}
		}
	}
}

// ---------- Queries ----------

// GetValidActions reports the legal actions for a player in the running
// hand.
func (s *GameService) GetValidActions(playerID string) (poker.ValidActions, Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.handInProgressLocked() {
		return poker.ValidActions{}, resultFrom(domain.ErrHandNotInProgress("no hand in progress"))
	}
	idx := s.hand.Table.PlayerIndex(playerID)
	if idx == -1 {
		return poker.ValidActions{}, resultFrom(domain.ErrPlayerNotFound("player not in this hand"))
	}
	if idx != s.hand.Table.ActivePlayerIndex {
		return poker.ValidActions{}, resultFrom(domain.ErrNotYourTurn())
	}
	return poker.ComputeValidActions(s.hand.Table, idx), resultOK()
}

// GetGameState returns a read-only view of the table runtime.
func (s *GameService) GetGameState() TableView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *GameService) viewLocked() TableView {
	view := TableView{
		TableID:     s.cfg.Table.ID,
		Config:      s.cfg.Table,
		Players:     make([]RosterPlayer, len(s.roster)),
		HandNumber:  s.handCounter,
		DealerIndex: s.dealerIndex,
	}
	copy(view.Players, s.roster)
	if s.hand != nil {
		cloned := s.hand.Clone()
		view.Hand = &cloned
	}
	return view
}

// GetHandResult returns the result of the most recently completed hand.
func (s *GameService) GetHandResult() (*HandResult, Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastResult == nil {
		return nil, resultFrom(domain.ErrHandNotInProgress("no completed hand"))
	}
	r := *s.lastResult
	return &r, resultOK()
}

// ---------- Event stream ----------

// Subscribe registers an event consumer. The returned cancel function
// removes the subscription and closes the channel. A slow consumer drops
// events rather than stalling the table.
func (s *GameService) Subscribe() (<-chan GameEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan GameEvent, 64)
	s.subscribers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (s *GameService) publishLocked(events []GameEvent) {
	for _, ev := range events {
		if ev.Type == EventBettingRoundComplete {
			s.capture(TransitionRoundEnd)
		}
		for _, ch := range s.subscribers {
			select {
			case ch <- ev:
			default:
				s.log.Warnf("subscriber queue full, dropping event %s", ev.Type)
			}
		}
	}
}

// capture hands a view to the snapshot sink, if any. Must be called with
// the lock held.
func (s *GameService) capture(kind TransitionKind) {
	if s.cfg.Snapshots == nil {
		return
	}
	s.cfg.Snapshots.Capture(kind, s.viewLocked())
}
