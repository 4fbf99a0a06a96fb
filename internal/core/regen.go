package core

import (
	"context"
	"log"
	"time"

	"github.com/commitdeck/commitdeck/internal/github"
	"github.com/commitdeck/commitdeck/internal/llm"
	"github.com/commitdeck/commitdeck/internal/store"
)

// Daily regeneration ceilings per identity class. Question- and day-level
// regeneration share one counter, so each tier has exactly one ceiling.
const (
	FreeDailyRegenLimit = 3
	ProDailyRegenLimit  = 20
	DemoDailyRegenLimit = 3
)

// UserStore is the slice of the user store the regeneration service needs.
type UserStore interface {
	GetUserByID(id int64) (*store.User, error)
	TryReserveRegeneration(userID int64, today string, ceiling int) (bool, error)
	RefundRegeneration(userID int64, today string) error
}

// RegenerateRequest asks for a replacement question on a diff-backed card.
type RegenerateRequest struct {
	RawDiff          string
	ExistingQuestion string
	ExistingAnswer   string
	CardID           string // optional; when set, today's persisted card is rewritten in place
}

// RegeneratedQuestion is the replacement produced for one card. The answer
// is never touched.
type RegeneratedQuestion struct {
	Question   string   `json:"question"`
	Highlights []string `json:"highlights,omitempty"`
}

// Regenerator is the rate-limited regeneration service.
type Regenerator struct {
	users UserStore
	cards store.CardStore
	gen   llm.Generator
	loc   *time.Location
	now   func() time.Time
}

func NewRegenerator(users UserStore, cards store.CardStore, gen llm.Generator, loc *time.Location) *Regenerator {
	return &Regenerator{
		users: users,
		cards: cards,
		gen:   gen,
		loc:   loc,
		now:   time.Now,
	}
}

// ceilingFor resolves the daily ceiling for an identity class.
func (r *Regenerator) ceilingFor(identity Identity) (int, error) {
	if identity.IsDemo() {
		return DemoDailyRegenLimit, nil
	}
	user, err := r.users.GetUserByID(identity.UserID)
	if err != nil {
		return 0, err
	}
	if user != nil && user.Tier == store.TierPro {
		return ProDailyRegenLimit, nil
	}
	return FreeDailyRegenLimit, nil
}

// reserve atomically claims one regeneration slot for today, returning a
// refund func for the AI-call-failed path.
func (r *Regenerator) reserve(ctx context.Context, identity Identity, today string, ceiling int) (func(), error) {
	if identity.IsDemo() {
		ok, err := r.cards.ReserveDemoQuota(ctx, identity.DeviceHash, today, ceiling)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &RateLimitError{Limit: ceiling}
		}
		return func() {
			if err := r.cards.RefundDemoQuota(ctx, identity.DeviceHash, today); err != nil {
				log.Printf("Failed to refund demo quota for %s: %v", identity.Key(), err)
			}
		}, nil
	}

	ok, err := r.users.TryReserveRegeneration(identity.UserID, today, ceiling)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &RateLimitError{Limit: ceiling}
	}
	return func() {
		if err := r.users.RefundRegeneration(identity.UserID, today); err != nil {
			log.Printf("Failed to refund regeneration for %s: %v", identity.Key(), err)
		}
	}, nil
}

// RegenerateQuestion replaces one card's question, holding its answer fixed.
// Regeneration is offered only for diff-backed cards, so a missing raw diff
// is a validation failure with no side effects.
func (r *Regenerator) RegenerateQuestion(ctx context.Context, identity Identity, req RegenerateRequest) (*RegeneratedQuestion, error) {
	if req.RawDiff == "" {
		return nil, &ValidationError{Message: "rawDiff is required"}
	}
	if req.ExistingQuestion == "" || req.ExistingAnswer == "" {
		return nil, &ValidationError{Message: "existingQuestion and existingAnswer are required"}
	}

	today := github.DateKey(r.now(), r.loc)
	ceiling, err := r.ceilingFor(identity)
	if err != nil {
		return nil, err
	}

	refund, err := r.reserve(ctx, identity, today, ceiling)
	if err != nil {
		return nil, err
	}

	item, err := r.gen.RegenerateQuestion(ctx, req.RawDiff, req.ExistingQuestion, req.ExistingAnswer)
	if err != nil {
		refund()
		return nil, err
	}

	normalized := llm.Normalize([]llm.Item{item}, req.ExistingAnswer)
	if len(normalized) == 0 {
		refund()
		return nil, &llm.ParseError{Backend: "regenerate", Err: errEmptyQuestion}
	}
	item = normalized[0]

	if req.CardID != "" {
		if err := r.cards.UpdateCardQuestion(ctx, identity.Key(), today, req.CardID, item.Question, item.Highlights); err != nil {
			// The caller still gets the new question; the persisted set just
			// keeps the old one.
			log.Printf("Failed to persist regenerated question for %s card %s: %v", identity.Key(), req.CardID, err)
		}
	}

	return &RegeneratedQuestion{Question: item.Question, Highlights: item.Highlights}, nil
}

// RegenerateToday deletes the user's entire set for today so the next
// pipeline call rebuilds it from scratch. Pro tier only; counts against the
// same daily ceiling as single-question regeneration.
func (r *Regenerator) RegenerateToday(ctx context.Context, userID int64) error {
	user, err := r.users.GetUserByID(userID)
	if err != nil {
		return err
	}
	if user == nil || user.Tier != store.TierPro {
		return ErrProRequired
	}

	today := github.DateKey(r.now(), r.loc)
	refund, err := r.reserve(ctx, UserIdentity(userID), today, ProDailyRegenLimit)
	if err != nil {
		return err
	}

	if err := r.cards.DeleteDaySet(ctx, UserIdentity(userID).Key(), today); err != nil {
		refund()
		return err
	}
	return nil
}

// InvalidateToday removes today's set after a settings change (such as a new
// repository list) made the existing cards stale. Not quota-gated.
func (r *Regenerator) InvalidateToday(ctx context.Context, identity Identity) error {
	today := github.DateKey(r.now(), r.loc)
	return r.cards.DeleteDaySet(ctx, identity.Key(), today)
}
