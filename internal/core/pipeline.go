package core

import (
	"context"
	"log"
	"time"

	"github.com/commitdeck/commitdeck/internal/github"
	"github.com/commitdeck/commitdeck/internal/llm"
	"github.com/commitdeck/commitdeck/internal/store"
	"github.com/google/uuid"
)

// DefaultWindows are the fixed lookback offsets sampled each day, in the
// order their cards appear in the set.
var DefaultWindows = []int{1, 7, 30}

// Pipeline builds the daily flashcard set: at most one generation attempt
// per identity per calendar day in the reference timezone.
type Pipeline struct {
	cards   store.CardStore
	gen     llm.Generator
	loc     *time.Location
	now     func() time.Time
	windows []int
}

func NewPipeline(cards store.CardStore, gen llm.Generator, loc *time.Location) *Pipeline {
	return &Pipeline{
		cards:   cards,
		gen:     gen,
		loc:     loc,
		now:     time.Now,
		windows: DefaultWindows,
	}
}

// TodaySet returns today's persisted set for the identity, generating and
// persisting it first if none exists. An existing set is returned unchanged
// without touching the AI backend; regeneration happens only through the
// explicit deletion path.
func (p *Pipeline) TodaySet(ctx context.Context, src CommitSource, identity Identity, repo github.Repo) (*store.DaySet, error) {
	today := github.DateKey(p.now(), p.loc)

	existing, err := p.cards.GetDaySet(ctx, identity.Key(), today)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	var cards []store.FlashCard
	for _, daysAgo := range p.windows {
		windowCards, err := p.generateWindow(ctx, src, repo, daysAgo)
		if err != nil {
			// A failed window contributes zero cards; its siblings continue.
			log.Printf("Pipeline window %dd for %s on %s skipped: %v", daysAgo, identity.Key(), repo.FullName, err)
			continue
		}
		cards = append(cards, windowCards...)
	}

	// An empty aggregate still persists, leaving a "no data" state until the
	// next calendar day or an explicit reset.
	set := &store.DaySet{Identity: identity.Key(), Date: today, Cards: cards}
	stored, created, err := p.cards.CreateDaySet(ctx, set)
	if err != nil {
		return nil, err
	}
	if !created {
		log.Printf("Pipeline lost day-set race for %s on %s, returning stored set", identity.Key(), today)
	}
	return stored, nil
}

func (p *Pipeline) generateWindow(ctx context.Context, src CommitSource, repo github.Repo, daysAgo int) ([]store.FlashCard, error) {
	since, until := github.WindowBounds(p.now(), daysAgo, p.loc)

	commits, err := src.ListCommits(ctx, repo, since, until)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, nil
	}

	sel, err := SelectContent(ctx, src, repo, commits)
	if err != nil {
		return nil, err
	}

	items, err := p.gen.Generate(ctx, sel.Content, sel.Type)
	if err != nil {
		return nil, err
	}
	items = llm.Normalize(items, sel.Content)

	meta := &store.CardMetadata{
		CommitMessage:      sel.CommitMessage,
		RepositoryFullName: repo.FullName,
	}
	if sel.Type == llm.ContentMarkdown {
		meta.SourceFiles = []store.SourceFile{{Filename: sel.Filename, RawURL: sel.RawURL}}
	} else {
		meta.RawDiff = sel.RawDiff
	}

	cards := make([]store.FlashCard, 0, len(items))
	for _, item := range items {
		cards = append(cards, store.FlashCard{
			ID:         uuid.NewString(),
			Question:   item.Question,
			Answer:     item.Answer,
			Highlights: item.Highlights,
			Metadata:   meta,
		})
	}
	return cards, nil
}
