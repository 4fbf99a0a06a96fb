package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/commitdeck/commitdeck/internal/github"
	"github.com/commitdeck/commitdeck/internal/llm"
	"github.com/commitdeck/commitdeck/internal/store"
)

// fakeSource serves canned commits keyed by the window's since-date.
type fakeSource struct {
	byWindow   map[string][]github.Commit // "2006-01-02" of since → listing
	details    map[string]*github.Commit  // sha → full commit
	contents   map[string]string          // "path@ref" → file text
	listErr    map[string]error           // since-date → forced listing failure
	detailHits map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		byWindow:   make(map[string][]github.Commit),
		details:    make(map[string]*github.Commit),
		contents:   make(map[string]string),
		listErr:    make(map[string]error),
		detailHits: make(map[string]int),
	}
}

func (f *fakeSource) ListCommits(_ context.Context, _ github.Repo, since, _ time.Time) ([]github.Commit, error) {
	key := since.Format("2006-01-02")
	if err := f.listErr[key]; err != nil {
		return nil, err
	}
	return f.byWindow[key], nil
}

func (f *fakeSource) GetCommitDetail(_ context.Context, _ github.Repo, sha string) (*github.Commit, error) {
	f.detailHits[sha]++
	detail, ok := f.details[sha]
	if !ok {
		return nil, fmt.Errorf("no detail for %s", sha)
	}
	return detail, nil
}

func (f *fakeSource) GetFileContent(_ context.Context, _ github.Repo, path, ref string) (string, error) {
	content, ok := f.contents[path+"@"+ref]
	if !ok {
		return "", fmt.Errorf("no content for %s@%s", path, ref)
	}
	return content, nil
}

// fakeGenerator derives one legacy (answer-less) question per call from the
// content's first line, so tests can attribute cards to windows.
type fakeGenerator struct {
	generateCalls int
	perQuestion   int
	failWhen      func(content string) error
	regenItem     llm.Item
	regenErr      error
}

func (g *fakeGenerator) Generate(_ context.Context, content string, _ llm.ContentType) ([]llm.Item, error) {
	g.generateCalls++
	if g.failWhen != nil {
		if err := g.failWhen(content); err != nil {
			return nil, err
		}
	}
	n := g.perQuestion
	if n == 0 {
		n = 1
	}
	items := make([]llm.Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, llm.Item{Question: fmt.Sprintf("Q%d: %s", i, firstLine(content))})
	}
	return items, nil
}

func (g *fakeGenerator) RegenerateQuestion(_ context.Context, _, _, existingAnswer string) (llm.Item, error) {
	if g.regenErr != nil {
		return llm.Item{}, g.regenErr
	}
	item := g.regenItem
	if item.Question == "" {
		item.Question = "A fresh question?"
	}
	item.Answer = existingAnswer
	return item, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// fakeUserStore mirrors the SQLite conditional-update semantics in memory.
type fakeUserStore struct {
	users map[int64]*store.User
}

func newFakeUserStore(users ...*store.User) *fakeUserStore {
	f := &fakeUserStore{users: make(map[int64]*store.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUserStore) GetUserByID(id int64) (*store.User, error) {
	return f.users[id], nil
}

func (f *fakeUserStore) TryReserveRegeneration(userID int64, today string, ceiling int) (bool, error) {
	u, ok := f.users[userID]
	if !ok {
		return false, nil
	}
	if u.RegenDate != today {
		u.RegenDate = today
		u.RegenCount = 1
		return true, nil
	}
	if u.RegenCount >= ceiling {
		return false, nil
	}
	u.RegenCount++
	return true, nil
}

func (f *fakeUserStore) RefundRegeneration(userID int64, today string) error {
	if u, ok := f.users[userID]; ok && u.RegenDate == today && u.RegenCount > 0 {
		u.RegenCount--
	}
	return nil
}
