package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"thumbgen/internal/model"
	"thumbgen/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return "msg-1", nil
}

var (
	testNow    = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	testLogger = zerolog.Nop()
)

const testUpgradeURL = "http://localhost:3000/pricing"

func seedAccount(repo repository.AccountRepository, a *model.Account) *model.Account {
	if a.ID == "" {
		a.ID = "acc-" + a.ExternalIdentityID
	}
	if err := repo.Create(context.Background(), a); err != nil {
		panic(err)
	}
	return a
}

func timePtr(t time.Time) *time.Time { return &t }
