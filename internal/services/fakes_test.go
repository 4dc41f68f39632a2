package services

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"

	"delat/internal/amqp"
	"delat/internal/core"
	"delat/internal/log"
	"delat/internal/storage/memory"
)

// memStore counts member directory reads so tests can observe the cache.
type memStore struct {
	*memory.Store

	mu          sync.Mutex
	groupIDs    []string
	memberLists int
}

func newMemStore() *memStore {
	return &memStore{Store: memory.New()}
}

func (s *memStore) CreateGroup(ctx context.Context, name string) (core.Group, error) {
	g, err := s.Store.CreateGroup(ctx, name)
	if err == nil {
		s.mu.Lock()
		s.groupIDs = append(s.groupIDs, g.ID)
		s.mu.Unlock()
	}
	return g, err
}

func (s *memStore) ListMembers(ctx context.Context, groupID string) ([]core.Member, error) {
	s.mu.Lock()
	s.memberLists++
	s.mu.Unlock()
	return s.Store.ListMembers(ctx, groupID)
}

// expensesFrom returns every occurrence generated from sourceID.
func (s *memStore) expensesFrom(sourceID string) []core.Expense {
	s.mu.Lock()
	groups := slices.Clone(s.groupIDs)
	s.mu.Unlock()

	var out []core.Expense
	for _, id := range groups {
		all, _ := s.Store.ListExpenses(context.Background(), id, core.Period{})
		for _, e := range all {
			if e.SourceID == sourceID {
				out = append(out, e)
			}
		}
	}
	return out
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []*amqp.RecordChangedMessage
	err      error
}

func (p *recordingPublisher) PublishRecordChanged(_ context.Context, msg *amqp.RecordChangedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return p.err
}

func (p *recordingPublisher) published() []*amqp.RecordChangedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*amqp.RecordChangedMessage(nil), p.messages...)
}

func quietLogger() *log.Logger {
	return log.New(log.Config{Level: slog.LevelError, Format: log.FormatText, Output: io.Discard})
}
