package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vanshika/fingraph/internal/deadletter"
	"github.com/vanshika/fingraph/internal/domain"
)

// memoryStore is a GraphStore with merge-on-id semantics.
type memoryStore struct {
	mu    sync.Mutex
	nodes map[domain.NodeRef]*domain.Node
	rels  map[string]*domain.Relationship
	// failures is how many writes fail before the store recovers; negative fails forever.
	failures int
	failErr  error
	writes   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		nodes: make(map[domain.NodeRef]*domain.Node),
		rels:  make(map[string]*domain.Relationship),
	}
}

func (s *memoryStore) failNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
	s.failErr = err
}

func (s *memoryStore) shouldFail() error {
	s.writes++
	if s.failures == 0 {
		return nil
	}
	if s.failures > 0 {
		s.failures--
	}
	return s.failErr
}

func (s *memoryStore) CreateNode(_ context.Context, node *domain.Node) (*domain.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.shouldFail(); err != nil {
		return nil, err
	}
	return s.merge(node.Ref(), node.Properties, node.CreatedAt), nil
}

func (s *memoryStore) UpdateNode(_ context.Context, ref domain.NodeRef, partial map[string]any) (*domain.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.shouldFail(); err != nil {
		return nil, err
	}
	return s.merge(ref, partial, time.Now()), nil
}

func (s *memoryStore) merge(ref domain.NodeRef, props map[string]any, at time.Time) *domain.Node {
	existing, ok := s.nodes[ref]
	if !ok {
		existing = &domain.Node{ID: ref.ID, Type: ref.Type, Properties: map[string]any{}, CreatedAt: at, UpdatedAt: at}
		s.nodes[ref] = existing
	}
	existing.UpdateProperties(props)
	return existing
}

func (s *memoryStore) DeleteNode(_ context.Context, ref domain.NodeRef) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.shouldFail(); err != nil {
		return false, err
	}
	if _, ok := s.nodes[ref]; !ok {
		return false, nil
	}
	delete(s.nodes, ref)
	for key, rel := range s.rels {
		if rel.From == ref || rel.To == ref {
			delete(s.rels, key)
		}
	}
	return true, nil
}

func (s *memoryStore) FindNodeByID(_ context.Context, ref domain.NodeRef) (*domain.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[ref]
	if !ok {
		return nil, nil
	}
	return n, nil
}

func (s *memoryStore) CreateRelationship(_ context.Context, rel *domain.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.shouldFail(); err != nil {
		return err
	}
	if _, ok := s.nodes[rel.From]; !ok {
		return fmt.Errorf("%s: %w", rel.From, domain.ErrNotFound)
	}
	if _, ok := s.nodes[rel.To]; !ok {
		return fmt.Errorf("%s: %w", rel.To, domain.ErrNotFound)
	}
	s.rels[relKey(rel.Type, rel.From, rel.To)] = rel
	return nil
}

func (s *memoryStore) node(t domain.NodeType, id string) *domain.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodes[domain.NodeRef{ID: id, Type: t}]
}

func (s *memoryStore) count(t domain.NodeType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for ref := range s.nodes {
		if ref.Type == t {
			n++
		}
	}
	return n
}

func (s *memoryStore) hasRel(t domain.RelationshipType, from, to domain.NodeRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rels[relKey(t, from, to)]
	return ok
}

func relKey(t domain.RelationshipType, from, to domain.NodeRef) string {
	return fmt.Sprintf("%s|%s|%s", t, from, to)
}

type recordingPublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *recordingPublisher) envelopes(t *testing.T) []deadletter.Envelope {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]deadletter.Envelope, 0, len(p.payloads))
	for _, raw := range p.payloads {
		env, err := deadletter.DecodeEnvelope(raw)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	err    error
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return r.err
}

func eventPayload(t *testing.T, kind EntityKind, typ EventType, id string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	b, err := json.Marshal(Event{
		ID:         "evt-" + id,
		Kind:       kind,
		Type:       typ,
		EntityID:   id,
		OccurredAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:       raw,
	})
	require.NoError(t, err)
	return b
}

func ptr[T any](v T) *T {
	return &v
}
