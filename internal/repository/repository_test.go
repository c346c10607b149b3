package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/vanshika/fingraph/internal/domain"
	"github.com/vanshika/fingraph/internal/graph"
	"github.com/vanshika/fingraph/internal/query"
)

func userRecord(id, name string) graph.Record {
	return graph.Record{
		"props": map[string]any{
			"id":        id,
			"name":      name,
			"createdAt": "2024-01-01T00:00:00Z",
			"updatedAt": "2024-01-02T00:00:00Z",
		},
		"label": "User",
	}
}

func TestRepository_CreateNodeMergesOnID(t *testing.T) {
	mem := graph.NewMemoryClient()
	mem.PushWriteResult(graph.Result{Records: []graph.Record{userRecord("u-1", "Ana")}})
	mem.PushWriteResult(graph.Result{Records: []graph.Record{userRecord("u-1", "Ana Maria")}})
	repo := New(mem)

	node, err := domain.NewNodeWithID("u-1", domain.NodeTypeUser, map[string]any{"name": "Ana"}, time.Now())
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	if _, err := repo.CreateNode(context.Background(), node); err != nil {
		t.Fatalf("first create: %v", err)
	}
	node.UpdateProperties(map[string]any{"name": "Ana Maria"})
	stored, err := repo.CreateNode(context.Background(), node)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}

	calls := mem.WriteCalls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 write queries, got %d", len(calls))
	}
	for _, call := range calls {
		if !strings.Contains(call.Query, "MERGE (n:User {id: $id})") {
			t.Fatalf("expected merge on id, got:\n%s", call.Query)
		}
		if strings.Contains(call.Query, "CREATE (") {
			t.Fatalf("node creation must not use a bare CREATE:\n%s", call.Query)
		}
		if call.Params["id"] != "u-1" {
			t.Errorf("expected id u-1, got %v", call.Params["id"])
		}
	}
	props := calls[1].Params["props"].(map[string]any)
	if props["name"] != "Ana Maria" {
		t.Errorf("expected latest name in merge, got %v", props["name"])
	}
	if _, ok := props["id"]; ok {
		t.Errorf("id must not be part of the property merge")
	}

	if stored.ID != "u-1" || stored.Type != domain.NodeTypeUser {
		t.Fatalf("unexpected stored node %+v", stored)
	}
	if stored.StringProperty("name") != "Ana Maria" {
		t.Errorf("expected decoded name, got %q", stored.StringProperty("name"))
	}
	if stored.CreatedAt.IsZero() || stored.UpdatedAt.IsZero() {
		t.Errorf("expected timestamps to be decoded")
	}
	if _, ok := stored.Properties["createdAt"]; ok {
		t.Errorf("reserved properties must not leak into Properties")
	}
}

func TestRepository_UpdateNodeIgnoresReservedKeys(t *testing.T) {
	mem := graph.NewMemoryClient()
	mem.PushWriteResult(graph.Result{Records: []graph.Record{userRecord("u-1", "Ana")}})
	repo := New(mem)

	ref := domain.NodeRef{ID: "u-1", Type: domain.NodeTypeUser}
	if _, err := repo.UpdateNode(context.Background(), ref, map[string]any{"name": "Ana", "createdAt": "1999", "id": "x"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	props := mem.WriteCalls()[0].Params["props"].(map[string]any)
	if _, ok := props["createdAt"]; ok {
		t.Errorf("createdAt must be protected")
	}
	if _, ok := props["id"]; ok {
		t.Errorf("id must be protected")
	}
}

func TestRepository_DeleteNodeDetachesRelationships(t *testing.T) {
	mem := graph.NewMemoryClient()
	mem.PushWriteResult(graph.Result{Records: []graph.Record{{"deleted": int64(1)}}})
	repo := New(mem)

	deleted, err := repo.DeleteNode(context.Background(), domain.NodeRef{ID: "t-1", Type: domain.NodeTypeTransaction})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted {
		t.Fatalf("expected deletion to be reported")
	}
	call := mem.WriteCalls()[0]
	if !strings.Contains(call.Query, "MATCH (n:Transaction {id: $id})") || !strings.Contains(call.Query, "DETACH DELETE n") {
		t.Fatalf("unexpected delete query:\n%s", call.Query)
	}
}

func TestRepository_FindNodeByIDMissing(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)

	node, err := repo.FindNodeByID(context.Background(), domain.NodeRef{ID: "nope"})
	if err != nil {
		t.Fatalf("missing node must not be an error, got %v", err)
	}
	if node != nil {
		t.Fatalf("expected nil node, got %+v", node)
	}
	if q := mem.ReadCalls()[0].Query; !strings.Contains(q, "MATCH (n {id: $id})") {
		t.Fatalf("expected label-less lookup, got:\n%s", q)
	}

	_, err = repo.MustFindNodeByID(context.Background(), domain.NodeRef{ID: "nope", Type: domain.NodeTypeUser})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepository_FindNodesByProperties(t *testing.T) {
	mem := graph.NewMemoryClient()
	mem.PushReadResult(graph.Result{Records: []graph.Record{userRecord("u-1", "Ana"), userRecord("u-2", "Ben")}})
	repo := New(mem)

	nodes, err := repo.FindNodesByProperties(context.Background(), domain.NodeTypeUser, map[string]any{"country": "IN"}, 10, 5)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(nodes) != 2 || nodes[1].ID != "u-2" {
		t.Fatalf("unexpected nodes %+v", nodes)
	}
	call := mem.ReadCalls()[0]
	for _, fragment := range []string{"MATCH (n:User)", "WHERE n.country = $p0", "ORDER BY n.id ASC", "SKIP $skip LIMIT $limit"} {
		if !strings.Contains(call.Query, fragment) {
			t.Errorf("expected %q in:\n%s", fragment, call.Query)
		}
	}
	if call.Params["skip"] != int64(10) || call.Params["limit"] != int64(5) {
		t.Errorf("unexpected pagination params %v", call.Params)
	}

	if _, err := repo.FindNodesByType(context.Background(), domain.NodeType("Wallet"), 0, 0); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}
}

func TestRepository_CreateRelationshipMissingEndpoint(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)

	rel, err := domain.NewRelationship(domain.RelOwns,
		domain.NodeRef{ID: "u-1", Type: domain.NodeTypeUser},
		domain.NodeRef{ID: "a-1", Type: domain.NodeTypeAccount})
	if err != nil {
		t.Fatalf("new relationship: %v", err)
	}
	err = repo.CreateRelationship(context.Background(), rel)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing endpoints, got %v", err)
	}

	mem.PushWriteResult(graph.Result{Records: []graph.Record{{"id": rel.ID}}})
	if err := repo.CreateRelationship(context.Background(), rel); err != nil {
		t.Fatalf("create: %v", err)
	}
	if q := mem.WriteCalls()[1].Query; !strings.Contains(q, "MERGE (a)-[r:OWNS]->(b)") {
		t.Fatalf("expected relationship merge, got:\n%s", q)
	}
}

func TestRepository_CreateRelationshipRejectsDisallowedPair(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)

	forged := &domain.Relationship{
		Type: domain.RelOwns,
		From: domain.NodeRef{ID: "a-1", Type: domain.NodeTypeAccount},
		To:   domain.NodeRef{ID: "u-1", Type: domain.NodeTypeUser},
	}
	if err := repo.CreateRelationship(context.Background(), forged); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(mem.WriteCalls()) != 0 {
		t.Fatalf("nothing must be persisted for a disallowed pair")
	}
}

func TestRepository_DeleteRelationship(t *testing.T) {
	mem := graph.NewMemoryClient()
	mem.PushWriteResult(graph.Result{Records: []graph.Record{{"deleted": int64(0)}}})
	repo := New(mem)

	deleted, err := repo.DeleteRelationship(context.Background(), domain.RelHasGoal,
		domain.NodeRef{ID: "u-1", Type: domain.NodeTypeUser},
		domain.NodeRef{ID: "g-1", Type: domain.NodeTypeGoal})
	if err != nil {
		t.Fatalf("delete relationship: %v", err)
	}
	if deleted {
		t.Fatalf("expected no deletion")
	}
	if q := mem.WriteCalls()[0].Query; !strings.Contains(q, "MATCH (a:User {id: $fromId})-[r:HAS_GOAL]->(b:Goal {id: $toId})") {
		t.Fatalf("unexpected query:\n%s", q)
	}
}

func TestRepository_FindRelationshipsForNode(t *testing.T) {
	mem := graph.NewMemoryClient()
	mem.PushReadResult(graph.Result{Records: []graph.Record{{
		"relType":   "OWNS",
		"relProps":  map[string]any{"id": "r-1", "weight": 0.5, "frequency": int64(2), "confidence": 0.9, "source": "sync"},
		"fromId":    "u-1",
		"fromLabel": "User",
		"toId":      "a-1",
		"toLabel":   "Account",
	}}})
	repo := New(mem)

	rels, err := repo.FindRelationshipsForNode(context.Background(),
		domain.NodeRef{ID: "u-1", Type: domain.NodeTypeUser},
		[]domain.RelationshipType{domain.RelOwns})
	if err != nil {
		t.Fatalf("find relationships: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(rels))
	}
	rel := rels[0]
	if rel.Type != domain.RelOwns || rel.From.ID != "u-1" || rel.To.Type != domain.NodeTypeAccount {
		t.Errorf("unexpected relationship %+v", rel)
	}
	if rel.Weight != 0.5 || rel.Frequency != 2 || rel.Confidence != 0.9 {
		t.Errorf("unexpected scores %+v", rel)
	}
	if rel.Metadata["source"] != "sync" {
		t.Errorf("expected metadata to carry extra properties, got %v", rel.Metadata)
	}
	if q := mem.ReadCalls()[0].Query; !strings.Contains(q, "-[r:OWNS]-()") {
		t.Errorf("expected type filter in:\n%s", q)
	}
}

func TestRepository_CreateNodeKeepsCreatedAt(t *testing.T) {
	mem := graph.NewMemoryClient()
	mem.PushWriteResult(graph.Result{Records: []graph.Record{userRecord("u-1", "Ana")}})
	mem.PushWriteResult(graph.Result{Records: []graph.Record{userRecord("u-1", "Ana")}})
	repo := New(mem)

	at := time.Date(2020, 1, 1, 9, 30, 0, 0, time.UTC)
	node, err := domain.NewNodeWithID("u-1", domain.NodeTypeUser, map[string]any{"name": "Ana"}, at)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	if _, err := repo.CreateNode(context.Background(), node); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.UpdateNode(context.Background(), node.Ref(), map[string]any{"name": "Ana"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	calls := mem.WriteCalls()
	if !strings.Contains(calls[0].Query, "ON CREATE SET n.createdAt = $createdAt") {
		t.Fatalf("createdAt must come from the node:\n%s", calls[0].Query)
	}
	if calls[0].Params["createdAt"] != "2020-01-01T09:30:00Z" {
		t.Errorf("expected node createdAt, got %v", calls[0].Params["createdAt"])
	}
	if calls[1].Params["createdAt"] != calls[1].Params["now"] {
		t.Errorf("update without a timestamp should stamp now, got %v and %v", calls[1].Params["createdAt"], calls[1].Params["now"])
	}
}

func TestRepository_ExecuteReadQueryRejectsMutation(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)

	q := query.MustNew("MATCH (n) DETACH DELETE n", nil)
	if _, err := repo.ExecuteReadQuery(context.Background(), q); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(mem.ReadCalls())+len(mem.WriteCalls()) != 0 {
		t.Fatalf("mutating query must not reach the database")
	}
}

func TestRepository_ExecuteReadQueryReclassifiesHandBuiltQuery(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)

	q := query.Query{Text: "MATCH (n) DETACH DELETE n", ReadOnly: true}
	if _, err := repo.ExecuteReadQuery(context.Background(), q); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(mem.ReadCalls()) != 0 {
		t.Fatalf("mutating query reached a read transaction")
	}

	if _, err := repo.ExecuteQuery(context.Background(), q); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(mem.ReadCalls()) != 0 || len(mem.WriteCalls()) != 1 {
		t.Fatalf("expected the statement to run as a write, got %d/%d", len(mem.ReadCalls()), len(mem.WriteCalls()))
	}
}

func TestRepository_ExecuteQueryRoutesByClassification(t *testing.T) {
	mem := graph.NewMemoryClient()
	mem.PushReadResult(graph.Result{Records: []graph.Record{{"total": int64(3)}}})
	repo := New(mem)

	res, err := repo.ExecuteQuery(context.Background(), query.MustNew("MATCH (n) RETURN count(n) AS total", nil))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0]["total"] != int64(3) {
		t.Fatalf("unexpected records %v", res.Records)
	}
	if _, err := repo.ExecuteQuery(context.Background(), query.MustNew("MATCH (n:Tag) SET n.seen = true", nil)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(mem.ReadCalls()) != 1 || len(mem.WriteCalls()) != 1 {
		t.Fatalf("expected one read and one write, got %d/%d", len(mem.ReadCalls()), len(mem.WriteCalls()))
	}

	mem.PushReadError(errors.New("socket closed"))
	if _, err := repo.ExecuteReadQuery(context.Background(), query.MustNew("RETURN 1", nil)); err == nil {
		t.Fatalf("expected transport error to propagate")
	}
}

func TestRepository_EnsureSchema(t *testing.T) {
	mem := graph.NewMemoryClient()
	repo := New(mem)

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	calls := mem.WriteCalls()
	if len(calls) != len(SchemaStatements()) {
		t.Fatalf("expected %d statements, got %d", len(SchemaStatements()), len(calls))
	}
	joined := make([]string, 0, len(calls))
	for _, c := range calls {
		if !strings.Contains(c.Query, "IF NOT EXISTS") {
			t.Errorf("schema statement must be idempotent: %s", c.Query)
		}
		joined = append(joined, c.Query)
	}
	all := strings.Join(joined, "\n")
	for _, nt := range domain.NodeTypes {
		if !strings.Contains(all, fmt.Sprintf("FOR (n:%s) REQUIRE n.id IS UNIQUE", nt)) {
			t.Errorf("missing uniqueness constraint for %s", nt)
		}
	}
	if !strings.Contains(all, "CREATE FULLTEXT INDEX "+NameSearchIndex) {
		t.Errorf("missing full-text index")
	}
}

func TestRepository_SearchByName(t *testing.T) {
	mem := graph.NewMemoryClient()
	mem.PushReadResult(graph.Result{Records: []graph.Record{{
		"props": map[string]any{"id": "m-1", "name": "Netflix"},
		"label": "Merchant",
		"score": 2.5,
	}}})
	repo := New(mem)

	hits, err := repo.SearchByName(context.Background(), "netflx (hd)", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Node.ID != "m-1" || hits[0].Score != 2.5 {
		t.Fatalf("unexpected hits %+v", hits)
	}
	if terms := mem.ReadCalls()[0].Params["terms"]; terms != `netflx~ \(hd\)~` {
		t.Errorf("unexpected terms %v", terms)
	}
	if _, err := repo.SearchByName(context.Background(), "   ", 5); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for blank search, got %v", err)
	}
}
