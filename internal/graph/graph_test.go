package graph

import "testing"

func TestNoCycleOnDAG(t *testing.T) {
	g := New()
	for _, v := range []TxnID{0, 1, 2, 3, 4, 5} {
		g.Insert(v)
	}
	g.AddEdge(0, 1)
	g.AddEdge(1, 2)
	g.AddEdge(2, 3)
	g.AddEdge(0, 4)
	g.AddEdge(4, 2)
	g.AddEdge(2, 5)

	if cyc := g.DetectCycle(); len(cyc) != 0 {
		t.Fatalf("expected no cycle, got %v", cyc)
	}
}

func TestSimpleCycle(t *testing.T) {
	g := New()
	for _, v := range []TxnID{1, 2, 3} {
		g.Insert(v)
	}
	g.AddEdge(1, 2)
	g.AddEdge(2, 3)
	g.AddEdge(3, 1)

	cyc := g.DetectCycle()
	if len(cyc) != 3 {
		t.Fatalf("expected all 3 vertices in cycle, got %v", cyc)
	}
}

func TestDeleteVertexBreaksCycle(t *testing.T) {
	g := New()
	for _, v := range []TxnID{1, 2, 3} {
		g.Insert(v)
	}
	g.AddEdge(1, 2)
	g.AddEdge(2, 3)
	g.AddEdge(3, 1)

	g.Delete(2)

	if cyc := g.DetectCycle(); len(cyc) != 0 {
		t.Fatalf("expected no cycle after deleting a vertex, got %v", cyc)
	}
}

func TestMultipleDisjointCycles(t *testing.T) {
	g := New()
	for _, v := range []TxnID{1, 2, 5, 6, 7} {
		g.Insert(v)
	}
	g.AddEdge(1, 2)
	g.AddEdge(2, 1)
	g.AddEdge(5, 6)
	g.AddEdge(6, 7)
	g.AddEdge(7, 5)

	cyc := g.DetectCycle()
	if len(cyc) != 5 {
		t.Fatalf("expected 5 vertices across both cycles, got %v", cyc)
	}
}

func TestAddEdgeIgnoresUnknownVertices(t *testing.T) {
	g := New()
	g.Insert(1)
	g.AddEdge(1, 99) // 99 was never inserted
	if cyc := g.DetectCycle(); len(cyc) != 0 {
		t.Fatalf("expected no cycle, got %v", cyc)
	}
}
