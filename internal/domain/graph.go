package domain

// PathNode represents a node within a graph path.
type PathNode struct {
	ID    string
	Type  string
	Label string
}

// PathEdge represents an edge between two nodes in a path.
type PathEdge struct {
	Type   string
	Source string
	Target string
	Weight float64
}

// Path is an ordered walk through the graph.
type Path struct {
	Nodes  []PathNode
	Edges  []PathEdge
	Length int
}

// Neighbor is a node reached from the center of a neighborhood.
type Neighbor struct {
	Node         Node
	Relationship *Relationship
	Distance     int
}

// Neighborhood is the result of expanding around a center node.
type Neighborhood struct {
	Center    Node
	Neighbors []Neighbor
}

// GraphStatistics summarises the size and shape of the whole graph.
type GraphStatistics struct {
	NodeCounts         map[string]int64
	RelationshipCounts map[string]int64
	TotalNodes         int64
	TotalRelationships int64
	AverageDegree      float64
	Density            float64
}

// NewGraphStatistics derives totals, average degree and density from per-type counts.
// Both ratios are 0 when their denominator is 0.
func NewGraphStatistics(nodeCounts, relCounts map[string]int64) GraphStatistics {
	stats := GraphStatistics{
		NodeCounts:         make(map[string]int64, len(nodeCounts)),
		RelationshipCounts: make(map[string]int64, len(relCounts)),
	}
	for k, v := range nodeCounts {
		stats.NodeCounts[k] = v
		stats.TotalNodes += v
	}
	for k, v := range relCounts {
		stats.RelationshipCounts[k] = v
		stats.TotalRelationships += v
	}

	nodes := float64(stats.TotalNodes)
	edges := float64(stats.TotalRelationships)
	if nodes > 0 {
		stats.AverageDegree = 2 * edges / nodes
	}
	if nodes > 1 {
		stats.Density = edges / (nodes * (nodes - 1))
	}
	return stats
}
