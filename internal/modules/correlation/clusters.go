package correlation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aristath/lpsentinel/internal/domain"
)

// buildClusters groups positions greedily in slot order: a position joins the first
// cluster holding a member it correlates with above the threshold, else opens a new one.
func (e *Engine) buildClusters(snap *domain.Snapshot, weights []float64, corr [][]float64) []Cluster {
	n := snap.Len()
	if n == 0 {
		return []Cluster{}
	}

	var groups [][]int
	for i := 0; i < n; i++ {
		placed := false
		for g := range groups {
			for _, member := range groups[g] {
				if corr[i][member] > e.cfg.ClusterThreshold {
					groups[g] = append(groups[g], i)
					placed = true
					break
				}
			}
			if placed {
				break
			}
		}
		if !placed {
			groups = append(groups, []int{i})
		}
	}

	clusters := make([]Cluster, 0, len(groups))
	for g, members := range groups {
		c := Cluster{
			ID:          fmt.Sprintf("cluster-%d", g+1),
			PositionIDs: make([]string, 0, len(members)),
		}

		sum, count := 0.0, 0
		for x, i := range members {
			c.PositionIDs = append(c.PositionIDs, snap.Positions[i].ID)
			c.TotalValue += snap.Analytics[i].TotalValue
			c.Weight += weights[i]
			for _, j := range members[x+1:] {
				sum += corr[i][j]
				count++
			}
		}
		if count > 0 {
			c.AverageCorrelation = sum / float64(count)
		}
		c.SharedTokens = clusterTokens(snap, members)
		c.RiskLevel = clusterRiskLevel(c)
		clusters = append(clusters, c)
	}
	return clusters
}

// clusterTokens lists symbols held by every member of a multi-position cluster
func clusterTokens(snap *domain.Snapshot, members []int) []string {
	if len(members) < 2 {
		return nil
	}
	counts := make(map[string]int)
	for _, i := range members {
		seen := make(map[string]struct{})
		for _, s := range snap.Positions[i].Symbols() {
			key := strings.ToUpper(s)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			counts[key]++
		}
	}
	var out []string
	for token, c := range counts {
		if c == len(members) {
			out = append(out, token)
		}
	}
	sort.Strings(out)
	return out
}

func clusterRiskLevel(c Cluster) string {
	if len(c.PositionIDs) < 2 {
		return "low"
	}
	score := c.Weight * c.AverageCorrelation
	switch {
	case score > 0.4:
		return "high"
	case score > 0.2:
		return "medium"
	default:
		return "low"
	}
}
