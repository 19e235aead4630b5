package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/djc-jpg/travel-planning-agent/core"
)

// Cluster is a group of geographically close POIs with a running centroid.
type Cluster struct {
	ID            string
	CentroidLat   float64
	CentroidLon   float64
	Members       []core.POI
	TotalDuration float64 // hours, including default durations
}

func (c *Cluster) add(poi core.POI) {
	n := float64(len(c.Members))
	c.CentroidLat = (c.CentroidLat*n + poi.Lat) / (n + 1)
	c.CentroidLon = (c.CentroidLon*n + poi.Lon) / (n + 1)
	c.Members = append(c.Members, poi)
	c.TotalDuration += visitDurationHours(poi)
}

// BuildClusters groups the pool with single-link clustering: a POI joins the
// nearest cluster whose centroid is within the mode radius, otherwise it
// seeds a new cluster. Deterministic for a given input order.
func BuildClusters(pool []core.POI, mode core.TransportMode) []*Cluster {
	radius := mode.ClusterRadiusKm()
	var clusters []*Cluster
	next := 1
	for _, poi := range pool {
		var best *Cluster
		bestDist := radius + 1
		for _, cl := range clusters {
			d := HaversineKm(cl.CentroidLat, cl.CentroidLon, poi.Lat, poi.Lon)
			if d <= radius && d < bestDist {
				best = cl
				bestDist = d
			}
		}
		if best == nil {
			best = &Cluster{
				ID:          fmt.Sprintf("geo:%d", next),
				CentroidLat: poi.Lat,
				CentroidLon: poi.Lon,
			}
			next++
			clusters = append(clusters, best)
			best.Members = append(best.Members, poi)
			best.TotalDuration += visitDurationHours(poi)
			continue
		}
		best.add(poi)
	}
	return clusters
}

// ClusterLookup maps POI ids to their cluster ids.
func ClusterLookup(clusters []*Cluster) map[string]string {
	lookup := make(map[string]string)
	for _, cl := range clusters {
		for _, poi := range cl.Members {
			lookup[poi.ID] = cl.ID
		}
	}
	return lookup
}

// PartitionDays assigns clusters to days round-robin, always giving the next
// cluster to the currently lightest day (by accumulated duration), so that
// each day stays within the 8h activity budget where possible. Pinned POIs
// keep their cluster; overflowing members spill to the next lightest day.
func PartitionDays(clusters []*Cluster, days int) [][]core.POI {
	if days <= 0 {
		return nil
	}
	assigned := make([][]core.POI, days)
	load := make([]float64, days)

	// Heaviest clusters first so the weighted round-robin balances well.
	ordered := make([]*Cluster, len(clusters))
	copy(ordered, clusters)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].TotalDuration != ordered[j].TotalDuration {
			return ordered[i].TotalDuration > ordered[j].TotalDuration
		}
		return ordered[i].ID < ordered[j].ID
	})

	budgetHours := float64(core.DailyActivityBudgetMinutes) / 60

	lightest := func() int {
		day := 0
		for i := 1; i < days; i++ {
			if load[i] < load[day] {
				day = i
			}
		}
		return day
	}

	for _, cl := range ordered {
		day := lightest()
		for _, poi := range cl.Members {
			d := visitDurationHours(poi)
			if load[day]+d > budgetHours && len(assigned[day]) > 0 {
				day = lightest()
			}
			assigned[day] = append(assigned[day], poi)
			load[day] += d
		}
	}
	return assigned
}

// CountClusterSwitches counts how many times consecutive main items in a day
// change cluster.
func CountClusterSwitches(items []core.ScheduleItem, lookup map[string]string) int {
	switches := 0
	prev := ""
	for _, item := range items {
		if item.IsBackup {
			continue
		}
		cur := lookup[item.POIRef]
		if prev != "" && cur != "" && cur != prev {
			switches++
		}
		if cur != "" {
			prev = cur
		}
	}
	return switches
}

// visitDurationHours resolves a POI's visit duration, falling back to a
// theme-based default when the dataset gives none.
func visitDurationHours(poi core.POI) float64 {
	if poi.TypicalDuration > 0 {
		return poi.TypicalDuration
	}
	return defaultDurationHours(poi)
}

var defaultDurations = []struct {
	hours    float64
	keywords []string
}{
	{2.0, []string{"museum", "gallery", "history", "art"}},
	{1.0, []string{"temple", "shrine", "church", "landmark", "tower", "monument", "square"}},
	{1.5, []string{"park", "garden", "nature", "shopping", "mall", "market", "food", "street"}},
	{1.0, []string{"night", "sunset", "viewpoint", "observation"}},
}

func defaultDurationHours(poi core.POI) float64 {
	text := poi.Name
	for _, t := range poi.Themes {
		text += " " + t
	}
	lower := strings.ToLower(text)
	for _, d := range defaultDurations {
		for _, kw := range d.keywords {
			if strings.Contains(lower, kw) {
				return d.hours
			}
		}
	}
	return 1.5
}
