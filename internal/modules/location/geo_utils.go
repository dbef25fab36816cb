// README: Pure helpers for nearby-search ordering.
package location

import "sort"

// sortByDistance orders hits by ascending distance, ties broken by driver ID.
func sortByDistance(items []Nearby) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].DistanceKm != items[j].DistanceKm {
			return items[i].DistanceKm < items[j].DistanceKm
		}
		return items[i].DriverID < items[j].DriverID
	})
}

func effectiveRadius(radiusKm float64) float64 {
	if radiusKm <= 0 {
		return DefaultRadiusKm
	}
	return radiusKm
}
