package transport

import (
	"sort"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

// orderedURLs filters a network's URL list by kind (dropping zero-weight
// entries) and orders it by descending weight. The sort is stable so
// equally weighted entries keep their configured order.
func orderedURLs(network *models.Network, urlType string) []string {
	entries := network.URLsByType(urlType)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Weight > entries[j].Weight
	})
	urls := make([]string, len(entries))
	for i, e := range entries {
		urls[i] = e.URL
	}
	return urls
}

// splitActive removes the element at idx and returns it along with the
// remaining entries in their original order.
func splitActive(urls []string, idx int) (string, []string) {
	active := urls[idx]
	rest := make([]string, 0, len(urls)-1)
	rest = append(rest, urls[:idx]...)
	rest = append(rest, urls[idx+1:]...)
	return active, rest
}
