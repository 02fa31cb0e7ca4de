package catalog

import (
	"fmt"
	"sort"

	"github.com/MeKo-Tech/pbrgen/internal/palette"
)

// SortBySwatch orders materials by perceptual distance of their swatch to
// hex, closest first. Materials without a swatch sort last; ties keep their
// order.
func SortBySwatch(materials []Material, hex string) error {
	if !palette.ValidSwatch(hex) {
		return fmt.Errorf("invalid swatch %q: want #rrggbb", hex)
	}

	dist := make(map[string]float64, len(materials))
	for _, m := range materials {
		if m.Swatch == "" {
			continue
		}
		dist[m.Base] = palette.Distance(m.Swatch, hex)
	}

	sort.SliceStable(materials, func(i, j int) bool {
		di, iok := dist[materials[i].Base]
		dj, jok := dist[materials[j].Base]
		if iok != jok {
			return iok
		}
		return di < dj
	})
	return nil
}
