package normalize

import "strings"

// systemMap maps lowercase product-name fragments seen in supplier
// schedules to canonical system labels. Order matters where fragments
// overlap, so lookups walk systemOrder rather than ranging the map.
var systemMap = map[string]string{
	"ryanfire sl collar": "SL Collar",
	"sl collar":          "SL Collar",
	"retro collar":       "Retrofit Collar",
	"retrofit collar":    "Retrofit Collar",
	"fire collar":        "Fire Collar",
	"hp mastic":          "HP/X Mastic",
	"x mastic":           "HP/X Mastic",
	"hp/x mastic":        "HP/X Mastic",
	"fyreflex":           "Fyreflex Sealant",
	"fire mastic":        "Fire Mastic",
	"fire rated sealant": "Fire Rated Sealant",
	"acoustic sealant":   "Acoustic Sealant",
	"batt and mastic":    "Batt & Mastic",
	"batt & mastic":      "Batt & Mastic",
	"fire batt":          "Fire Batt",
	"ablative batt":      "Ablative Batt",
	"fire wrap":          "Fire Wrap",
	"intumescent wrap":   "Fire Wrap",
	"fire pillow":        "Fire Pillows",
	"fire pillows":       "Fire Pillows",
	"fire board":         "Fire Board",
	"promat board":       "Fire Board",
	"fire mortar":        "Fire Mortar",
	"fire damper":        "Fire Damper",
	"fire curtain":       "Fire Curtain",
	"fire door":          "Fire Door",
	"intumescent paint":  "Intumescent Coating",
	"intumescent coat":   "Intumescent Coating",
	"transit frame":      "Cable Transit Frame",
	"cable transit":      "Cable Transit Frame",
}

var systemOrder = []string{
	"ryanfire sl collar",
	"retrofit collar",
	"retro collar",
	"sl collar",
	"fire collar",
	"hp/x mastic",
	"hp mastic",
	"x mastic",
	"fyreflex",
	"fire mastic",
	"fire rated sealant",
	"acoustic sealant",
	"batt and mastic",
	"batt & mastic",
	"ablative batt",
	"fire batt",
	"intumescent wrap",
	"fire wrap",
	"fire pillows",
	"fire pillow",
	"promat board",
	"fire board",
	"fire mortar",
	"fire damper",
	"fire curtain",
	"fire door",
	"intumescent paint",
	"intumescent coat",
	"cable transit",
	"transit frame",
}

// NormalizeSystems extracts canonical system labels mentioned in a
// line description. Each label appears at most once, in match order.
func NormalizeSystems(description string) []string {
	text := strings.ToLower(description)
	var out []string
	seen := make(map[string]bool)
	for _, frag := range systemOrder {
		if !strings.Contains(text, frag) {
			continue
		}
		label := systemMap[frag]
		if seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
	}
	return out
}
