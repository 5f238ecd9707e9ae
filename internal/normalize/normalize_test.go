package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/quote-cli/internal/model"
)

func TestNormalizeUnit_Aliases(t *testing.T) {
	tests := []struct {
		raw  string
		want model.Unit
	}{
		{"No.", model.UnitEach},
		{"Nr", model.UnitEach},
		{"EA", model.UnitEach},
		{"each", model.UnitEach},
		{"Item", model.UnitEach},
		{"LM", model.UnitLinearMeter},
		{"Lin M", model.UnitLinearMeter},
		{"lineal metres", model.UnitLinearMeter},
		{"l/m", model.UnitLinearMeter},
		{"m2", model.UnitSquareMeter},
		{"m²", model.UnitSquareMeter},
		{"Sq M", model.UnitSquareMeter},
		{"sqm", model.UnitSquareMeter},
		{"m", model.UnitMeter},
		{"Metres", model.UnitMeter},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := NormalizeUnit(tt.raw)
			assert.Equal(t, tt.want, got.Unit)
			assert.Equal(t, tt.raw, got.Original)
			assert.GreaterOrEqual(t, got.Confidence, 0.8)
		})
	}
}

func TestNormalizeUnit_CanonicalFullConfidence(t *testing.T) {
	got := NormalizeUnit("ea")
	assert.Equal(t, model.UnitEach, got.Unit)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestNormalizeUnit_UnknownPreserved(t *testing.T) {
	got := NormalizeUnit("tonnes")
	assert.Equal(t, model.UnitUnknown, got.Unit)
	assert.Equal(t, "tonnes", got.Original)
	assert.Less(t, got.Confidence, 0.5)

	empty := NormalizeUnit("   ")
	assert.Equal(t, model.UnitUnknown, empty.Unit)
	assert.Equal(t, 0.0, empty.Confidence)
}

func TestNormalizeSystems(t *testing.T) {
	got := NormalizeSystems("Supply & install Ryanfire SL Collar to 100mm uPVC pipe")
	assert.Equal(t, []string{"SL Collar"}, got)

	got = NormalizeSystems("HP Mastic seal to cable tray, fire batt backing")
	assert.Equal(t, []string{"HP/X Mastic", "Fire Batt"}, got)

	got = NormalizeSystems("General builders work")
	assert.Empty(t, got)
}

func TestNormalizeSystems_NoDuplicates(t *testing.T) {
	got := NormalizeSystems("SL collar and ryanfire sl collar to services")
	assert.Equal(t, []string{"SL Collar"}, got)
}

func TestFold(t *testing.T) {
	assert.Equal(t, "separation coupe-feu", Fold("Séparation  Coupe-Feu"))
	assert.Equal(t, "100mm pipe collar", Fold("  100mm   Pipe\tCollar "))
	assert.Equal(t, "", Fold("   "))
}
