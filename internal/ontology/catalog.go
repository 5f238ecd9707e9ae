// Package ontology matches free-text quote lines against the fixed
// passive-fire-protection catalog and, where lexical scoring is not
// confident enough, escalates to an AI grader.
package ontology

import "github.com/sells-group/quote-cli/internal/model"

// Entry is one catalog item. Size bounds are millimetres and inclusive;
// zero bounds mean the entry is size-agnostic. FRRMinutes of zero means
// no specific fire resistance rating.
type Entry struct {
	Code       string
	Label      string
	Category   string
	Keywords   []string
	SizeMinMM  int
	SizeMaxMM  int
	FRRMinutes int
	Unit       model.Unit
}

// Catalog is the fixed system catalog. Order is significant: score
// ties resolve in favor of the earlier entry.
var Catalog = []Entry{
	// Cable penetrations
	{Code: "PE_CABLE_30", Label: "Cable penetration seal, 30min", Category: "penetration", Keywords: []string{"cable", "penetration", "seal"}, FRRMinutes: 30, Unit: model.UnitEach},
	{Code: "PE_CABLE_60", Label: "Cable penetration seal, 60min", Category: "penetration", Keywords: []string{"cable", "penetration", "seal"}, FRRMinutes: 60, Unit: model.UnitEach},
	{Code: "PE_CABLE_90", Label: "Cable penetration seal, 90min", Category: "penetration", Keywords: []string{"cable", "penetration", "seal"}, FRRMinutes: 90, Unit: model.UnitEach},
	{Code: "PE_CABLE_120", Label: "Cable penetration seal, 120min", Category: "penetration", Keywords: []string{"cable", "penetration", "seal"}, FRRMinutes: 120, Unit: model.UnitEach},
	{Code: "PE_CABLE_TRAY", Label: "Cable tray penetration seal", Category: "penetration", Keywords: []string{"cable tray", "tray", "penetration"}, Unit: model.UnitEach},
	{Code: "PE_CABLE_BUNDLE", Label: "Cable bundle seal", Category: "penetration", Keywords: []string{"cable", "bundle", "seal"}, SizeMinMM: 0, SizeMaxMM: 100, Unit: model.UnitEach},

	// Pipe penetrations by size band
	{Code: "PE_PIPE_0_50", Label: "Pipe penetration seal, up to 50mm", Category: "penetration", Keywords: []string{"pipe", "penetration", "seal"}, SizeMinMM: 1, SizeMaxMM: 50, Unit: model.UnitEach},
	{Code: "PE_PIPE_50_100", Label: "Pipe penetration seal, 50-100mm", Category: "penetration", Keywords: []string{"pipe", "penetration", "seal"}, SizeMinMM: 50, SizeMaxMM: 100, Unit: model.UnitEach},
	{Code: "PE_PIPE_100_150", Label: "Pipe penetration seal, 100-150mm", Category: "penetration", Keywords: []string{"pipe", "penetration", "seal"}, SizeMinMM: 100, SizeMaxMM: 150, Unit: model.UnitEach},
	{Code: "PE_PIPE_150_250", Label: "Pipe penetration seal, 150-250mm", Category: "penetration", Keywords: []string{"pipe", "penetration", "seal"}, SizeMinMM: 150, SizeMaxMM: 250, Unit: model.UnitEach},
	{Code: "PE_PIPE_PVC", Label: "uPVC pipe penetration with collar", Category: "penetration", Keywords: []string{"pvc", "upvc", "pipe", "collar"}, Unit: model.UnitEach},
	{Code: "PE_PIPE_COPPER", Label: "Copper pipe penetration seal", Category: "penetration", Keywords: []string{"copper", "pipe", "seal"}, Unit: model.UnitEach},
	{Code: "PE_PIPE_STEEL", Label: "Steel pipe penetration seal", Category: "penetration", Keywords: []string{"steel", "pipe", "seal"}, Unit: model.UnitEach},
	{Code: "PE_PIPE_LAGGED", Label: "Lagged/insulated pipe penetration", Category: "penetration", Keywords: []string{"lagged", "insulated", "pipe"}, Unit: model.UnitEach},

	// Duct penetrations
	{Code: "PE_DUCT_SMALL", Label: "Duct penetration seal, up to 300mm", Category: "penetration", Keywords: []string{"duct", "penetration", "seal"}, SizeMinMM: 1, SizeMaxMM: 300, Unit: model.UnitEach},
	{Code: "PE_DUCT_LARGE", Label: "Duct penetration seal, over 300mm", Category: "penetration", Keywords: []string{"duct", "penetration", "seal"}, SizeMinMM: 300, SizeMaxMM: 2000, Unit: model.UnitEach},
	{Code: "PE_DUCT_WRAP", Label: "Duct fire wrap", Category: "penetration", Keywords: []string{"duct", "wrap", "fire wrap"}, Unit: model.UnitLinearMeter},

	// Mixed and blank penetrations
	{Code: "PE_MIXED_SMALL", Label: "Mixed services penetration, small opening", Category: "penetration", Keywords: []string{"mixed", "services", "penetration"}, SizeMinMM: 1, SizeMaxMM: 300, Unit: model.UnitEach},
	{Code: "PE_MIXED_LARGE", Label: "Mixed services penetration, large opening", Category: "penetration", Keywords: []string{"mixed", "services", "opening"}, SizeMinMM: 300, SizeMaxMM: 2000, Unit: model.UnitEach},
	{Code: "PE_BLANK_SMALL", Label: "Blank opening seal, small", Category: "penetration", Keywords: []string{"blank", "opening", "seal"}, SizeMinMM: 1, SizeMaxMM: 300, Unit: model.UnitEach},
	{Code: "PE_BLANK_LARGE", Label: "Blank opening seal, large", Category: "penetration", Keywords: []string{"blank", "opening", "infill"}, SizeMinMM: 300, SizeMaxMM: 2000, Unit: model.UnitEach},

	// Proprietary systems
	{Code: "SL_COLLAR", Label: "SL fire collar", Category: "penetration", Keywords: []string{"sl collar", "ryanfire", "collar"}, Unit: model.UnitEach},
	{Code: "RETRO_COLLAR", Label: "Retrofit fire collar", Category: "penetration", Keywords: []string{"retro", "retrofit", "collar"}, Unit: model.UnitEach},
	{Code: "HP_X_MASTIC", Label: "HP/X fire mastic seal", Category: "penetration", Keywords: []string{"mastic", "hp mastic", "x mastic", "sealant"}, Unit: model.UnitLinearMeter},
	{Code: "BATT_WRAP", Label: "Fire batt and wrap system", Category: "penetration", Keywords: []string{"batt", "wrap", "ablative"}, Unit: model.UnitSquareMeter},
	{Code: "BOARD_SEAL", Label: "Fire board seal", Category: "penetration", Keywords: []string{"board", "promat", "fire board"}, Unit: model.UnitSquareMeter},
	{Code: "PILLOW_SEAL", Label: "Fire pillow seal", Category: "penetration", Keywords: []string{"pillow", "pillows"}, Unit: model.UnitEach},
	{Code: "MORTAR_SEAL", Label: "Fire mortar seal", Category: "penetration", Keywords: []string{"mortar", "grout"}, Unit: model.UnitSquareMeter},
	{Code: "TRANSIT_FRAME", Label: "Cable transit frame", Category: "penetration", Keywords: []string{"transit", "frame", "roxtec"}, Unit: model.UnitEach},

	// Linear joints
	{Code: "LJ_HEAD_OF_WALL", Label: "Head of wall joint seal", Category: "joint", Keywords: []string{"head of wall", "how", "joint"}, Unit: model.UnitLinearMeter},
	{Code: "LJ_WALL_WALL", Label: "Wall to wall joint seal", Category: "joint", Keywords: []string{"wall to wall", "vertical joint", "joint"}, Unit: model.UnitLinearMeter},
	{Code: "LJ_FLOOR_WALL", Label: "Floor to wall joint seal", Category: "joint", Keywords: []string{"floor to wall", "perimeter joint", "joint"}, Unit: model.UnitLinearMeter},
	{Code: "LJ_SLAB_EDGE", Label: "Slab edge joint seal", Category: "joint", Keywords: []string{"slab edge", "slab", "joint"}, Unit: model.UnitLinearMeter},
	{Code: "LJ_SEISMIC_30", Label: "Seismic joint seal, 30min", Category: "joint", Keywords: []string{"seismic", "joint", "movement"}, FRRMinutes: 30, Unit: model.UnitLinearMeter},
	{Code: "LJ_SEISMIC_60", Label: "Seismic joint seal, 60min", Category: "joint", Keywords: []string{"seismic", "joint", "movement"}, FRRMinutes: 60, Unit: model.UnitLinearMeter},
	{Code: "LJ_SEISMIC_120", Label: "Seismic joint seal, 120min", Category: "joint", Keywords: []string{"seismic", "joint", "movement"}, FRRMinutes: 120, Unit: model.UnitLinearMeter},

	// Intumescent coatings
	{Code: "IC_UC", Label: "Intumescent coating to UC columns", Category: "coating", Keywords: []string{"intumescent", "uc", "column"}, Unit: model.UnitSquareMeter},
	{Code: "IC_UB", Label: "Intumescent coating to UB beams", Category: "coating", Keywords: []string{"intumescent", "ub", "beam"}, Unit: model.UnitSquareMeter},
	{Code: "IC_HOLLOW", Label: "Intumescent coating to hollow sections", Category: "coating", Keywords: []string{"intumescent", "shs", "rhs", "chs", "hollow"}, Unit: model.UnitSquareMeter},
	{Code: "IC_TOUCHUP", Label: "Intumescent coating touch-up", Category: "coating", Keywords: []string{"intumescent", "touch up", "touch-up", "repair"}, Unit: model.UnitSquareMeter},

	// Fire doors
	{Code: "FD_SINGLE_60", Label: "Single fire door, 60min", Category: "door", Keywords: []string{"fire door", "single", "door"}, FRRMinutes: 60, Unit: model.UnitEach},
	{Code: "FD_DOUBLE_60", Label: "Double fire door, 60min", Category: "door", Keywords: []string{"fire door", "double", "door"}, FRRMinutes: 60, Unit: model.UnitEach},
	{Code: "FD_SINGLE_90", Label: "Single fire door, 90min", Category: "door", Keywords: []string{"fire door", "single", "door"}, FRRMinutes: 90, Unit: model.UnitEach},
	{Code: "FD_HARDWARE", Label: "Fire door hardware set", Category: "door", Keywords: []string{"door", "hardware", "closer", "ironmongery"}, Unit: model.UnitEach},
	{Code: "FD_INSPECT", Label: "Fire door inspection and tagging", Category: "door", Keywords: []string{"door", "inspection", "tag", "survey"}, Unit: model.UnitEach},

	// Fire curtains and dampers
	{Code: "FC_VERTICAL", Label: "Vertical fire curtain", Category: "curtain", Keywords: []string{"fire curtain", "curtain", "vertical"}, Unit: model.UnitSquareMeter},
	{Code: "FC_HORIZONTAL", Label: "Horizontal fire curtain", Category: "curtain", Keywords: []string{"fire curtain", "curtain", "horizontal"}, Unit: model.UnitSquareMeter},
	{Code: "DAMP_FIRE", Label: "Fire damper supply and install", Category: "damper", Keywords: []string{"fire damper", "damper"}, Unit: model.UnitEach},
	{Code: "DAMP_COMBO", Label: "Combination fire/smoke damper", Category: "damper", Keywords: []string{"smoke damper", "combination", "damper"}, Unit: model.UnitEach},
	{Code: "DAMP_INSTALL_ONLY", Label: "Fire damper install only", Category: "damper", Keywords: []string{"damper", "install only", "installation"}, Unit: model.UnitEach},

	// Site-wide and commercial lines
	{Code: "SEISMIC", Label: "Seismic restraint allowance", Category: "general", Keywords: []string{"seismic", "restraint", "bracing"}, Unit: model.UnitEach},
	{Code: "MEWP_ACCESS", Label: "MEWP / access equipment", Category: "general", Keywords: []string{"mewp", "scissor lift", "boom", "access equipment"}, Unit: model.UnitEach},
	{Code: "SITE_SETUP", Label: "Site establishment", Category: "general", Keywords: []string{"site establishment", "establishment", "mobilisation", "setup"}, Unit: model.UnitEach},
	{Code: "QA_PS3", Label: "QA documentation and PS3", Category: "general", Keywords: []string{"ps3", "producer statement", "qa", "documentation"}, Unit: model.UnitEach},
	{Code: "PG_MARGIN", Label: "Preliminaries and general margin", Category: "general", Keywords: []string{"preliminary", "preliminaries", "margin", "p&g"}, Unit: model.UnitEach},
	{Code: "CONTINGENCY", Label: "Contingency allowance", Category: "general", Keywords: []string{"contingency", "allowance"}, Unit: model.UnitEach},
}

// ByCode returns the catalog entry with the given code, if present.
func ByCode(code string) (Entry, bool) {
	for _, e := range Catalog {
		if e.Code == code {
			return e, true
		}
	}
	return Entry{}, false
}
