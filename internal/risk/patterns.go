// Package risk scans quote text for commercial red flags: exclusions,
// vague pricing, compliance gaps, and the other wording that turns
// into variations later.
package risk

import (
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/quote-cli/internal/model"
)

// Pattern is one detection rule. Expr is a case-insensitive regular
// expression applied per line of quote text.
type Pattern struct {
	ID             string             `yaml:"id"`
	Category       model.RiskCategory `yaml:"category"`
	Severity       model.RiskSeverity `yaml:"severity"`
	Title          string             `yaml:"title"`
	Expr           string             `yaml:"pattern"`
	Recommendation string             `yaml:"recommendation"`

	re *regexp.Regexp
}

// LoadPatterns reads a YAML pattern library from disk, replacing the
// built-in set. Used when an estimator maintains their own library.
func LoadPatterns(path string) ([]Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "risk: read patterns %s", path)
	}
	var patterns []Pattern
	if err := yaml.Unmarshal(data, &patterns); err != nil {
		return nil, eris.Wrapf(err, "risk: parse patterns %s", path)
	}
	if err := compile(patterns); err != nil {
		return nil, err
	}
	return patterns, nil
}

func compile(patterns []Pattern) error {
	for i := range patterns {
		re, err := regexp.Compile("(?i)" + patterns[i].Expr)
		if err != nil {
			return eris.Wrapf(err, "risk: compile pattern %s", patterns[i].ID)
		}
		patterns[i].re = re
	}
	return nil
}

// BuiltinPatterns returns the default pattern library, compiled.
func BuiltinPatterns() []Pattern {
	patterns := make([]Pattern, len(builtin))
	copy(patterns, builtin)
	if err := compile(patterns); err != nil {
		// Built-in expressions are fixed; a failure here is a programming error.
		panic(err)
	}
	return patterns
}

var builtin = []Pattern{
	// Exclusions
	{ID: "EXC_BY_OTHERS", Category: model.RiskExclusion, Severity: model.SeverityHigh, Title: "Work passed to others", Expr: `\bby others\b`, Recommendation: "Confirm which trade carries this work and at what cost."},
	{ID: "EXC_NOT_INCLUDED", Category: model.RiskExclusion, Severity: model.SeverityHigh, Title: "Explicit exclusion", Expr: `\b(not included|excluded|exclusions?)\b`, Recommendation: "List every exclusion against the head contract scope."},
	{ID: "EXC_BUILDERS_WORK", Category: model.RiskExclusion, Severity: model.SeverityMedium, Title: "Builder's work excluded", Expr: `builder'?s?\s+work`, Recommendation: "Price the builder's work separately before comparing totals."},
	{ID: "EXC_SCAFFOLD", Category: model.RiskExclusion, Severity: model.SeverityMedium, Title: "Scaffolding excluded", Expr: `scaffold(ing)?\b.*\b(excluded|not included)`, Recommendation: "Add a scaffolding allowance to this supplier's total."},
	{ID: "EXC_MAKING_GOOD", Category: model.RiskExclusion, Severity: model.SeverityMedium, Title: "Making good excluded", Expr: `making good`, Recommendation: "Confirm who reinstates finishes after penetration sealing."},
	{ID: "EXC_PENETRATION_FORMING", Category: model.RiskExclusion, Severity: model.SeverityMedium, Title: "Forming or drilling excluded", Expr: `(forming of penetrations|core[- ]?drill)`, Recommendation: "Check drilling is priced elsewhere before awarding."},
	{ID: "EXC_FIRE_DOORS", Category: model.RiskExclusion, Severity: model.SeverityMedium, Title: "Fire doors excluded", Expr: `fire doors?\b.*\b(excluded|not included|by others)`, Recommendation: "Confirm fire door scope sits with another package."},
	{ID: "EXC_DESIGN", Category: model.RiskExclusion, Severity: model.SeverityHigh, Title: "Design excluded", Expr: `(design\s+(is\s+)?excluded|no design responsibility)`, Recommendation: "Establish who carries design liability for tested systems."},
	{ID: "EXC_WASTE", Category: model.RiskExclusion, Severity: model.SeverityLow, Title: "Waste removal excluded", Expr: `(waste|rubbish)\b.*\b(excluded|not included|by others)`, Recommendation: "Minor, but assign waste removal before site start."},
	{ID: "EXC_POWER", Category: model.RiskExclusion, Severity: model.SeverityLow, Title: "Power and lighting by others", Expr: `(power|lighting)\b.*\b(by others|supplied by)`, Recommendation: "Confirm temporary services are available."},
	{ID: "EXC_PAINTING", Category: model.RiskExclusion, Severity: model.SeverityLow, Title: "Decoration excluded", Expr: `(painting|decoration)\b.*\b(excluded|not included|by others)`, Recommendation: "Note decoration scope for the finishing trades."},

	// Assumptions
	{ID: "ASSUME_GENERIC", Category: model.RiskAssumption, Severity: model.SeverityMedium, Title: "Stated assumption", Expr: `(we have assumed|it is assumed|our assumption)`, Recommendation: "Validate each stated assumption against site conditions."},
	{ID: "ASSUME_CLEAR_ACCESS", Category: model.RiskAssumption, Severity: model.SeverityMedium, Title: "Clear access assumed", Expr: `(clear|unimpeded|free)\s+access`, Recommendation: "Confirm access windows with the main contractor programme."},
	{ID: "ASSUME_NORMAL_HOURS", Category: model.RiskAssumption, Severity: model.SeverityMedium, Title: "Normal hours assumed", Expr: `(normal working hours|business hours|standard hours)`, Recommendation: "Check whether any work must happen outside normal hours."},
	{ID: "ASSUME_QUANTITIES", Category: model.RiskAssumption, Severity: model.SeverityHigh, Title: "Quantities assumed", Expr: `quantit(y|ies)\b.*\b(estimated|approximate|assumed|indicative)`, Recommendation: "Agree a remeasure mechanism before contract."},
	{ID: "ASSUME_SUBSTRATE", Category: model.RiskAssumption, Severity: model.SeverityMedium, Title: "Substrate condition assumed", Expr: `(subject to substrate|substrate condition)`, Recommendation: "Survey representative substrates before pricing is fixed."},
	{ID: "ASSUME_ONE_VISIT", Category: model.RiskAssumption, Severity: model.SeverityLow, Title: "Continuous work assumed", Expr: `(single visit|one visit|continuous run|one mobili[sz]ation)`, Recommendation: "Price return visits if the programme is staged."},
	{ID: "ASSUME_SERVICES_MARKED", Category: model.RiskAssumption, Severity: model.SeverityMedium, Title: "Services identification assumed", Expr: `services\b.*\b(identified|marked|located)\s+by`, Recommendation: "Agree who locates and marks services."},

	// Vague wording
	{ID: "VAGUE_TBC", Category: model.RiskVague, Severity: model.SeverityCritical, Title: "To be confirmed", Expr: `(\btbc\b|to be confirmed)`, Recommendation: "Do not award until this is confirmed in writing."},
	{ID: "VAGUE_TBA", Category: model.RiskVague, Severity: model.SeverityHigh, Title: "To be advised", Expr: `(\btba\b|to be (advised|agreed))`, Recommendation: "Chase the supplier for a firm position."},
	{ID: "VAGUE_APPROX", Category: model.RiskVague, Severity: model.SeverityMedium, Title: "Approximate figures", Expr: `\b(approx\.?|approximately|circa)\b`, Recommendation: "Ask for firm quantities or a rate-based structure."},
	{ID: "VAGUE_ALLOWANCE", Category: model.RiskVague, Severity: model.SeverityMedium, Title: "Allowance only", Expr: `(allowance only|nominal (sum|allowance))`, Recommendation: "Treat as provisional and budget accordingly."},
	{ID: "VAGUE_INDICATIVE", Category: model.RiskVague, Severity: model.SeverityHigh, Title: "Indicative pricing", Expr: `(indicative (only|price|pricing)|budget (price|estimate|figure))`, Recommendation: "Request a firm, fixed-price submission."},
	{ID: "VAGUE_SUBJECT_TO_SURVEY", Category: model.RiskVague, Severity: model.SeverityHigh, Title: "Subject to survey", Expr: `subject to (site )?(survey|inspection|measure)`, Recommendation: "Schedule the survey before comparing quotes."},
	{ID: "VAGUE_IF_REQUIRED", Category: model.RiskVague, Severity: model.SeverityLow, Title: "Open-ended scope wording", Expr: `\b(if|as|where) required\b`, Recommendation: "Pin down the trigger and the rate for conditional work."},

	// Pricing
	{ID: "PRICE_SUBJECT_TO_ESCALATION", Category: model.RiskPricing, Severity: model.SeverityCritical, Title: "Price escalation clause", Expr: `(escalation|rise and fall|price increase|cost fluctuation)`, Recommendation: "Cap or delete the escalation clause before award."},
	{ID: "PRICE_VALIDITY", Category: model.RiskPricing, Severity: model.SeverityMedium, Title: "Limited price validity", Expr: `valid (for|until)\b`, Recommendation: "Check the validity window against the award date."},
	{ID: "PRICE_RATE_ONLY", Category: model.RiskPricing, Severity: model.SeverityHigh, Title: "Rates only / remeasure", Expr: `(rates? only|schedule of rates|subject to remeasure)`, Recommendation: "Fix quantities or budget for remeasure risk."},
	{ID: "PRICE_DEPOSIT", Category: model.RiskPricing, Severity: model.SeverityMedium, Title: "Advance payment required", Expr: `(deposit|payment in advance|upfront payment)`, Recommendation: "Review payment terms against the head contract."},
	{ID: "PRICE_PROVISIONAL", Category: model.RiskPricing, Severity: model.SeverityHigh, Title: "Provisional sums included", Expr: `(provisional sum|prime cost|p\.?c\.?\s+sum)`, Recommendation: "Split provisional sums out before comparing totals."},
	{ID: "PRICE_GST", Category: model.RiskPricing, Severity: model.SeverityLow, Title: "Tax treatment flagged", Expr: `(excl(uding|\.)? gst|plus gst|gst exclusive)`, Recommendation: "Normalize all quotes to the same tax basis."},
	{ID: "PRICE_MIN_CHARGE", Category: model.RiskPricing, Severity: model.SeverityLow, Title: "Minimum charge", Expr: `minimum (charge|order|call[- ]?out)`, Recommendation: "Check small-quantity lines against the minimum charge."},
	{ID: "PRICE_OVERTIME", Category: model.RiskPricing, Severity: model.SeverityMedium, Title: "Overtime chargeable", Expr: `overtime`, Recommendation: "Agree overtime rates and approval process up front."},

	// Scope
	{ID: "SCOPE_DRAWINGS_ONLY", Category: model.RiskScope, Severity: model.SeverityHigh, Title: "Scope limited to drawings", Expr: `(as per|per|from) drawings?\b`, Recommendation: "Verify the drawing revision matches the tender set."},
	{ID: "SCOPE_VARIATION", Category: model.RiskScope, Severity: model.SeverityHigh, Title: "Variation trigger", Expr: `(variation|extra over|additional works? (will|to) be charged)`, Recommendation: "Define the variation process and rates in the contract."},
	{ID: "SCOPE_LIMITED", Category: model.RiskScope, Severity: model.SeverityMedium, Title: "Narrow scope wording", Expr: `(limited to|only includes|restricted to)`, Recommendation: "Map the stated scope against the full schedule."},
	{ID: "SCOPE_STAGING", Category: model.RiskScope, Severity: model.SeverityMedium, Title: "Staging constraint", Expr: `(staging|out of sequence|staged works)`, Recommendation: "Align staging assumptions with the build programme."},
	{ID: "SCOPE_NOMINATED_PRODUCT", Category: model.RiskScope, Severity: model.SeverityLow, Title: "Single nominated product", Expr: `(nominated product|specified product only)`, Recommendation: "Confirm the nominated product has current certification."},

	// Timeline
	{ID: "TIME_LEAD_TIME", Category: model.RiskTimeline, Severity: model.SeverityHigh, Title: "Long lead time", Expr: `lead[- ]?time`, Recommendation: "Check lead times against the programme critical path."},
	{ID: "TIME_PROGRAMME", Category: model.RiskTimeline, Severity: model.SeverityMedium, Title: "Programme not fixed", Expr: `(subject to programme|programme to be (confirmed|agreed))`, Recommendation: "Lock the programme window before award."},
	{ID: "TIME_AVAILABILITY", Category: model.RiskTimeline, Severity: model.SeverityMedium, Title: "Subject to availability", Expr: `subject to (labour |resource )?availability`, Recommendation: "Get a committed start date in writing."},
	{ID: "TIME_SHUTDOWN", Category: model.RiskTimeline, Severity: model.SeverityMedium, Title: "Shutdown or isolation needed", Expr: `(shutdown|isolation of services)`, Recommendation: "Book shutdowns with the building owner early."},
	{ID: "TIME_WEATHER", Category: model.RiskTimeline, Severity: model.SeverityLow, Title: "Weather dependency", Expr: `weather (permitting|dependent)`, Recommendation: "Note float needed for weather-exposed work."},

	// Quality
	{ID: "QUAL_NO_WARRANTY", Category: model.RiskQuality, Severity: model.SeverityCritical, Title: "Warranty excluded", Expr: `(no warranty|warranty (is )?(excluded|limited|void))`, Recommendation: "Do not proceed without standard warranty terms."},
	{ID: "QUAL_UNTESTED", Category: model.RiskQuality, Severity: model.SeverityHigh, Title: "Untested system proposed", Expr: `(not (fire[- ])?tested|untested|no test (report|evidence))`, Recommendation: "Require tested and certified systems only."},
	{ID: "QUAL_ALTERNATIVE", Category: model.RiskQuality, Severity: model.SeverityMedium, Title: "Alternative product offered", Expr: `(alternative (product|system)|or equal|or equivalent)`, Recommendation: "Review alternatives against the fire engineer's approval."},
	{ID: "QUAL_EXISTING", Category: model.RiskQuality, Severity: model.SeverityHigh, Title: "Existing work not covered", Expr: `(no responsibility for existing|existing (seals|penetrations|systems)\b.*\b(excluded|not covered))`, Recommendation: "Survey existing conditions and assign remediation."},

	// Access
	{ID: "ACCESS_MEWP", Category: model.RiskAccess, Severity: model.SeverityMedium, Title: "Powered access needed", Expr: `(mewp|scissor lift|boom lift|ewp)\b`, Recommendation: "Confirm who supplies and certifies powered access."},
	{ID: "ACCESS_OUT_OF_HOURS", Category: model.RiskAccess, Severity: model.SeverityHigh, Title: "Out-of-hours work", Expr: `(out of hours|after hours|night works?)`, Recommendation: "Price out-of-hours loadings and building access."},
	{ID: "ACCESS_CEILING", Category: model.RiskAccess, Severity: model.SeverityMedium, Title: "Ceiling access constraint", Expr: `(above ceiling|ceiling (access|tiles|void))`, Recommendation: "Coordinate ceiling opening and reinstatement."},
	{ID: "ACCESS_CONFINED", Category: model.RiskAccess, Severity: model.SeverityHigh, Title: "Confined space work", Expr: `confined space`, Recommendation: "Verify confined-space procedures and supervision costs."},
	{ID: "ACCESS_OTHER_TRADES", Category: model.RiskAccess, Severity: model.SeverityMedium, Title: "Dependent on other trades", Expr: `(other trades|trade coordination|prior trades)`, Recommendation: "Sequence dependent trades in the programme."},

	// Compliance
	{ID: "COMP_NO_CERT", Category: model.RiskCompliance, Severity: model.SeverityCritical, Title: "Certification excluded", Expr: `(no certification|certification (is )?(excluded|not included)|uncertified)`, Recommendation: "Certification is mandatory; reject or renegotiate."},
	{ID: "COMP_PS3", Category: model.RiskCompliance, Severity: model.SeverityHigh, Title: "Producer statement at risk", Expr: `(ps3|producer statement)\b.*\b(excluded|not included|by others|extra)`, Recommendation: "Require a PS3 within the quoted price."},
	{ID: "COMP_CONSENT", Category: model.RiskCompliance, Severity: model.SeverityHigh, Title: "Consent obligations excluded", Expr: `(building consent|consent fees?)\b.*\b(excluded|by others|not included)`, Recommendation: "Assign consent obligations explicitly."},
	{ID: "COMP_AS_BUILT", Category: model.RiskCompliance, Severity: model.SeverityMedium, Title: "As-built records excluded", Expr: `(as[- ]?built|asbuilt)\b.*\b(excluded|extra|not included)`, Recommendation: "As-built records are needed for the compliance schedule."},
	{ID: "COMP_FIRE_REPORT", Category: model.RiskCompliance, Severity: model.SeverityMedium, Title: "Fire engineering input needed", Expr: `fire (engineer|engineering|report)\b.*\b(required|by others|excluded)`, Recommendation: "Engage the fire engineer before systems are fixed."},
}
