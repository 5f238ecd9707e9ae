package ontology

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Candidate is a scored catalog entry for one description.
type Candidate struct {
	Entry Entry   `json:"entry"`
	Score int     `json:"score"`
	rank  int     // catalog position, for stable tie-breaks
}

// Scoring weights. Keyword hits are cheap signal, a size falling
// inside an entry's band is stronger, and an exact FRR match is the
// strongest lexical evidence available.
const (
	keywordPoints = 1
	sizePoints    = 2
	frrPoints     = 3

	// MaxCandidates bounds how many candidates Match returns.
	MaxCandidates = 5
)

var (
	sizePattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*mm\b`)

	frrMinutesPattern = regexp.MustCompile(`(?i)\b(\d+)\s*(?:min|mins|minutes)\b`)
	frrHoursPattern   = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(?:hr|hrs|hour|hours)\b`)
	// "-/60/60" style FRR notation: the middle figure is integrity.
	frrSlashPattern = regexp.MustCompile(`[-\d]+/(\d+)/[-\d]+`)
)

// ExtractSizeMM pulls the first millimetre dimension out of a
// description. Returns 0 when none is present.
func ExtractSizeMM(description string) int {
	m := sizePattern.FindStringSubmatch(description)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return int(v)
}

// ExtractFRRMinutes pulls a fire resistance rating in minutes from a
// description, accepting "60 min", "2hr", and "-/60/60" notations.
// Returns 0 when none is present.
func ExtractFRRMinutes(description string) int {
	if m := frrSlashPattern.FindStringSubmatch(description); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			return v
		}
	}
	if m := frrMinutesPattern.FindStringSubmatch(description); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			return v
		}
	}
	if m := frrHoursPattern.FindStringSubmatch(description); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return int(v * 60)
		}
	}
	return 0
}

// Match scores every catalog entry against a description and returns
// the top candidates by score, ties resolved by catalog order. Entries
// that score zero are not candidates.
func Match(description string) []Candidate {
	text := strings.ToLower(description)
	sizeMM := ExtractSizeMM(description)
	frr := ExtractFRRMinutes(description)

	var candidates []Candidate
	for i, entry := range Catalog {
		score := scoreEntry(entry, text, sizeMM, frr)
		if score == 0 {
			continue
		}
		candidates = append(candidates, Candidate{Entry: entry, Score: score, rank: i})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].Score != candidates[b].Score {
			return candidates[a].Score > candidates[b].Score
		}
		return candidates[a].rank < candidates[b].rank
	})

	if len(candidates) > MaxCandidates {
		candidates = candidates[:MaxCandidates]
	}
	return candidates
}

func scoreEntry(entry Entry, text string, sizeMM, frr int) int {
	score := 0
	for _, kw := range entry.Keywords {
		if strings.Contains(text, kw) {
			score += keywordPoints
		}
	}
	if sizeMM > 0 && entry.SizeMinMM > 0 && entry.SizeMaxMM > 0 &&
		sizeMM >= entry.SizeMinMM && sizeMM <= entry.SizeMaxMM {
		score += sizePoints
	}
	if frr > 0 && entry.FRRMinutes == frr {
		score += frrPoints
	}
	return score
}
