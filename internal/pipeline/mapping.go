package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/normalize"
	"github.com/sells-group/quote-cli/internal/ontology"
)

// lexicalAcceptScore is the candidate score at which a lexical match
// is taken without consulting the grader. Keyword hits alone never
// reach it; it needs a size-band or FRR confirmation on top.
const lexicalAcceptScore = 4

// mapItems resolves each line item against the system catalog,
// filling in the catalog code, system names, and any size/FRR data
// the extraction missed. Items already carrying a code are left alone.
func (p *Pipeline) mapItems(ctx context.Context, items []model.LineItem) ([]model.LineItem, []string) {
	var warnings []string

	for i := range items {
		item := &items[i]

		if len(item.Systems) == 0 {
			item.Systems = normalize.NormalizeSystems(item.Description)
		}
		if item.FRRMinutes == 0 {
			item.FRRMinutes = ontology.ExtractFRRMinutes(item.Description)
		}
		if item.Size == "" {
			if mm := ontology.ExtractSizeMM(item.Description); mm > 0 {
				item.Size = fmt.Sprintf("%dmm", mm)
			}
		}

		if item.Code != "" {
			continue
		}
		candidates := ontology.Match(item.Description)
		if len(candidates) == 0 {
			continue
		}

		top := candidates[0]
		unambiguous := len(candidates) == 1 || top.Score > candidates[1].Score
		if top.Score >= lexicalAcceptScore && unambiguous {
			item.Code = top.Entry.Code
			continue
		}

		if p.grader == nil || !p.cfg.Match.GraderEnabled {
			item.Code = top.Entry.Code
			warnings = append(warnings, fmt.Sprintf("item %q: catalog match %s is lexical-only", item.Description, top.Entry.Code))
			continue
		}

		code, warning := p.gradeMatch(ctx, *item, candidates)
		item.Code = code
		if warning != "" {
			warnings = append(warnings, warning)
		}
	}
	return items, warnings
}

// gradeMatch asks the AI grader to adjudicate an ambiguous candidate
// list. A grader failure falls back to the top lexical candidate.
func (p *Pipeline) gradeMatch(ctx context.Context, item model.LineItem, candidates []ontology.Candidate) (code, warning string) {
	decision, err := p.grader.Grade(ctx, ontology.GraderInput{
		Description: item.Description,
		Unit:        string(item.Unit),
		SizeMM:      ontology.ExtractSizeMM(item.Description),
		FRRMinutes:  item.FRRMinutes,
		Candidates:  candidates,
	})
	if err != nil {
		zap.L().Warn("pipeline: grader failed, using lexical match",
			zap.String("description", item.Description), zap.Error(err))
		return candidates[0].Entry.Code,
			fmt.Sprintf("item %q: grader unavailable, catalog match %s is lexical-only", item.Description, candidates[0].Entry.Code)
	}

	chosen := candidates[0]
	if decision.ChosenIndex >= 0 && decision.ChosenIndex < len(candidates) {
		chosen = candidates[decision.ChosenIndex]
	}

	switch decision.Verdict {
	case ontology.VerdictAccept:
		return chosen.Entry.Code, ""
	case ontology.VerdictReview:
		return chosen.Entry.Code,
			fmt.Sprintf("item %q: catalog match %s needs review: %s", item.Description, chosen.Entry.Code, decision.Rationale)
	default:
		return "", fmt.Sprintf("item %q: no catalog match (%s)", item.Description, decision.Rationale)
	}
}
