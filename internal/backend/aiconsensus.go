package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/parser"
	"github.com/sells-group/quote-cli/internal/rowfilter"
	"github.com/sells-group/quote-cli/pkg/anthropic"
)

const (
	aiMaxTokens = 8192

	// Confidence depends on how many models returned usable items.
	aiConfidenceAgreed = 0.85
	aiConfidenceSingle = 0.65
)

const extractionSystemPrompt = `You extract line items from passive fire protection quotes (fire collars, fire dampers, intumescent sealant, batt systems, penetration seals).

Given raw quote text, return ONLY a JSON array. Each element:
{"description": string, "quantity": number, "unit": string, "rate": number, "total": number, "section": string, "size": string, "substrate": string}

Rules:
- Include every priced row of work. Skip headings, subtotals, and narrative.
- Omit fields you cannot read rather than guessing.
- Keep descriptions verbatim from the source text.`

// aiItem is the JSON shape the extraction prompt asks for.
type aiItem struct {
	Description string   `json:"description"`
	Quantity    *float64 `json:"quantity,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Rate        *float64 `json:"rate,omitempty"`
	Total       *float64 `json:"total,omitempty"`
	Section     string   `json:"section,omitempty"`
	Size        string   `json:"size,omitempty"`
	Substrate   string   `json:"substrate,omitempty"`
}

// AIConsensus extracts line items by asking two models independently
// and keeping whatever both runs support. The shared system prompt is
// cached so a document's chunk fan-out pays for it once.
type AIConsensus struct {
	client anthropic.Client
	repair bool
	models []string
}

// NewAIConsensus builds the AI extraction backend. repairQuantities
// turns on the quantity/rate repair pass over extracted rows. Two
// models give the consensus its second opinion; passing one model
// degrades gracefully.
func NewAIConsensus(client anthropic.Client, repairQuantities bool, models ...string) *AIConsensus {
	return &AIConsensus{client: client, repair: repairQuantities, models: models}
}

func (a *AIConsensus) Name() string { return "ai-consensus" }

func (a *AIConsensus) Parse(ctx context.Context, in parser.ParseInput) (*model.ParserResult, error) {
	if len(a.models) == 0 {
		return nil, eris.New("backend: ai-consensus has no models configured")
	}

	prompt := fmt.Sprintf("Supplier: %s\nDocument type: %s\nChunk %d\n\n%s",
		in.SupplierName, in.DocumentType, in.Chunk.Number, in.Text)

	rowsByModel := make([][]model.RawRow, len(a.models))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range a.models {
		g.Go(func() error {
			rows, err := a.extractWithModel(gctx, m, prompt)
			if err != nil {
				zap.L().Warn("ai extraction model failed",
					zap.String("model", m),
					zap.Error(err),
				)
				return nil
			}
			rowsByModel[i] = rows
			return nil
		})
	}
	_ = g.Wait()

	var rows []model.RawRow
	succeeded := 0
	for _, modelRows := range rowsByModel {
		if modelRows == nil {
			continue
		}
		succeeded++
		rows = append(rows, modelRows...)
	}
	if succeeded == 0 {
		return nil, eris.New("backend: ai-consensus: all models failed")
	}

	// Rows both models agree on collapse in deduplication; the repair
	// pass, when enabled, cleans up hallucinated decimal quantities.
	filtered := rowfilter.Filter(rows, rowfilter.Options{RepairQuantities: a.repair})

	confidence := aiConfidenceSingle
	if succeeded >= 2 {
		confidence = aiConfidenceAgreed
	}

	return &model.ParserResult{
		Items:      filtered.Items,
		Confidence: confidence,
	}, nil
}

func (a *AIConsensus) extractWithModel(ctx context.Context, modelID, prompt string) ([]model.RawRow, error) {
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     modelID,
		MaxTokens: aiMaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(extractionSystemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "backend: extract with %s", modelID)
	}
	resp.Usage.LogCost(modelID, "extract")

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	items, err := parseItemsJSON(text.String())
	if err != nil {
		return nil, err
	}

	rows := make([]model.RawRow, 0, len(items))
	for _, it := range items {
		rows = append(rows, model.RawRow{
			Description: it.Description,
			Section:     it.Section,
			Size:        it.Size,
			Substrate:   it.Substrate,
			Unit:        it.Unit,
			Quantity:    it.Quantity,
			Rate:        it.Rate,
			Total:       it.Total,
		})
	}
	return rows, nil
}

func parseItemsJSON(text string) ([]aiItem, error) {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, "```"); idx >= 0 {
		text = strings.TrimPrefix(text[idx+3:], "json")
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
		text = strings.TrimSpace(text)
	}
	// Tolerate prose around the array.
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return nil, eris.New("backend: no JSON array in model response")
	}

	var items []aiItem
	if err := json.Unmarshal([]byte(text[start:end+1]), &items); err != nil {
		return nil, eris.Wrap(err, "backend: parse items JSON")
	}
	return items, nil
}
