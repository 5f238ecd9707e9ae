// Package backend contains the extraction backends the ensemble fans
// out to: the hosted table-extraction service, a multi-model AI
// consensus call, and a deterministic rule-based parser. Each backend
// normalizes its own output shape into a ParserResult at the edge.
package backend

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/parser"
	"github.com/sells-group/quote-cli/internal/resilience"
	"github.com/sells-group/quote-cli/internal/rowfilter"
	"github.com/sells-group/quote-cli/pkg/tableapi"
)

const tableAPIDefaultConfidence = 0.75

// TableAPI adapts the hosted table-extraction service to the Backend
// contract.
type TableAPI struct {
	client tableapi.Client
}

// NewTableAPI wraps a tableapi client as an extraction backend.
func NewTableAPI(client tableapi.Client) *TableAPI {
	return &TableAPI{client: client}
}

func (t *TableAPI) Name() string { return "tableapi" }

func (t *TableAPI) Parse(ctx context.Context, in parser.ParseInput) (*model.ParserResult, error) {
	req := tableapi.ExtractRequest{
		Text:         in.Text,
		SupplierName: in.SupplierName,
		DocumentType: string(in.DocumentType),
		ChunkInfo: &tableapi.ChunkInfo{
			ChunkID:     in.Chunk.ID,
			ChunkNumber: in.Chunk.Number,
			PageStart:   in.Chunk.PageStart,
			PageEnd:     in.Chunk.PageEnd,
			RowStart:    in.Chunk.RowStart,
			RowEnd:      in.Chunk.RowEnd,
		},
	}

	resp, err := t.client.Extract(ctx, req)
	if err != nil {
		var apiErr *tableapi.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return nil, resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return nil, eris.Wrap(err, "backend: tableapi extract")
	}
	if resp.Error != "" {
		return nil, eris.Errorf("backend: tableapi reported: %s", resp.Error)
	}

	rows := make([]model.RawRow, 0, len(resp.Rows()))
	for _, item := range resp.Rows() {
		rows = append(rows, model.RawRow{
			Description: item.Description,
			Section:     item.Section,
			Size:        item.Size,
			Substrate:   item.Substrate,
			Unit:        item.Unit,
			Quantity:    item.Quantity,
			Rate:        item.Rate,
			Total:       item.Total,
		})
	}

	// Deterministic extraction output is trusted; no quantity repair.
	filtered := rowfilter.Filter(rows, rowfilter.Options{})

	confidence := tableAPIDefaultConfidence
	if resp.Confidence != nil {
		confidence = *resp.Confidence
	}

	return &model.ParserResult{
		Items:      filtered.Items,
		Confidence: confidence,
	}, nil
}
