// Package pipeline orchestrates quote ingestion: chunk the source
// document, parse chunks through the extraction ensemble, normalize
// and map the resulting items, then persist the quote with its risk
// report and chunk manifest.
package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/quote-cli/internal/chunker"
	"github.com/sells-group/quote-cli/internal/config"
	"github.com/sells-group/quote-cli/internal/ensemble"
	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/ontology"
	"github.com/sells-group/quote-cli/internal/parser"
	"github.com/sells-group/quote-cli/internal/resilience"
	"github.com/sells-group/quote-cli/internal/risk"
	"github.com/sells-group/quote-cli/internal/store"
)

// retryHorizon is how far out a freshly dead-lettered chunk is
// scheduled before a resume will re-drive it.
const retryHorizon = 5 * time.Minute

// Pipeline orchestrates quote document ingestion.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	backends []parser.Backend
	breakers *resilience.BackendBreakers
	grader   ontology.Grader
	scanner  *risk.Scanner
}

// New creates a Pipeline. grader may be nil to skip AI match grading.
func New(cfg *config.Config, st store.Store, backends []parser.Backend, grader ontology.Grader, scanner *risk.Scanner) *Pipeline {
	breakers := resilience.NewBackendBreakers(cfg.Parse.CircuitConfig())
	for _, b := range backends {
		breakers.Get(b.Name())
	}
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		backends: backends,
		breakers: breakers,
		grader:   grader,
		scanner:  scanner,
	}
}

// BreakerStates reports the current circuit state per backend.
func (p *Pipeline) BreakerStates() map[string]resilience.CircuitState {
	return p.breakers.States()
}

// Ingest runs the full pipeline for one supplier document. Submitting
// the same bytes twice returns the already-ingested quote.
func (p *Pipeline) Ingest(ctx context.Context, path, supplierName string) (*model.ParsedQuote, error) {
	log := zap.L().With(zap.String("supplier", supplierName), zap.String("file", filepath.Base(path)))
	log.Info("pipeline: starting ingest")

	manifest, docType, err := p.chunk(path)
	if err != nil {
		return nil, err
	}

	existing, err := p.store.GetQuoteBySource(ctx, manifest.Original.SHA256)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: check existing quote")
	}
	if existing != nil {
		log.Info("pipeline: document already ingested",
			zap.String("quote_id", existing.ID),
			zap.String("sha256", manifest.Original.SHA256),
		)
		return existing, nil
	}

	outcomes := p.parseChunks(ctx, manifest.Chunks, supplierName, docType, log)

	items, confidence, warnings := parser.MergeOutcomes(outcomes)
	if len(items) == 0 {
		return nil, eris.Errorf("pipeline: no line items extracted from %s", filepath.Base(path))
	}

	items, mapWarnings := p.mapItems(ctx, items)
	warnings = append(warnings, mapWarnings...)

	totals, totalWarnings := ComputeTotals(items)
	warnings = append(warnings, totalWarnings...)

	quote := &model.ParsedQuote{
		SupplierName: supplierName,
		FileName:     manifest.Original.FileName,
		SourceSHA256: manifest.Original.SHA256,
		DocumentType: docType,
		Items:        items,
		Totals:       totals,
		Confidence:   confidence,
		Warnings:     warnings,
	}
	if p.scanner != nil {
		quote.Risks = p.scanner.ScanQuote(documentText(manifest.Chunks), items)
	}

	if err := p.store.CreateQuote(ctx, quote); err != nil {
		return nil, eris.Wrap(err, "pipeline: persist quote")
	}
	if err := p.store.SaveManifest(ctx, quote.ID, manifest); err != nil {
		return nil, eris.Wrap(err, "pipeline: persist manifest")
	}
	p.deadLetterFailures(ctx, quote.ID, manifest, outcomes, log)

	log.Info("pipeline: ingest complete",
		zap.String("quote_id", quote.ID),
		zap.Int("items", len(items)),
		zap.Float64("confidence", confidence),
		zap.Float64("grand_total", totals.Grand),
		zap.Int("warnings", len(warnings)),
	)
	return quote, nil
}

// chunk builds the manifest for a source document based on its
// extension.
func (p *Pipeline) chunk(path string) (*model.Manifest, model.DocumentType, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		m, err := chunker.ExtractPDF(path, p.cfg.Chunk.PagesPerChunk)
		return m, model.DocumentPDF, err
	case ".xlsx", ".xlsm":
		m, err := chunker.ExtractXLSX(path, p.cfg.Chunk.RowsPerChunk)
		return m, model.DocumentXLSX, err
	case ".txt":
		original, data, err := chunker.FileInfo(path)
		if err != nil {
			return nil, "", err
		}
		m, err := chunker.ChunkPages(original, strings.Split(string(data), "\f"), p.cfg.Chunk.PagesPerChunk)
		return m, model.DocumentText, err
	default:
		return nil, "", eris.Errorf("pipeline: unsupported document type %q", filepath.Ext(path))
	}
}

// parseChunks fans the manifest's chunks through the extraction
// ensemble with bounded concurrency and the configured retry policy.
func (p *Pipeline) parseChunks(ctx context.Context, chunks []model.Chunk, supplierName string, docType model.DocumentType, log *zap.Logger) []model.ChunkOutcome {
	parseFn := func(ctx context.Context, chunk model.Chunk) (*model.ParserResult, error) {
		in := parser.ParseInput{
			Text:         chunk.Text,
			SupplierName: supplierName,
			DocumentType: docType,
			Chunk:        chunk,
		}
		res := ensemble.Run(ctx, p.backends, in, p.breakers)
		if res.Best == nil || !res.Best.Success {
			msg := "no extraction backend produced items"
			if res.Best != nil && res.Best.Error != "" {
				msg = res.Best.Error
			}
			// Treated as transient so the retry ladder re-drives the
			// ensemble; a document that fails every attempt lands in
			// the dead-letter queue instead of aborting the ingest.
			return nil, resilience.NewTransientError(eris.New(msg), 0)
		}

		items := make([]model.LineItem, 0, len(res.Consensus))
		for _, ci := range res.Consensus {
			items = append(items, ci.LineItem)
		}
		return &model.ParserResult{
			Backend:    res.Best.Backend,
			Items:      items,
			Confidence: res.Best.Confidence,
			Success:    true,
		}, nil
	}

	return parser.ParseChunksParallel(ctx, parseFn, chunks, parser.Options{
		Concurrency: p.cfg.Parse.Concurrency,
		Retry:       p.cfg.Parse.RetryConfig(),
		Hooks: parser.Hooks{
			OnProgress: func(done, total int) {
				log.Debug("pipeline: chunk progress", zap.Int("done", done), zap.Int("total", total))
			},
			OnChunkFailed: func(o model.ChunkOutcome) {
				log.Warn("pipeline: chunk failed",
					zap.Int("chunk", o.ChunkNumber),
					zap.Int("attempts", o.Attempts),
					zap.String("error", o.Error),
				)
			},
		},
	})
}

// deadLetterFailures enqueues every failed chunk for later resumption.
func (p *Pipeline) deadLetterFailures(ctx context.Context, quoteID string, manifest *model.Manifest, outcomes []model.ChunkOutcome, log *zap.Logger) {
	for i, o := range outcomes {
		if o.Status != model.ChunkFailed {
			continue
		}
		fc := resilience.FailedChunk{
			QuoteID:      quoteID,
			SourceSHA256: manifest.Original.SHA256,
			ChunkID:      manifest.Chunks[i].ID,
			ChunkNumber:  o.ChunkNumber,
			Error:        o.Error,
			ErrorType:    "transient",
			MaxRetries:   3,
			NextRetryAt:  time.Now().Add(retryHorizon).UTC(),
		}
		if _, err := p.store.EnqueueFailedChunk(ctx, fc); err != nil {
			log.Warn("pipeline: failed to dead-letter chunk",
				zap.Int("chunk", o.ChunkNumber), zap.Error(err))
		}
	}
}

func documentText(chunks []model.Chunk) string {
	var sb strings.Builder
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(c.Text)
	}
	return sb.String()
}
