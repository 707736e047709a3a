package openapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LoadOptions configures LoadDocument and LoadToolset.
type LoadOptions struct {
	// SpecURL is fetched when SpecFile is empty.
	SpecURL string
	// SpecFile is read instead of fetching SpecURL.
	SpecFile string

	Normalizer Normalizer
	Fetcher    *Fetcher

	Credential *Credential
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *Metrics
	Limiter    *rate.Limiter
}

// LoadDocument obtains, parses and normalizes the document. A failed fetch
// returns an error wrapping ErrNoDocument; a malformed document returns an
// error wrapping ErrMalformedDocument.
func LoadDocument(ctx context.Context, opts LoadOptions) (Document, Report, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case opts.SpecFile != "":
		data, err = os.ReadFile(opts.SpecFile)
		if err != nil {
			return nil, Report{}, fmt.Errorf("failed to read spec file: %w", err)
		}
	case opts.SpecURL != "":
		fetcher := opts.Fetcher
		if fetcher == nil {
			fetcher = NewFetcher(DefaultFetchTimeout)
		}
		data, err = fetcher.Fetch(ctx, opts.SpecURL)
		if err != nil {
			return nil, Report{}, err
		}
	default:
		return nil, Report{}, fmt.Errorf("%w: no spec URL or file configured", ErrNoDocument)
	}

	doc, err := ParseDocument(data)
	if err != nil {
		return nil, Report{}, err
	}

	normalized, report := opts.Normalizer.Normalize(doc)
	return normalized, report, nil
}

// LoadToolset loads the document and builds its toolset. When the document
// cannot be fetched the returned toolset is empty and err is nil.
func LoadToolset(ctx context.Context, opts LoadOptions) (*Toolset, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "openapi_loader"))

	doc, report, err := LoadDocument(ctx, opts)
	if errors.Is(err, ErrNoDocument) {
		logger.Warn("OpenAPI document unavailable, continuing without tools",
			zap.String("url", opts.SpecURL), zap.Error(err))
		return &Toolset{}, nil
	}
	if err != nil {
		return nil, err
	}

	LogReport(logger, doc, report)

	return NewToolset(doc, ToolsetOptions{
		HTTPClient: opts.HTTPClient,
		Credential: opts.Credential,
		Logger:     opts.Logger,
		Metrics:    opts.Metrics,
		Limiter:    opts.Limiter,
	})
}

// LogReport logs what normalization changed.
func LogReport(logger *zap.Logger, doc Document, report Report) {
	logger.Info("normalized OpenAPI document",
		zap.String("title", doc.Title()),
		zap.String("version", doc.Version()),
		zap.Strings("servers", doc.Servers()),
		zap.Int("filtered", len(report.Filtered)),
		zap.Int("removed", len(report.Removed)),
	)
	for from, to := range report.RewrittenServers {
		logger.Debug("rewrote server URL", zap.String("from", from), zap.String("to", to))
	}
	if report.DefaultedServer != "" {
		logger.Debug("document has no servers, using default", zap.String("url", report.DefaultedServer))
	}
	for _, t := range report.Skipped {
		logger.Debug("security target not in document", zap.Stringer("target", t))
	}
	for _, name := range report.CaseMismatches {
		logger.Warn("security scheme differs from allowed scheme only by case and was dropped",
			zap.String("scheme", name))
	}
}
