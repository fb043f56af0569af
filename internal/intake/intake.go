// Package intake ingests marketplace listing exports. A Source fetches a
// locator (local path, HTTP(S) URL, or FTP URL), decodes the CSV or XLSX
// payload, and returns normalized RawListing values ready for evaluation.
package intake

import (
	"context"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/acquire-pipeline/internal/config"
	"github.com/sells-group/acquire-pipeline/internal/faults"
	"github.com/sells-group/acquire-pipeline/internal/model"
)

// Source fetches raw listings from a marketplace data drop.
type Source interface {
	Fetch(ctx context.Context, locator string) ([]model.RawListing, error)
}

// Client is the default Source. The source name labels every fetched
// listing and forms the first half of its business identifier, so it must
// be stable per marketplace.
type Client struct {
	source      string
	httpTimeout time.Duration
	ftpTimeout  time.Duration
}

// New creates a Client for one marketplace source.
func New(cfg config.IntakeConfig, source string) *Client {
	httpTimeout := time.Duration(cfg.HTTPTimeoutSecs) * time.Second
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	ftpTimeout := time.Duration(cfg.FTPTimeoutSecs) * time.Second
	if ftpTimeout <= 0 {
		ftpTimeout = 30 * time.Second
	}
	return &Client{
		source:      source,
		httpTimeout: httpTimeout,
		ftpTimeout:  ftpTimeout,
	}
}

// Fetch downloads and decodes the export at locator. The transport is
// picked from the URL scheme (bare paths are local files), the decoder
// from the file extension: .xlsx payloads go through the XLSX reader,
// everything else is treated as CSV.
func (c *Client) Fetch(ctx context.Context, locator string) ([]model.RawListing, error) {
	if c.source == "" {
		return nil, faults.NewValidation("source", "intake source name is required")
	}
	if locator == "" {
		return nil, faults.NewValidation("locator", "intake locator is required")
	}

	data, name, err := c.download(ctx, locator)
	if err != nil {
		return nil, err
	}

	var listings []model.RawListing
	if strings.EqualFold(path.Ext(name), ".xlsx") {
		listings, err = DecodeXLSX(data, c.source)
	} else {
		listings, err = DecodeCSV(strings.NewReader(string(data)), c.source)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("intake: fetched listings",
		zap.String("source", c.source),
		zap.String("locator", locator),
		zap.Int("count", len(listings)),
	)
	return listings, nil
}

// download resolves the locator to raw bytes plus a name usable for
// extension sniffing.
func (c *Client) download(ctx context.Context, locator string) ([]byte, string, error) {
	u, err := url.Parse(locator)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Bare paths (and Windows drive letters) are local files.
		data, readErr := os.ReadFile(locator)
		if readErr != nil {
			return nil, "", eris.Wrap(readErr, "intake: read file")
		}
		return data, locator, nil
	}

	switch u.Scheme {
	case "file":
		data, readErr := os.ReadFile(u.Path)
		if readErr != nil {
			return nil, "", eris.Wrap(readErr, "intake: read file")
		}
		return data, u.Path, nil
	case "http", "https":
		data, dlErr := c.httpDownload(ctx, locator)
		return data, u.Path, dlErr
	case "ftp":
		data, dlErr := c.ftpDownload(ctx, u)
		return data, u.Path, dlErr
	default:
		return nil, "", faults.NewValidation("locator", "unsupported scheme %q", u.Scheme)
	}
}
