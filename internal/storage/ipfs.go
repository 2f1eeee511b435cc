package storage

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/trawl/internal/model"
)

// DefaultGateway is the public IPFS HTTP gateway used when no gateway
// is configured.
const DefaultGateway = "https://ipfs.io"

// defaultFetchTimeout bounds a single gateway fetch.
const defaultFetchTimeout = 5 * time.Minute

// IPFS fetches CID content through an HTTP gateway.
//
// The gateway is asked for application/x-tar, which represents both
// single files and directories uniformly; the archive is extracted
// under the destination directory.
type IPFS struct {
	gateway string
	client  *http.Client
	timeout time.Duration
}

// IPFSOption configures an IPFS provider.
type IPFSOption func(*IPFS)

// WithClient overrides the HTTP client (for testing).
func WithClient(c *http.Client) IPFSOption {
	return func(p *IPFS) { p.client = c }
}

// WithTimeout overrides the per-fetch timeout.
func WithTimeout(d time.Duration) IPFSOption {
	return func(p *IPFS) { p.timeout = d }
}

// NewIPFS returns a gateway-backed provider. An empty gateway defaults
// to DefaultGateway.
func NewIPFS(gateway string, opts ...IPFSOption) *IPFS {
	if gateway == "" {
		gateway = DefaultGateway
	}
	p := &IPFS{
		gateway: strings.TrimRight(gateway, "/"),
		client:  &http.Client{},
		timeout: defaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ Provider = (*IPFS)(nil)

// Fetch downloads the CID's content and extracts it under destDir.
func (p *IPFS) Fetch(ctx context.Context, spec model.StorageSpec, destDir string) error {
	if err := model.ValidateCID(spec.CID); err != nil {
		return fmt.Errorf("ipfs fetch: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/ipfs/%s", p.gateway, spec.CID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("ipfs fetch: build request: %w", err)
	}
	req.Header.Set("Accept", "application/x-tar")

	slog.Debug("fetching input volume", "cid", spec.CID, "gateway", p.gateway)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ipfs fetch %s: %w", spec.CID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ipfs fetch %s: gateway returned %s", spec.CID, resp.Status)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("ipfs fetch %s: %w", spec.CID, err)
	}

	if err := extractTar(resp.Body, destDir, spec.CID); err != nil {
		return fmt.Errorf("ipfs fetch %s: %w", spec.CID, err)
	}

	slog.Info("input volume fetched", "cid", spec.CID, "dest", destDir)
	return nil
}

// extractTar unpacks a gateway tar stream into destDir.
//
// Gateways root the archive at the CID itself; that leading path
// element is stripped so the volume's content sits directly in destDir.
// Entry paths are confined to destDir (no ".." escapes).
func extractTar(r io.Reader, destDir, cid string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}

		name := strings.TrimPrefix(hdr.Name, cid)
		name = strings.TrimPrefix(name, "/")
		if name == "" {
			if hdr.Typeflag == tar.TypeDir {
				continue
			}
			// Single-file CID: the archive's one entry is the CID
			// itself. Keep the file under its CID name.
			name = cid
		}

		target := filepath.Join(destDir, filepath.FromSlash(name))
		rel, err := filepath.Rel(destDir, target)
		if err != nil || strings.HasPrefix(rel, "..") {
			return fmt.Errorf("tar entry %q escapes destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("mkdir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("mkdir %s: %w", filepath.Dir(target), err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return fmt.Errorf("write %s: %w", target, err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", target, err)
			}
		default:
			// Symlinks and specials are skipped; gateway archives of
			// plain content do not contain them.
			slog.Debug("skipping tar entry", "name", hdr.Name, "type", hdr.Typeflag)
		}
	}
}
