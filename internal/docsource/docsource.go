// Package docsource handles document intake: fetching loan documents from
// HTTP endpoints, bank FTP drop folders, or the local filesystem, unpacking
// zip bundles, and reading xlsx workbooks into the structured fields the
// deterministic extractors probe.
package docsource

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lakeside-credit/spread-cli/internal/resilience"
)

// Fetcher retrieves documents into a local temp directory. URLs may use the
// http, https, ftp, or file schemes; a bare path is treated as a local file.
type Fetcher struct {
	tempDir    string
	client     *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
	ftpTimeout time.Duration
}

// NewFetcher creates a Fetcher writing into tempDir. The directory is created
// on first use.
func NewFetcher(tempDir string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("docsource", "fetch")
	return &Fetcher{
		tempDir:    tempDir,
		client:     &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(5, 5),
		retry:      retry,
		ftpTimeout: timeout,
	}
}

// Fetch downloads the document and returns its local path. Local paths are
// returned as-is after an existence check.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrapf(err, "docsource: parse url %s", rawURL)
	}

	switch u.Scheme {
	case "http", "https":
		return f.fetchHTTP(ctx, rawURL)
	case "ftp":
		return f.fetchFTP(ctx, u)
	case "file":
		return f.checkLocal(u.Path)
	case "":
		return f.checkLocal(rawURL)
	default:
		return "", eris.Errorf("docsource: unsupported scheme %q", u.Scheme)
	}
}

func (f *Fetcher) checkLocal(p string) (string, error) {
	info, err := os.Stat(p)
	if err != nil {
		return "", eris.Wrapf(err, "docsource: local file %s", p)
	}
	if info.IsDir() {
		return "", eris.Errorf("docsource: %s is a directory", p)
	}
	return p, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "docsource: rate limiter wait")
	}

	body, err := resilience.DoVal(ctx, f.retry, func(ctx context.Context) ([]byte, error) {
		return f.get(ctx, rawURL)
	})
	if err != nil {
		return "", err
	}

	dest, err := f.destPath(rawURL)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(dest, body, 0o644); err != nil {
		return "", eris.Wrapf(err, "docsource: write %s", dest)
	}

	zap.L().Debug("docsource: fetched over http",
		zap.String("url", rawURL),
		zap.String("path", dest),
		zap.Int("bytes", len(body)))
	return dest, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "docsource: create request")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "docsource: get %s", rawURL)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("docsource: unexpected status %d from %s", resp.StatusCode, rawURL)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "docsource: read response body")
	}
	return body, nil
}

// fetchFTP logs in anonymously and retrieves the file. Bank drop folders
// expose documents read-only over anonymous FTP.
func (f *Fetcher) fetchFTP(ctx context.Context, u *url.URL) (string, error) {
	host := u.Host
	if u.Port() == "" {
		host = host + ":21"
	}
	if u.Path == "" {
		return "", eris.New("docsource: empty path in ftp url")
	}

	zap.L().Debug("docsource: ftp connect", zap.String("host", host), zap.String("path", u.Path))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.ftpTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return "", eris.Wrap(err, "docsource: ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	user := "anonymous"
	pass := "anonymous@"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return "", eris.Wrap(err, "docsource: ftp login")
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return "", eris.Wrapf(err, "docsource: ftp retrieve %s", u.Path)
	}
	defer resp.Close() //nolint:errcheck

	dest, err := f.destPath(u.Path)
	if err != nil {
		return "", err
	}
	out, err := os.Create(dest)
	if err != nil {
		return "", eris.Wrapf(err, "docsource: create %s", dest)
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, resp); err != nil {
		return "", eris.Wrap(err, "docsource: write ftp file")
	}
	return dest, nil
}

func (f *Fetcher) destPath(rawURL string) (string, error) {
	if err := os.MkdirAll(f.tempDir, 0o755); err != nil {
		return "", eris.Wrap(err, "docsource: create temp dir")
	}
	name := path.Base(rawURL)
	if name == "" || name == "/" || name == "." {
		name = "document"
	}
	return filepath.Join(f.tempDir, name), nil
}
