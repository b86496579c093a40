package updater

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	// DefaultAPIURL is the public GitHub API.
	DefaultAPIURL = "https://api.github.com"

	httpTimeout       = 10 * time.Second
	defaultMaxRetries = 2
	userAgent         = "deskhost-updater"
)

// GitHubConfig locates a repository's releases.
type GitHubConfig struct {
	APIURL string
	Owner  string
	Repo   string
	// Token is sent as a bearer credential when set.
	Token      string
	MaxRetries uint64
	HTTPClient *http.Client
}

// GitHubFeed reads releases from the GitHub Releases API.
type GitHubFeed struct {
	logger     *zap.Logger
	httpClient *http.Client
	apiURL     string
	owner      string
	repo       string
	token      string
	maxRetries uint64
	// retryInterval overrides the exponential backoff start, for tests.
	retryInterval time.Duration
}

var _ Feed = (*GitHubFeed)(nil)

// NewGitHubFeed creates a feed for cfg.Owner/cfg.Repo.
func NewGitHubFeed(cfg GitHubConfig, logger *zap.Logger) *GitHubFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: httpTimeout}
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = defaultMaxRetries
	}
	return &GitHubFeed{
		logger:     logger.Named("github"),
		httpClient: client,
		apiURL:     apiURL,
		owner:      cfg.Owner,
		repo:       cfg.Repo,
		token:      cfg.Token,
		maxRetries: retries,
	}
}

func (f *GitHubFeed) Endpoint() string {
	return fmt.Sprintf("%s/repos/%s/%s", f.apiURL, f.owner, f.repo)
}

func (f *GitHubFeed) ReleasesURL() string {
	return fmt.Sprintf("https://github.com/%s/%s/releases", f.owner, f.repo)
}

func (f *GitHubFeed) HasCredential() bool {
	return f.token != ""
}

// Check fetches the latest release, or the newest entry of the release list
// when prereleases are allowed, and returns it if it is newer than the
// running version.
func (f *GitHubFeed) Check(ctx context.Context, req CheckRequest) (*Release, error) {
	release, err := f.latest(ctx, req.AllowPrerelease)
	if err != nil {
		return nil, err
	}
	if release == nil {
		return nil, nil
	}
	if !IsNewer(release.TagName, req.CurrentVersion) {
		f.logger.Debug("Running latest version",
			zap.String("current", req.CurrentVersion),
			zap.String("latest", release.TagName))
		return nil, nil
	}
	return release, nil
}

func (f *GitHubFeed) latest(ctx context.Context, includePrereleases bool) (*Release, error) {
	if !includePrereleases {
		var release Release
		if err := f.getJSON(ctx, f.Endpoint()+"/releases/latest", &release); err != nil {
			return nil, err
		}
		return &release, nil
	}

	var releases []Release
	if err := f.getJSON(ctx, f.Endpoint()+"/releases", &releases); err != nil {
		return nil, err
	}
	// GitHub returns the list newest first.
	for i := range releases {
		if releases[i].Draft {
			continue
		}
		return &releases[i], nil
	}
	return nil, nil
}

func (f *GitHubFeed) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	op := func() error {
		resp, err := f.do(ctx, endpoint, "application/vnd.github+json")
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode release response: %w", err))
		}
		return nil
	}
	return f.retry(ctx, endpoint, op)
}

// Download streams asset to dst. Progress is reported whenever the whole
// percentage changes, and once more on completion.
func (f *GitHubFeed) Download(ctx context.Context, asset Asset, dst io.Writer, progress func(Progress)) error {
	var resp *http.Response
	err := f.retry(ctx, asset.URL, func() error {
		r, err := f.do(ctx, asset.URL, "application/octet-stream")
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	total := resp.ContentLength
	if total <= 0 {
		total = asset.Size
	}

	pr := &progressReader{r: resp.Body, total: total, report: progress, last: -1}
	if _, err := io.Copy(dst, pr); err != nil {
		return fmt.Errorf("failed to download %s: %w", asset.Name, err)
	}
	pr.finish()
	return nil
}

func (f *GitHubFeed) do(ctx context.Context, endpoint, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)
	if f.token != "" && f.sameHost(endpoint) {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()

	httpErr := &HTTPError{StatusCode: resp.StatusCode, URL: endpoint}
	var body struct {
		Message string `json:"message"`
	}
	if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64*1024)); readErr == nil {
		if json.Unmarshal(data, &body) == nil {
			httpErr.Message = body.Message
		}
	}
	if resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0") {
		httpErr.RateLimited = true
		if httpErr.Message == "" {
			httpErr.Message = "API rate limit exceeded"
		}
	}

	f.logger.Debug("Release feed returned non-200 status",
		zap.Int("status_code", resp.StatusCode),
		zap.String("url", endpoint))

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, httpErr
	}
	return nil, backoff.Permanent(httpErr)
}

func (f *GitHubFeed) retry(ctx context.Context, endpoint string, op backoff.Operation) error {
	eb := backoff.NewExponentialBackOff()
	if f.retryInterval > 0 {
		eb.InitialInterval = f.retryInterval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, f.maxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		f.logger.Debug("Retrying release feed request",
			zap.String("url", endpoint),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	err := backoff.RetryNotify(op, policy, notify)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

func (f *GitHubFeed) sameHost(endpoint string) bool {
	api, err := url.Parse(f.apiURL)
	if err != nil {
		return false
	}
	target, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	return api.Host == target.Host
}

type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	last   int
	report func(Progress)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 && p.report != nil {
		pct := int(p.read * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct != p.last && pct < 100 {
			p.last = pct
			p.report(Progress{Transferred: p.read, Total: p.total, Percent: float64(pct)})
		}
	}
	return n, err
}

func (p *progressReader) finish() {
	if p.report == nil || p.last == 100 {
		return
	}
	p.last = 100
	total := p.total
	if total <= 0 {
		total = p.read
	}
	p.report(Progress{Transferred: p.read, Total: total, Percent: 100})
}
