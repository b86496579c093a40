package updater

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrCycleInProgress is returned by CheckNow while another cycle runs.
	ErrCycleInProgress = errors.New("update cycle already in progress")
	// ErrNotStarted is returned by CheckNow before the controller was loaded,
	// or when it is disabled in development mode.
	ErrNotStarted = errors.New("update controller not started")
	// ErrNoAsset means the release carries no artifact for this platform.
	ErrNoAsset = errors.New("no release asset for this platform")
)

// HTTPError is a non-success response from the release feed.
type HTTPError struct {
	StatusCode  int
	URL         string
	Message     string
	RateLimited bool
}

func (e *HTTPError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("release feed returned %d for %s: %s", e.StatusCode, e.URL, msg)
}

// ErrorClass groups feed and transport failures by their likely remedy.
type ErrorClass string

const (
	ClassRateLimit    ErrorClass = "rate_limit"
	ClassNotFound     ErrorClass = "not_found"
	ClassNetwork      ErrorClass = "network"
	ClassForbidden    ErrorClass = "forbidden"
	ClassUnclassified ErrorClass = "unclassified"
)

// Diagnosis explains a failed update cycle.
type Diagnosis struct {
	Class       ErrorClass `json:"class"`
	Summary     string     `json:"summary"`
	Remediation []string   `json:"remediation"`
	Err         string     `json:"error"`
}

// Classify maps err to a Diagnosis. releasesURL is the human-facing releases
// page offered as a manual fallback.
func Classify(err error, releasesURL string) Diagnosis {
	d := Diagnosis{Class: classOf(err)}
	if err != nil {
		d.Err = err.Error()
	}

	switch d.Class {
	case ClassRateLimit:
		d.Summary = "GitHub API rate limit exceeded"
		d.Remediation = []string{
			"Wait for the rate limit window to reset",
			"Configure a token with `deskhost token set` or GITHUB_TOKEN: https://github.com/settings/tokens",
		}
	case ClassNotFound:
		d.Summary = "Release or repository not found"
		d.Remediation = []string{
			"Check the configured owner and repository",
			"Make sure a published release exists: " + releasesURL,
		}
	case ClassNetwork:
		d.Summary = "Network error while contacting the release feed"
		d.Remediation = []string{
			"Check the network connection and proxy settings",
			"Make sure api.github.com is reachable",
		}
	case ClassForbidden:
		d.Summary = "Access to the release feed was denied"
		d.Remediation = []string{
			"Check that the repository is public or the token has access to it",
			"Check the token scopes",
		}
	default:
		d.Summary = "Update check failed"
	}
	return d
}

// FallbackSteps lists manual alternatives shown after every failure.
func FallbackSteps(releasesURL string) []string {
	return []string{
		"Download the latest version manually: " + releasesURL,
		"Retry later; the next check runs automatically",
		"Check the application log for details",
	}
}

func classOf(err error) ErrorClass {
	if err == nil {
		return ClassUnclassified
	}

	// A typed response is classified by its status; its URL names the
	// repository and must not be matched as text.
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.RateLimited || httpErr.StatusCode == http.StatusTooManyRequests:
			return ClassRateLimit
		case httpErr.StatusCode == http.StatusNotFound:
			return ClassNotFound
		case httpErr.StatusCode == http.StatusForbidden:
			return ClassForbidden
		}
		return classOfText(strings.ToLower(httpErr.Message), false)
	}

	return classOfText(strings.ToLower(err.Error()), isNetworkError(err))
}

func classOfText(msg string, network bool) ErrorClass {
	switch {
	case strings.Contains(msg, "rate limit"):
		return ClassRateLimit
	case strings.Contains(msg, "404") || strings.Contains(msg, "not found"):
		return ClassNotFound
	case network || strings.Contains(msg, "network") || strings.Contains(msg, "timeout"):
		return ClassNetwork
	case strings.Contains(msg, "forbidden") || strings.Contains(msg, "403"):
		return ClassForbidden
	}
	return ClassUnclassified
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
