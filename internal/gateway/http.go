package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/naka-gawa/mrnag/internal/domain"
)

// newHTTPClient returns a client that sends the token as a bearer credential
// and gives up on any single request after opts.RequestTimeout.
func newHTTPClient(token domain.Secret, opts Options, base http.RoundTripper) *http.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.Reveal()})
	return &http.Client{
		Timeout: opts.RequestTimeout,
		Transport: &oauth2.Transport{
			Base:   base,
			Source: ts,
		},
	}
}

// kindForStatus maps a non-success HTTP status to an error kind.
func kindForStatus(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrAuth
	case http.StatusNotFound:
		return domain.ErrNotFound
	default:
		return domain.ErrRemote
	}
}

// isTransportFailure reports whether err came from the network or a deadline
// rather than from the payload itself.
func isTransportFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

type statusKey struct{}

// withStatusRecorder returns a context under which statusRecorder stores the
// HTTP status of the last response into code.
func withStatusRecorder(ctx context.Context, code *int) context.Context {
	return context.WithValue(ctx, statusKey{}, code)
}

// statusRecorder keeps the response status visible to callers whose client
// library reports failures without it, such as githubv4.
type statusRecorder struct {
	base http.RoundTripper
}

func (s statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := s.base.RoundTrip(req)
	if resp != nil {
		if code, ok := req.Context().Value(statusKey{}).(*int); ok {
			*code = resp.StatusCode
		}
	}
	return resp, err
}
