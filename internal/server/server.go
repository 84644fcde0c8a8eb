// Package server exposes Mr. Nag as a Slack slash-command service.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
	"golang.org/x/oauth2"

	"github.com/naka-gawa/mrnag/internal/config"
	"github.com/naka-gawa/mrnag/internal/formatter"
	"github.com/naka-gawa/mrnag/internal/usecase"
	"github.com/naka-gawa/mrnag/internal/version"
)

// DefaultResponseTimeout bounds a deferred report, including its post to Slack.
const DefaultResponseTimeout = 5 * time.Minute

// DefaultResponseURLPrefix is where Slack issues response URLs. Deferred
// reports, and the OAuth token sent with them, go nowhere else.
const DefaultResponseURLPrefix = "https://hooks.slack.com/"

// ConfigLoader loads the configuration document. It is called once per request.
type ConfigLoader func() (*config.Config, error)

// Options configures the service.
type Options struct {
	// SigningSecret enables request signature verification when set.
	SigningSecret string
	// OAuthToken authorizes deferred posts to the response URL.
	OAuthToken string
	// Deferred acknowledges the command at once and posts the report to the
	// response URL when it is ready.
	Deferred        bool
	ResponseTimeout time.Duration
	// ResponseURLPrefix restricts the response URLs deferred reports are
	// posted to; empty means DefaultResponseURLPrefix.
	ResponseURLPrefix string
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Validate rejects option combinations that are unsafe to serve with.
// A deferred report carries the OAuth token to a URL taken from the request,
// so the request must be signed.
func (o Options) Validate() error {
	if o.Deferred && o.SigningSecret == "" {
		return fmt.Errorf("deferred responses require a Slack signing secret")
	}
	return nil
}

// Server handles slash commands.
type Server struct {
	loadConfig ConfigLoader
	runner     *usecase.Runner
	logger     logrus.FieldLogger
	opts       Options
	poster     *http.Client
}

// New creates a Server.
func New(loadConfig ConfigLoader, runner *usecase.Runner, logger logrus.FieldLogger, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = DefaultResponseTimeout
	}
	if opts.ResponseURLPrefix == "" {
		opts.ResponseURLPrefix = DefaultResponseURLPrefix
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	poster := &http.Client{Timeout: 30 * time.Second}
	if opts.OAuthToken != "" {
		poster.Transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.OAuthToken}),
		}
	}
	return &Server{loadConfig: loadConfig, runner: runner, logger: logger, opts: opts, poster: poster}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())

	router.GET("/", s.Info)
	router.GET("/healthz", s.Health)

	commands := router.Group("/mrnag", LimitBody(MaxCommandBodyBytes))
	if s.opts.SigningSecret != "" {
		commands.Use(VerifySlackSignature(s.opts.SigningSecret))
	}
	commands.POST("/slack", s.SlashCommand)
	return router
}

// Info handles GET /.
func (s *Server) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": version.Version})
}

// Health handles GET /healthz.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SlashCommand handles POST /mrnag/slack. Slack only shows 200 responses, so
// every outcome, including failures, is an HTTP 200 message.
func (s *Server) SlashCommand(c *gin.Context) {
	sc, err := slack.SlashCommandParse(c.Request)
	if err != nil {
		c.JSON(http.StatusOK, textMessage(fmt.Sprintf("Mr. Nag could not read the command: %v", err)))
		return
	}
	cmd := newSlashCommand(sc)

	switch cmd.Subcommand {
	case SubcommandHelp:
		c.JSON(http.StatusOK, helpMessage(cmd.Command, cmd.Args))
		return
	case SubcommandVersion:
		c.JSON(http.StatusOK, textMessage("Mr. Nag v"+version.Version))
		return
	}

	now := s.opts.Now()
	req, err := parseShowArgs(cmd.Args, now)
	if err != nil {
		c.JSON(http.StatusOK, textMessage(fmt.Sprintf("%v. Try `%s help show`.", err, orDefault(cmd.Command, "/mrnag"))))
		return
	}

	if s.opts.Deferred && cmd.ResponseURL != "" {
		log := s.log(c)
		if s.allowedResponseURL(cmd.ResponseURL) {
			go s.respondLater(log, cmd, req, now)
			c.JSON(http.StatusOK, textMessage("Mr. Nag is calculating..."))
			return
		}
		log.WithField("response_url", cmd.ResponseURL).Warn("refusing to post to a response URL outside Slack; answering synchronously")
	}

	payload, err := s.show(c.Request.Context(), s.log(c), cmd, req, now)
	if err != nil {
		c.JSON(http.StatusOK, textMessage("Mr. Nag "+err.Error()))
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}

func (s *Server) show(ctx context.Context, log logrus.FieldLogger, cmd SlashCommand, req showRequest, now time.Time) ([]byte, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		return nil, fmt.Errorf("could not load the configuration: %w", err)
	}

	report, err := s.runner.Run(ctx, cfg, req.filters, "slack", formatter.Options{
		Now:          now,
		Requestor:    cmd.UserName,
		ResponseType: req.responseType,
	})
	if err != nil {
		log.WithError(err).Error("failed to render report")
		return nil, fmt.Errorf("could not build the report: %w", err)
	}
	return report.Payload, nil
}

func (s *Server) respondLater(log logrus.FieldLogger, cmd SlashCommand, req showRequest, now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ResponseTimeout)
	defer cancel()

	payload, err := s.show(ctx, log, cmd, req, now)
	if err != nil {
		payload, err = json.Marshal(textMessage("Mr. Nag " + err.Error()))
		if err != nil {
			log.WithError(err).Error("failed to encode error message")
			return
		}
	}
	if err := s.post(ctx, cmd.ResponseURL, payload); err != nil {
		log.WithError(err).Error("failed to post report to Slack")
	}
}

// allowedResponseURL reports whether raw shares scheme and host with the
// configured prefix and lies under its path.
func (s *Server) allowedResponseURL(raw string) bool {
	prefix, err := url.Parse(s.opts.ResponseURLPrefix)
	if err != nil {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.User != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, prefix.Scheme) &&
		strings.EqualFold(u.Host, prefix.Host) &&
		strings.HasPrefix(u.Path, prefix.Path)
}

func (s *Server) post(ctx context.Context, responseURL string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, responseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.poster.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("response URL answered status %d", resp.StatusCode)
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set("request_id", uuid.NewString())
		c.Next()
		s.log(c).WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Info("handled request")
	}
}

func (s *Server) log(c *gin.Context) logrus.FieldLogger {
	return s.logger.WithField("request_id", c.GetString("request_id"))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
