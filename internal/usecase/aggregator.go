// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/naka-gawa/mrnag/internal/config"
	"github.com/naka-gawa/mrnag/internal/domain"
	"github.com/naka-gawa/mrnag/internal/gateway"
)

const (
	DefaultWorkers        = 4
	DefaultProjectTimeout = 2 * time.Minute
)

// ClientFactory builds the forge client for a forge and its resolved token.
// gateway.Registry implements it.
type ClientFactory interface {
	New(forge domain.Forge, token domain.Secret) (gateway.Fetcher, error)
}

// AggregatorOptions bounds the fan-out of a run.
type AggregatorOptions struct {
	// Workers is the number of projects fetched concurrently.
	Workers int
	// ProjectTimeout bounds hydration plus all pages of one project.
	ProjectTimeout time.Duration
}

// Aggregator is the use case for aggregating merge requests across forges.
// It orchestrates the per-project fetches and isolates their failures.
type Aggregator struct {
	clients        ClientFactory
	lookupEnv      config.LookupEnvFunc
	logger         logrus.FieldLogger
	workers        int
	projectTimeout time.Duration
}

// NewAggregator creates a new Aggregator instance.
func NewAggregator(clients ClientFactory, lookupEnv config.LookupEnvFunc, logger logrus.FieldLogger, opts AggregatorOptions) *Aggregator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.ProjectTimeout <= 0 {
		opts.ProjectTimeout = DefaultProjectTimeout
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	if lookupEnv == nil {
		lookupEnv = config.OSLookupEnv
	}
	return &Aggregator{
		clients:        clients,
		lookupEnv:      lookupEnv,
		logger:         logger,
		workers:        opts.Workers,
		projectTimeout: opts.ProjectTimeout,
	}
}

type forgeClient struct {
	fetcher gateway.Fetcher
	err     error
}

// Aggregate fetches the merge requests of every configured project. The result
// holds exactly one entry per project, in configuration order; a failure is
// recorded on the affected project only.
func (a *Aggregator) Aggregate(ctx context.Context, cfg *config.Config) domain.AggregationResult {
	log := a.logger.WithField("run", uuid.NewString())
	projects := cfg.Projects()
	log.Debugf("aggregating %d projects with %d workers", len(projects), a.workers)

	// Tokens and clients are resolved once per forge for this run.
	clients := make(map[string]forgeClient)
	for _, f := range cfg.Forges() {
		token, err := config.ResolveToken(f, a.lookupEnv)
		if err != nil {
			log.WithField("forge", f.ID).Warn(err)
			clients[f.ID] = forgeClient{err: err}
			continue
		}
		fetcher, err := a.clients.New(f, token)
		if err != nil {
			log.WithField("forge", f.ID).Warn(err)
		}
		clients[f.ID] = forgeClient{fetcher: fetcher, err: err}
	}

	entries := make([]domain.ProjectResult, len(projects))
	var eg errgroup.Group
	eg.SetLimit(a.workers)

	for i, project := range projects {
		entries[i].Project = project
		fc, ok := clients[project.ForgeID]
		if !ok {
			fc.err = fmt.Errorf("%w: forge %q is not configured", domain.ErrConfigValidation, project.ForgeID)
		}
		if fc.err != nil {
			entries[i].Err = toFetchError(fc.err, project)
			continue
		}
		i, project := i, project
		eg.Go(func() error {
			entries[i] = a.fetchProject(ctx, fc.fetcher, project, log)
			return nil
		})
	}
	_ = eg.Wait()

	result := domain.AggregationResult{Entries: entries}
	log.Infof("aggregated %d merge requests from %d projects (%d failed)",
		result.MergeRequestCount(), len(entries), result.FailedCount())
	return result
}

// fetchProject hydrates (when the project has no name) and fetches one project.
func (a *Aggregator) fetchProject(ctx context.Context, fetcher gateway.Fetcher, project domain.Project, log logrus.FieldLogger) (result domain.ProjectResult) {
	result.Project = project
	log = log.WithFields(logrus.Fields{"forge": project.ForgeID, "project": project.DisplayName()})

	defer func() {
		if r := recover(); r != nil {
			result.MergeRequests = nil
			result.Err = domain.NewFetchError(domain.ErrRemote, project.ForgeID, project.DisplayName(), fmt.Errorf("client panicked: %v", r))
			log.Error(result.Err)
		}
	}()

	if err := ctx.Err(); err != nil {
		result.Err = domain.NewFetchError(domain.ErrRemote, project.ForgeID, project.DisplayName(), fmt.Errorf("run aborted: %w", err))
		return result
	}
	ctx, cancel := context.WithTimeout(ctx, a.projectTimeout)
	defer cancel()

	if h, ok := fetcher.(gateway.Hydrator); ok && project.Name == "" {
		hydrated, err := h.HydrateProject(ctx, project)
		if err != nil {
			result.Err = toFetchError(err, project)
			log.WithError(err).Warn("failed to hydrate project")
			return result
		}
		project = hydrated
		result.Project = hydrated
	}

	mrs, err := fetcher.FetchMergeRequests(ctx, project)
	if err != nil {
		result.Err = toFetchError(err, project)
		log.WithError(err).Warn("failed to fetch merge requests")
		return result
	}
	if mrs == nil {
		mrs = []domain.MergeRequest{}
	}
	owner := project
	for i := range mrs {
		mrs[i].Project = &owner
	}
	result.MergeRequests = mrs
	log.Debugf("fetched %d merge requests", len(mrs))
	return result
}

// toFetchError keeps FetchErrors from clients and attributes any other error
// to the project.
func toFetchError(err error, project domain.Project) error {
	var fe *domain.FetchError
	if errors.As(err, &fe) {
		return err
	}
	kind := domain.ErrRemote
	for _, k := range []error{domain.ErrAuthConfiguration, domain.ErrConfigValidation, domain.ErrUnsupportedForgeType, domain.ErrAuth, domain.ErrNotFound, domain.ErrNormalization} {
		if errors.Is(err, k) {
			kind = k
			break
		}
	}
	return domain.NewFetchError(kind, project.ForgeID, project.DisplayName(), err)
}
