package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v62/github"
	"github.com/shurcooL/githubv4"
	"github.com/sirupsen/logrus"

	"github.com/naka-gawa/mrnag/internal/domain"
)

// GitHubClient fetches pull requests from GitHub. Listing and repository
// metadata go through the REST API; approval counts through GraphQL.
type GitHubClient struct {
	forge         domain.Forge
	restClient    *github.Client
	graphqlClient *githubv4.Client
	maxPages      int
	perPage       int
	logger        logrus.FieldLogger
}

// approvalsQuery counts approving reviews of a single pull request.
type approvalsQuery struct {
	Repository struct {
		PullRequest struct {
			Reviews struct {
				TotalCount int
			} `graphql:"reviews(states: APPROVED)"`
		} `graphql:"pullRequest(number: $number)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// NewGitHubClient creates a client for the forge's api_url, e.g.
// https://api.github.com or https://ghe.example.com/api/v3.
func NewGitHubClient(forge domain.Forge, token domain.Secret, opts Options) (*GitHubClient, error) {
	opts = opts.withDefaults()

	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(time.Minute, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	httpClient := newHTTPClient(token, opts, rateLimitWaiter)

	apiURL := strings.TrimRight(forge.APIURL, "/")
	baseURL, err := url.Parse(apiURL + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid api_url %q: %w", forge.APIURL, err)
	}
	restClient := github.NewClient(httpClient)
	restClient.BaseURL = baseURL
	graphqlHTTPClient := &http.Client{
		Timeout:   httpClient.Timeout,
		Transport: statusRecorder{base: httpClient.Transport},
	}

	return &GitHubClient{
		forge:         forge,
		restClient:    restClient,
		graphqlClient: githubv4.NewEnterpriseClient(graphqlEndpoint(apiURL), graphqlHTTPClient),
		maxPages:      opts.MaxPages,
		perPage:       opts.PerPage,
		logger:        opts.Logger.WithField("forge", forge.ID),
	}, nil
}

// graphqlEndpoint derives the GraphQL URL from a REST base URL. GitHub
// Enterprise serves REST under /api/v3 and GraphQL under /api/graphql.
func graphqlEndpoint(apiURL string) string {
	if strings.HasSuffix(apiURL, "/api/v3") {
		return strings.TrimSuffix(apiURL, "/api/v3") + "/api/graphql"
	}
	return apiURL + "/graphql"
}

// FetchMergeRequests lists the open pull requests of an owner/repo project.
func (g *GitHubClient) FetchMergeRequests(ctx context.Context, project domain.Project) ([]domain.MergeRequest, error) {
	owner, repo, err := g.splitRepo(project)
	if err != nil {
		return nil, err
	}
	log := g.logger.WithField("project", project.DisplayName())

	opts := &github.PullRequestListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: g.perPage},
	}
	mrs := []domain.MergeRequest{}
	for pages := 0; ; pages++ {
		if pages >= g.maxPages {
			return nil, g.fail(project, domain.ErrRemote, fmt.Errorf("pagination did not finish within %d pages", g.maxPages))
		}
		prs, resp, err := g.restClient.PullRequests.List(ctx, owner, repo, opts)
		if err != nil {
			return nil, g.fail(project, classifyGitHubError(err), fmt.Errorf("failed to list pull requests with REST API: %w", err))
		}
		for _, pr := range prs {
			mr, err := g.normalize(pr, project)
			if err != nil {
				return nil, err
			}
			if mr.Approvals.Count, err = g.fetchApprovalCount(ctx, project, owner, repo, mr.IID); err != nil {
				return nil, err
			}
			mrs = append(mrs, mr)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
		log.Debug("fetching next page of pull requests")
	}

	log.Debugf("fetched %d pull requests", len(mrs))
	return mrs, nil
}

// HydrateProject fills the display name and web URL from the repository.
func (g *GitHubClient) HydrateProject(ctx context.Context, project domain.Project) (domain.Project, error) {
	owner, repo, err := g.splitRepo(project)
	if err != nil {
		return project, err
	}
	r, _, err := g.restClient.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return project, g.fail(project, classifyGitHubError(err), fmt.Errorf("failed to get repository: %w", err))
	}
	if project.Name == "" {
		project.Name = r.GetName()
	}
	if project.WebURL == "" {
		project.WebURL = r.GetHTMLURL()
	}
	return project, nil
}

func (g *GitHubClient) fetchApprovalCount(ctx context.Context, project domain.Project, owner, repo string, number int) (int, error) {
	var q approvalsQuery
	variables := map[string]interface{}{
		"owner":  githubv4.String(owner),
		"name":   githubv4.String(repo),
		"number": githubv4.Int(number),
	}
	var status int
	if err := g.graphqlClient.Query(withStatusRecorder(ctx, &status), &q, variables); err != nil {
		kind := domain.ErrRemote
		if status >= http.StatusBadRequest {
			kind = kindForStatus(status)
		}
		return 0, g.fail(project, kind, fmt.Errorf("failed to execute GraphQL query for approvals of #%d: %w", number, err))
	}
	return q.Repository.PullRequest.Reviews.TotalCount, nil
}

// normalize converts a GitHub pull request into the canonical model.
func (g *GitHubClient) normalize(pr *github.PullRequest, project domain.Project) (domain.MergeRequest, error) {
	var missing []string
	if pr.GetNumber() == 0 {
		missing = append(missing, "number")
	}
	if pr.GetTitle() == "" {
		missing = append(missing, "title")
	}
	if pr.GetHTMLURL() == "" {
		missing = append(missing, "html_url")
	}
	if pr.CreatedAt == nil {
		missing = append(missing, "created_at")
	}
	if len(missing) > 0 {
		return domain.MergeRequest{}, g.fail(project, domain.ErrNormalization,
			fmt.Errorf("pull request %d is missing %s", pr.GetNumber(), strings.Join(missing, ", ")))
	}

	state, err := convertGitHubState(pr)
	if err != nil {
		return domain.MergeRequest{}, g.fail(project, domain.ErrNormalization, err)
	}

	labels := make([]string, 0, len(pr.Labels))
	for _, l := range pr.Labels {
		labels = append(labels, l.GetName())
	}

	return domain.MergeRequest{
		ID:           strconv.FormatInt(pr.GetID(), 10),
		IID:          pr.GetNumber(),
		Title:        pr.GetTitle(),
		URL:          pr.GetHTMLURL(),
		Author:       pr.GetUser().GetLogin(),
		SourceBranch: pr.GetHead().GetRef(),
		TargetBranch: pr.GetBase().GetRef(),
		State:        state,
		CreatedAt:    pr.GetCreatedAt().Time,
		UpdatedAt:    pr.GetUpdatedAt().Time,
		Labels:       labels,
		Project:      &project,
	}, nil
}

func (g *GitHubClient) splitRepo(project domain.Project) (string, string, error) {
	owner, repo, ok := strings.Cut(project.ID, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", g.fail(project, domain.ErrNotFound, fmt.Errorf("project id %q is not of the form owner/repo", project.ID))
	}
	return owner, repo, nil
}

func (g *GitHubClient) fail(project domain.Project, kind error, err error) error {
	return domain.NewFetchError(kind, g.forge.ID, project.DisplayName(), err)
}

// convertGitHubState converts GitHub state, draft flag and merge time to the canonical state.
func convertGitHubState(pr *github.PullRequest) (domain.State, error) {
	switch pr.GetState() {
	case "open":
		if pr.GetDraft() {
			return domain.StateDraft, nil
		}
		return domain.StateOpen, nil
	case "closed":
		if pr.MergedAt != nil {
			return domain.StateMerged, nil
		}
		return domain.StateClosed, nil
	default:
		return "", fmt.Errorf("unknown pull request state %q", pr.GetState())
	}
}

// classifyGitHubError maps go-github errors to error kinds.
func classifyGitHubError(err error) error {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	var respErr *github.ErrorResponse
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	switch {
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		return domain.ErrRemote
	case errors.As(err, &respErr) && respErr.Response != nil:
		return kindForStatus(respErr.Response.StatusCode)
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return domain.ErrNormalization
	default:
		return domain.ErrRemote
	}
}
