package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	gitlab "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/time/rate"

	"github.com/naka-gawa/mrnag/internal/domain"
)

// GitLabClient fetches merge requests from the GitLab REST API (v4).
type GitLabClient struct {
	forge    domain.Forge
	client   *gitlab.Client
	maxPages int
	perPage  int
	logger   logrus.FieldLogger
}

// NewGitLabClient creates a client for the forge's api_url, e.g.
// https://gitlab.com/api/v4.
func NewGitLabClient(forge domain.Forge, token domain.Secret, opts Options) (*GitLabClient, error) {
	opts = opts.withDefaults()

	client, err := gitlab.NewOAuthClient(token.Reveal(),
		gitlab.WithBaseURL(strings.TrimRight(forge.APIURL, "/")),
		gitlab.WithHTTPClient(&http.Client{Timeout: opts.RequestTimeout}),
		gitlab.WithCustomLimiter(rate.NewLimiter(rate.Inf, 0)),
		gitlab.WithoutRetries(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client for %q: %w", forge.APIURL, err)
	}

	return &GitLabClient{
		forge:    forge,
		client:   client,
		maxPages: opts.MaxPages,
		perPage:  opts.PerPage,
		logger:   opts.Logger.WithField("forge", forge.ID),
	}, nil
}

// FetchMergeRequests lists the open merge requests of a project, following
// the next page GitLab reports until there is none, and fetches the approval
// state of each one.
func (c *GitLabClient) FetchMergeRequests(ctx context.Context, project domain.Project) ([]domain.MergeRequest, error) {
	log := c.logger.WithField("project", project.DisplayName())
	mrs := []domain.MergeRequest{}

	opts := &gitlab.ListProjectMergeRequestsOptions{
		ListOptions: gitlab.ListOptions{Page: 1, PerPage: c.perPage},
		State:       gitlab.Ptr("opened"),
	}
	for pages := 0; ; pages++ {
		if pages >= c.maxPages {
			return nil, c.fail(project, domain.ErrRemote, fmt.Errorf("pagination did not finish within %d pages", c.maxPages))
		}
		list, resp, err := c.client.MergeRequests.ListProjectMergeRequests(project.ID, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, c.apiError(project, resp, "failed to list merge requests", err)
		}
		log.Debugf("fetched page %d with %d merge requests", opts.Page, len(list))

		for _, m := range list {
			mr, err := c.normalize(project, gitlabMergeRequest{
				ID:           fmt.Sprint(m.ID),
				IID:          int(m.IID),
				Title:        m.Title,
				WebURL:       m.WebURL,
				State:        m.State,
				Draft:        m.Draft,
				SourceBranch: m.SourceBranch,
				TargetBranch: m.TargetBranch,
				Author:       m.Author,
				Labels:       m.Labels,
				CreatedAt:    m.CreatedAt,
				UpdatedAt:    m.UpdatedAt,
			})
			if err != nil {
				return nil, err
			}
			if mr.Approvals, err = c.fetchApprovals(ctx, project, mr.IID); err != nil {
				return nil, err
			}
			mrs = append(mrs, mr)
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	log.Debugf("fetched %d merge requests", len(mrs))
	return mrs, nil
}

// HydrateProject fills the display name and web URL from GitLab.
func (c *GitLabClient) HydrateProject(ctx context.Context, project domain.Project) (domain.Project, error) {
	p, resp, err := c.client.Projects.GetProject(project.ID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return project, c.apiError(project, resp, "failed to get project", err)
	}
	if project.Name == "" {
		project.Name = p.Name
	}
	if project.WebURL == "" {
		project.WebURL = p.WebURL
	}
	return project, nil
}

func (c *GitLabClient) fetchApprovals(ctx context.Context, project domain.Project, iid int) (domain.Approvals, error) {
	approvals, resp, err := c.client.MergeRequestApprovals.GetConfiguration(project.ID, iid, gitlab.WithContext(ctx))
	if err != nil {
		return domain.Approvals{}, c.apiError(project, resp, fmt.Sprintf("failed to get approvals of !%d", iid), err)
	}
	return domain.Approvals{
		Count:    len(approvals.ApprovedBy),
		Required: approvals.ApprovalsRequired,
	}, nil
}

// apiError classifies a client-go failure by HTTP status, falling back to
// the response when the error does not carry one.
func (c *GitLabClient) apiError(project domain.Project, resp *gitlab.Response, action string, err error) error {
	var errResp *gitlab.ErrorResponse
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	status := 0
	switch {
	case errors.As(err, &errResp) && errResp.Response != nil:
		status = errResp.Response.StatusCode
	case resp != nil && resp.Response != nil && resp.StatusCode >= http.StatusBadRequest:
		status = resp.StatusCode
	}

	switch {
	case status >= http.StatusBadRequest:
		return c.fail(project, kindForStatus(status), fmt.Errorf("%s: API returned status %d: %w", action, status, err))
	case isTransportFailure(err):
		return c.fail(project, domain.ErrRemote, fmt.Errorf("%s: request failed: %w", action, err))
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return c.fail(project, domain.ErrNormalization, fmt.Errorf("%s: failed to decode response: %w", action, err))
	default:
		return c.fail(project, domain.ErrRemote, fmt.Errorf("%s: %w", action, err))
	}
}

// gitlabMergeRequest holds the fields of a listed merge request that the
// canonical model needs.
type gitlabMergeRequest struct {
	ID           string
	IID          int
	Title        string
	WebURL       string
	State        string
	Draft        bool
	SourceBranch string
	TargetBranch string
	Author       *gitlab.BasicUser
	Labels       []string
	CreatedAt    *time.Time
	UpdatedAt    *time.Time
}

// normalize converts a GitLab merge request into the canonical model.
func (c *GitLabClient) normalize(project domain.Project, r gitlabMergeRequest) (domain.MergeRequest, error) {
	var missing []string
	if r.IID == 0 {
		missing = append(missing, "iid")
	}
	if r.Title == "" {
		missing = append(missing, "title")
	}
	if r.WebURL == "" {
		missing = append(missing, "web_url")
	}
	if r.CreatedAt == nil {
		missing = append(missing, "created_at")
	}
	if len(missing) > 0 {
		return domain.MergeRequest{}, c.fail(project, domain.ErrNormalization,
			fmt.Errorf("merge request %d is missing %s", r.IID, strings.Join(missing, ", ")))
	}

	state, err := convertGitLabState(r.State, r.Draft)
	if err != nil {
		return domain.MergeRequest{}, c.fail(project, domain.ErrNormalization, err)
	}

	mr := domain.MergeRequest{
		ID:           r.ID,
		IID:          r.IID,
		Title:        r.Title,
		URL:          r.WebURL,
		SourceBranch: r.SourceBranch,
		TargetBranch: r.TargetBranch,
		State:        state,
		CreatedAt:    *r.CreatedAt,
		Labels:       append([]string{}, r.Labels...),
		Project:      &project,
	}
	if r.UpdatedAt != nil {
		mr.UpdatedAt = *r.UpdatedAt
	}
	if r.Author != nil {
		mr.Author = r.Author.Name
		if mr.Author == "" {
			mr.Author = r.Author.Username
		}
	}
	return mr, nil
}

func (c *GitLabClient) fail(project domain.Project, kind error, err error) error {
	return domain.NewFetchError(kind, c.forge.ID, project.DisplayName(), err)
}

// convertGitLabState converts a GitLab state to the canonical state.
func convertGitLabState(state string, draft bool) (domain.State, error) {
	switch state {
	case "opened":
		if draft {
			return domain.StateDraft, nil
		}
		return domain.StateOpen, nil
	case "merged":
		return domain.StateMerged, nil
	case "closed", "locked":
		return domain.StateClosed, nil
	default:
		return "", fmt.Errorf("unknown merge request state %q", state)
	}
}
