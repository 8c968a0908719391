package events

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/projectd/internal/project"
)

// GitHubMirror mirrors project lifecycle into a GitHub organization: a
// created project gets a private repository of the same name, a deleted
// project gets its repository archived. Any API failure is reported as
// an unacknowledged event.
type GitHubMirror struct {
	client *github.Client
	org    string
	logger *zap.Logger
}

// NewGitHubMirror creates a mirror for the given organization using a
// personal access token.
func NewGitHubMirror(org, token string, logger *zap.Logger) *GitHubMirror {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(context.Background(), ts))
	return newGitHubMirror(client, org, logger)
}

func newGitHubMirror(client *github.Client, org string, logger *zap.Logger) *GitHubMirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitHubMirror{client: client, org: org, logger: logger}
}

// Notify implements Notifier.
func (g *GitHubMirror) Notify(ctx context.Context, system string, kind Kind, proj *project.Project) bool {
	var err error
	switch kind {
	case KindCreated:
		err = g.createRepo(ctx, system, proj)
	case KindDeleted:
		err = g.archiveRepo(ctx, proj)
	default:
		g.logger.Warn("unknown event kind", zap.String("kind", string(kind)))
		return false
	}

	if err != nil {
		g.logger.Warn("github mirror failed",
			zap.String("system", system),
			zap.String("kind", string(kind)),
			zap.String("project", proj.Name),
			zap.Error(err))
		return false
	}
	return true
}

func (g *GitHubMirror) createRepo(ctx context.Context, system string, proj *project.Project) error {
	repo := &github.Repository{
		Name:        github.String(proj.Name),
		Description: github.String(fmt.Sprintf("Mirror of project %s (system %s)", proj.Name, system)),
		Private:     github.Bool(true),
	}
	_, resp, err := g.client.Repositories.Create(ctx, g.org, repo)
	if err != nil {
		// An existing mirror repository counts as delivered.
		if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity {
			g.logger.Debug("mirror repository already exists", zap.String("project", proj.Name))
			return nil
		}
		return fmt.Errorf("create mirror repository: %w", err)
	}
	return nil
}

func (g *GitHubMirror) archiveRepo(ctx context.Context, proj *project.Project) error {
	patch := &github.Repository{Archived: github.Bool(true)}
	_, resp, err := g.client.Repositories.Edit(ctx, g.org, proj.Name, patch)
	if err != nil {
		// A mirror that never existed or is already gone counts as delivered.
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			g.logger.Debug("mirror repository absent", zap.String("project", proj.Name))
			return nil
		}
		return fmt.Errorf("archive mirror repository: %w", err)
	}
	return nil
}
