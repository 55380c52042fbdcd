package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/repo-activity-sync/internal/otel"
	"github.com/stacklok/repo-activity-sync/internal/registry"
	"github.com/stacklok/repo-activity-sync/internal/status"
	pkgsync "github.com/stacklok/repo-activity-sync/internal/sync"
)

// repositoryOutcome is the result of one repository's pass within a batch
type repositoryOutcome struct {
	started bool
	result  *pkgsync.Result
	err     *pkgsync.Error
}

// runBatch executes one batch. The caller must hold the gate.
func (c *defaultCoordinator) runBatch(ctx context.Context, scope Scope, trigger status.Trigger) (*BatchResult, error) {
	start := c.now()
	c.tracker.Begin(trigger, start)

	ctx, span := otel.StartSpan(ctx, c.tracer, "coordinator.RunBatch",
		trace.WithAttributes(otel.AttrBatchScope.String(scope.String())),
	)
	defer span.End()

	result, err := c.executeBatch(ctx, scope, start)
	elapsed := time.Since(start)

	summary := status.BatchSummary{
		Trigger:    trigger,
		StartedAt:  start,
		FinishedAt: start.Add(elapsed),
	}
	if err != nil {
		otel.RecordError(span, err)
		summary.Outcome = status.OutcomeFailed
		summary.Message = err.Error()
		c.tracker.End(ctx, summary)
		c.metrics.RecordBatch(ctx, string(trigger), elapsed, 0, 0, false)
		return nil, err
	}

	result.ProcessingTime = elapsed
	span.SetAttributes(otel.AttrResultCount.Int(result.ContributionsUpserted))

	summary.Outcome = status.OutcomeCompleted
	summary.Message = result.Message()
	summary.RepositoriesProcessed = result.RepositoriesProcessed
	summary.ContributionsFetched = result.ContributionsFetched
	summary.ContributionsUpserted = result.ContributionsUpserted
	summary.ErrorCount = len(result.Errors)
	c.tracker.End(ctx, summary)
	c.metrics.RecordBatch(ctx, string(trigger), elapsed,
		result.ContributionsFetched, result.ContributionsUpserted, true)
	for _, repoErr := range result.Errors {
		c.metrics.RecordRepositoryError(ctx, repoErr.Stage, repoErr.Kind)
	}

	slog.InfoContext(ctx, "Sync batch completed",
		"trigger", trigger,
		"scope", scope.String(),
		"repositories_processed", result.RepositoriesProcessed,
		"contributions_fetched", result.ContributionsFetched,
		"contributions_upserted", result.ContributionsUpserted,
		"errors", len(result.Errors),
		"duration", elapsed)

	return result, nil
}

// executeBatch selects the candidates and runs every repository pass
func (c *defaultCoordinator) executeBatch(ctx context.Context, scope Scope, start time.Time) (*BatchResult, error) {
	repos, err := c.candidates(ctx, scope, start)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{
		TriggeredAt:              start,
		ProcessedRepositoryLinks: []string{},
		Errors:                   []RepositoryError{},
	}
	if len(repos) == 0 {
		slog.DebugContext(ctx, "No repositories due for sync", "scope", scope.String())
		return result, nil
	}

	batchCtx, cancel := context.WithTimeout(ctx, c.config.BatchTimeout)
	defer cancel()

	outcomes := make([]repositoryOutcome, len(repos))
	g, gctx := errgroup.WithContext(batchCtx)
	g.SetLimit(c.config.Concurrency)
	for i, repo := range repos {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			defer func() {
				if r := recover(); r != nil {
					slog.ErrorContext(ctx, "Repository sync panicked",
						"repository", repo.CanonicalLink,
						"panic", r)
					outcomes[i] = repositoryOutcome{
						started: true,
						result:  &pkgsync.Result{},
						err: &pkgsync.Error{
							Err:     fmt.Errorf("panic: %v", r),
							Message: fmt.Sprintf("repository sync panicked: %v", r),
							Stage:   pkgsync.StageInternal,
							Kind:    pkgsync.KindInternal,
						},
					}
				}
			}()
			outcomes[i] = c.syncRepository(gctx, repo, start)
			if outcomes[i].err != nil && outcomes[i].err.Fatal() {
				return outcomes[i].err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "Sync batch aborted by a fatal error", "error", err)
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("sync batch cancelled: %w", ctx.Err())
	}

	timedOut := errors.Is(batchCtx.Err(), context.DeadlineExceeded)
	for i, repo := range repos {
		out := outcomes[i]
		if !out.started {
			result.Errors = append(result.Errors, timedOutError(repo.CanonicalLink))
			continue
		}

		result.RepositoriesProcessed++
		result.ProcessedRepositoryLinks = append(result.ProcessedRepositoryLinks, repo.CanonicalLink)
		result.ContributionsFetched += out.result.Fetched
		result.ContributionsUpserted += out.result.Inserted
		result.ContributionsExisting += out.result.AlreadyExisted

		switch {
		case out.err == nil:
		case timedOut && errors.Is(out.err, context.DeadlineExceeded):
			result.Errors = append(result.Errors, timedOutError(repo.CanonicalLink))
		default:
			result.Errors = append(result.Errors, newRepositoryError(repo.CanonicalLink, out.err))
		}
	}

	if timedOut {
		slog.WarnContext(ctx, "Sync batch hit its timeout",
			"timeout", c.config.BatchTimeout,
			"repositories", len(repos),
			"processed", result.RepositoriesProcessed)
	}

	return result, nil
}

// candidates lists the repositories the scope selects
func (c *defaultCoordinator) candidates(
	ctx context.Context, scope Scope, now time.Time,
) ([]registry.TrackedRepository, error) {
	if scope.all {
		repos, err := c.store.SelectDue(ctx, now, c.config.StalenessCutoff)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEnumerationFailed, err)
		}
		return repos, nil
	}

	var (
		repo *registry.TrackedRepository
		err  error
	)
	if scope.link != "" {
		repo, err = c.store.GetByLink(ctx, scope.link)
	} else {
		repo, err = c.store.Get(ctx, scope.id)
	}
	if err != nil {
		return nil, err
	}
	return []registry.TrackedRepository{*repo}, nil
}

// syncRepository runs one repository's pass and advances its staleness
// timestamp to the batch start when the pass completed
func (c *defaultCoordinator) syncRepository(
	ctx context.Context, repo registry.TrackedRepository, batchStart time.Time,
) repositoryOutcome {
	out := repositoryOutcome{started: true}

	out.result, out.err = c.manager.PerformSync(ctx, repo)
	if out.result == nil {
		out.result = &pkgsync.Result{}
	}
	if out.err != nil {
		slog.WarnContext(ctx, "Repository sync failed",
			"repository", repo.CanonicalLink,
			"stage", out.err.Stage,
			"kind", out.err.Kind,
			"error", out.err.Message)
	}
	if !passCompleted(out.err) {
		return out
	}

	if err := c.store.MarkFetched(ctx, repo.ID, batchStart); err != nil {
		markErr := pkgsync.NewError(pkgsync.StageMarkFetched, err)
		slog.WarnContext(ctx, "Failed to record fetch time",
			"repository", repo.CanonicalLink,
			"error", err)
		if out.err == nil {
			out.err = markErr
		}
	}
	return out
}
