package integration

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/repo-activity-sync/internal/api/trigger"
	"github.com/stacklok/repo-activity-sync/internal/status"
	"github.com/stacklok/repo-activity-sync/test-integration/activity-sync/helpers"
)

const (
	widgetsLink = "https://github.com/acme/widgets"
	gadgetsLink = "https://github.com/acme/gadgets"
	limitedLink = "https://github.com/acme/limited"
	gitlabLink  = "https://gitlab.com/acme/gadgets"

	widgetsToken = "widgets-token"
	gadgetsToken = "gadgets-token"
)

var widgetsActivity = helpers.RepositoryActivity{
	Commits: []string{"c1", "c2"},
	Issues:  []int64{11},
	Pulls:   map[int64][]int64{7: {71, 72}},
}

var gadgetsActivity = helpers.RepositoryActivity{
	Commits: []string{"g1"},
}

var _ = Describe("Activity Sync", Label("sync"), func() {
	var (
		tempDir      string
		github       *helpers.MockGitHub
		serverHelper *helpers.ServerTestHelper
		configOpts   helpers.ConfigOptions
	)

	BeforeEach(func() {
		db.Reset()
		tempDir = createTempDir("activity-sync-test-")

		github = helpers.NewMockGitHubBuilder().
			WithRepository("acme/widgets", widgetsActivity).
			WithRepository("acme/gadgets", gadgetsActivity).
			WithRateLimitedRepository("acme/limited").
			WithRequiredToken("acme/widgets", widgetsToken).
			Build()

		configOpts = helpers.ConfigOptions{
			DatabaseYAML: db.DatabaseYAML(tempDir),
			ProviderURL:  github.URL,
			StatusDir:    filepath.Join(tempDir, "status"),
		}
	})

	JustBeforeEach(func() {
		configFile := helpers.WriteConfigYAML(tempDir, configOpts)
		serverHelper = helpers.NewServerTestHelper(ctx, configFile)
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(30 * time.Second)
	})

	AfterEach(func() {
		if serverHelper != nil {
			Expect(serverHelper.StopServer()).To(Succeed())
			serverHelper = nil
		}
		if github != nil {
			github.Close()
		}
		cleanupTempDir(tempDir)
	})

	Context("Batch over every repository", func() {
		It("should ingest the activity of every registered repository", func() {
			serverHelper.RegisterRepository(widgetsLink, widgetsToken)
			serverHelper.RegisterRepository("acme/gadgets", gadgetsToken)

			body := helpers.DecodeTriggerResponse(serverHelper.TriggerAll())

			total := widgetsActivity.EventCount() + gadgetsActivity.EventCount()
			Expect(body.Status).To(Equal(trigger.StatusSuccess))
			Expect(body.Message).To(Equal("Sync completed: 2 repositories processed"))
			Expect(body.RepositoriesProcessed).To(Equal(2))
			Expect(body.ContributionsFetched).To(Equal(total))
			Expect(body.ContributionsUpserted).To(Equal(total))
			Expect(body.ProcessedRepositoryLinks).To(ConsistOf(widgetsLink, gadgetsLink))
			Expect(body.Errors).To(BeEmpty())

			Expect(db.CountActivity(widgetsLink)).To(Equal(widgetsActivity.EventCount()))
			Expect(db.CountActivity(gadgetsLink)).To(Equal(gadgetsActivity.EventCount()))
			Expect(db.CountActivityByKind("review")).To(Equal(2))
			Expect(db.IsFetched(widgetsLink)).To(BeTrue())
			Expect(db.IsFetched(gadgetsLink)).To(BeTrue())
		})

		It("should not duplicate activity fetched again by a later batch", func() {
			serverHelper.RegisterRepository(widgetsLink, widgetsToken)

			first := helpers.DecodeTriggerResponse(serverHelper.TriggerAll())
			Expect(first.ContributionsUpserted).To(Equal(widgetsActivity.EventCount()))

			second := helpers.DecodeTriggerResponse(serverHelper.TriggerAll())
			Expect(second.Status).To(Equal(trigger.StatusSuccess))
			Expect(second.ContributionsFetched).To(Equal(widgetsActivity.EventCount()))
			Expect(second.ContributionsUpserted).To(BeZero())

			Expect(db.CountActivity(widgetsLink)).To(Equal(widgetsActivity.EventCount()))
		})

		It("should succeed with nothing to do when no repository is registered", func() {
			body := helpers.DecodeTriggerResponse(serverHelper.TriggerAll())

			Expect(body.Status).To(Equal(trigger.StatusSuccess))
			Expect(body.RepositoriesProcessed).To(BeZero())
			Expect(body.ProcessedRepositoryLinks).To(BeEmpty())
		})
	})

	Context("Per-repository failures", func() {
		It("should report a rate limited repository and keep syncing the others", func() {
			serverHelper.RegisterRepository(widgetsLink, widgetsToken)
			serverHelper.RegisterRepository(limitedLink, "limited-token")

			body := helpers.DecodeTriggerResponse(serverHelper.TriggerAll())

			Expect(body.Status).To(Equal(trigger.StatusCompletedWithErrors))
			Expect(body.Message).To(Equal("Sync completed with 1 error(s): 2 repositories processed"))
			Expect(body.ContributionsUpserted).To(Equal(widgetsActivity.EventCount()))
			Expect(body.Errors).To(HaveLen(1))
			Expect(body.Errors[0].Repository).To(Equal(limitedLink))
			Expect(body.Errors[0].Stage).To(Equal("fetch"))
			Expect(body.Errors[0].Kind).To(Equal("rate_limited"))

			Expect(db.IsFetched(widgetsLink)).To(BeTrue())
			Expect(db.IsFetched(limitedLink)).To(BeFalse(), "a failed repository stays due")
			Expect(github.Requests("acme/limited")).To(Equal(1), "rate limited requests are not retried")
		})

		It("should report a repository without a credential", func() {
			serverHelper.RegisterRepository(gadgetsLink, "")

			body := helpers.DecodeTriggerResponse(serverHelper.TriggerAll())

			Expect(body.Status).To(Equal(trigger.StatusCompletedWithErrors))
			Expect(body.Errors).To(HaveLen(1))
			Expect(body.Errors[0].Stage).To(Equal("resolve_credential"))
			Expect(body.Errors[0].Kind).To(Equal("not_found"))
			Expect(github.Requests("acme/gadgets")).To(BeZero())
		})

		It("should report a credential the provider rejects", func() {
			serverHelper.RegisterRepository(widgetsLink, "stale-token")

			body := helpers.DecodeTriggerResponse(serverHelper.TriggerAll())

			Expect(body.Errors).To(HaveLen(1))
			Expect(body.Errors[0].Kind).To(Equal("rejected"))
			Expect(db.CountActivity(widgetsLink)).To(BeZero())
		})

		It("should reject a repository hosted outside the provider", func() {
			serverHelper.RegisterRepository(gitlabLink, gadgetsToken)

			body := helpers.DecodeTriggerResponse(serverHelper.TriggerRepository(gitlabLink))

			Expect(body.Status).To(Equal(trigger.StatusCompletedWithErrors))
			Expect(body.Errors).To(HaveLen(1))
			Expect(body.Errors[0].Repository).To(Equal(gitlabLink))
			Expect(body.Errors[0].Stage).To(Equal("fetch"))
			Expect(body.Errors[0].Kind).To(Equal("rejected"))
			Expect(github.Requests("acme/gadgets")).To(BeZero(), "the GitHub API is not asked about another forge")
			Expect(db.IsFetched(gitlabLink)).To(BeFalse())
		})
	})

	Context("Single repository", func() {
		It("should sync only the repository named by its link", func() {
			serverHelper.RegisterRepository(widgetsLink, widgetsToken)
			serverHelper.RegisterRepository(gadgetsLink, gadgetsToken)

			body := helpers.DecodeTriggerResponse(serverHelper.TriggerRepository("https://github.com/acme/widgets.git"))

			Expect(body.RepositoriesProcessed).To(Equal(1))
			Expect(body.ProcessedRepositoryLinks).To(Equal([]string{widgetsLink}))
			Expect(db.CountActivity(gadgetsLink)).To(BeZero())
		})

		It("should sync the repository named by its id", func() {
			id := serverHelper.RegisterRepository(gadgetsLink, gadgetsToken)

			body := helpers.DecodeTriggerResponse(serverHelper.TriggerRepository(id.String()))

			Expect(body.ProcessedRepositoryLinks).To(Equal([]string{gadgetsLink}))
			Expect(db.CountActivity(gadgetsLink)).To(Equal(gadgetsActivity.EventCount()))
		})

		It("should return 404 for a repository that is not tracked", func() {
			resp, err := serverHelper.TriggerRepository("https://github.com/acme/unknown")
			Expect(err).NotTo(HaveOccurred())
			defer func() {
				_ = resp.Body.Close()
			}()

			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should return 400 for a link that is not a repository", func() {
			resp, err := serverHelper.TriggerRepository("not-a-repository")
			Expect(err).NotTo(HaveOccurred())
			defer func() {
				_ = resp.Body.Close()
			}()

			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Context("Staleness cutoff", func() {
		BeforeEach(func() {
			configOpts.StalenessCutoff = "1h"
		})

		It("should skip repositories fetched within the cutoff", func() {
			id := serverHelper.RegisterRepository(gadgetsLink, gadgetsToken)

			first := helpers.DecodeTriggerResponse(serverHelper.TriggerAll())
			Expect(first.RepositoriesProcessed).To(Equal(1))

			second := helpers.DecodeTriggerResponse(serverHelper.TriggerAll())
			Expect(second.RepositoriesProcessed).To(BeZero())
			Expect(second.Message).To(Equal("Sync completed: 0 repositories processed"))

			By("syncing the repository directly regardless of the cutoff")
			single := helpers.DecodeTriggerResponse(serverHelper.TriggerRepository(id.String()))
			Expect(single.RepositoriesProcessed).To(Equal(1))
		})
	})

	Context("Status", func() {
		It("should report and persist the last batch", func() {
			serverHelper.RegisterRepository(widgetsLink, widgetsToken)
			helpers.DecodeTriggerResponse(serverHelper.TriggerAll())

			snapshot := helpers.DecodeStatus(serverHelper.GetStatus())
			Expect(snapshot.Phase).To(Equal(status.PhaseIdle))
			Expect(snapshot.LastBatch).NotTo(BeNil())
			Expect(snapshot.LastBatch.Trigger).To(Equal(status.TriggerManual))
			Expect(snapshot.LastBatch.Outcome).To(Equal(status.OutcomeCompleted))
			Expect(snapshot.LastBatch.RepositoriesProcessed).To(Equal(1))
			Expect(snapshot.LastBatch.ContributionsUpserted).To(Equal(widgetsActivity.EventCount()))

			_, err := os.Stat(filepath.Join(configOpts.StatusDir, "last_batch.json"))
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Context("Prometheus metrics", func() {
		BeforeEach(func() {
			configOpts.PrometheusMetrics = true
		})

		It("should expose batch metrics", func() {
			serverHelper.RegisterRepository(gadgetsLink, gadgetsToken)
			helpers.DecodeTriggerResponse(serverHelper.TriggerAll())

			resp, err := serverHelper.GetMetrics()
			Expect(err).NotTo(HaveOccurred())
			defer func() {
				_ = resp.Body.Close()
			}()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("activity_sync"))
		})
	})
})
