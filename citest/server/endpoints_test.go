package server_test

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clauderelay/clauderelay/pkg/types"
)

var _ = Describe("Server Endpoints", func() {
	BeforeEach(func() {
		testServer.CLI.Reset()
	})

	Describe("POST /chat", func() {
		It("executes a new chat turn and records the session", func() {
			testServer.CLI.QueueSuccess("it-sess-1", "hello there")

			resp, err := client.Post(ctx, "/chat", types.ChatRequest{Prompt: "hi"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var chat types.ChatResponse
			Expect(resp.JSON(&chat)).To(Succeed())
			Expect(chat.SessionID).To(Equal("it-sess-1"))
			Expect(chat.Result).To(Equal("hello there"))
			Expect(chat.Resumed).To(BeFalse())

			getResp, err := client.Get(ctx, "/session/it-sess-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(getResp.StatusCode).To(Equal(http.StatusOK))

			var stored types.SessionMetadata
			Expect(getResp.JSON(&stored)).To(Succeed())
			Expect(stored.IsActive).To(BeTrue())
			Expect(stored.MessageCount).To(Equal(1))
		})

		It("resumes a continuable session", func() {
			Expect(testServer.WriteSessionFile("/tmp/itproj", "it-sess-2")).To(Succeed())
			testServer.CLI.QueueSuccess("it-sess-2", "first")
			resp, err := client.Post(ctx, "/chat", types.ChatRequest{Prompt: "start", ProjectPath: "/tmp/itproj"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			testServer.CLI.QueueSuccess("it-sess-2", "second")
			resp, err = client.Post(ctx, "/chat", types.ChatRequest{Prompt: "again", SessionID: "it-sess-2"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var chat types.ChatResponse
			Expect(resp.JSON(&chat)).To(Succeed())
			Expect(chat.Resumed).To(BeTrue())

			calls := testServer.CLI.Calls()
			Expect(calls[len(calls)-1].SessionID).To(Equal("it-sess-2"))
		})

		It("rejects a request without a prompt", func() {
			resp, err := client.Post(ctx, "/chat", types.ChatRequest{})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("recovers from a transient network failure", func() {
			testServer.CLI.QueueFailure("connection reset by peer")
			testServer.CLI.QueueSuccess("it-sess-3", "recovered")

			resp, err := client.Post(ctx, "/chat", types.ChatRequest{Prompt: "flaky"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var chat types.ChatResponse
			Expect(resp.JSON(&chat)).To(Succeed())
			Expect(chat.Result).To(Equal("recovered"))
			Expect(chat.Recovery).NotTo(BeNil())
			Expect(chat.Recovery.Strategy).To(Equal(types.StrategyRetry))
		})

		It("aborts on a user error without retrying", func() {
			testServer.CLI.QueueFailure("validation failed - required field missing")

			before := len(testServer.CLI.Calls())
			resp, err := client.Post(ctx, "/chat", types.ChatRequest{Prompt: "bad"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			Expect(len(testServer.CLI.Calls())).To(Equal(before + 1))
		})
	})

	Describe("Session endpoints", func() {
		It("lists sessions with filters", func() {
			testServer.CLI.QueueSuccess("it-list-1", "ok")
			_, err := client.Post(ctx, "/chat", types.ChatRequest{Prompt: "hi", ProjectPath: "/tmp/lp"})
			Expect(err).NotTo(HaveOccurred())

			resp, err := client.Get(ctx, "/session/?active=true")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body struct {
				Sessions []types.SessionMetadata `json:"sessions"`
				Count    int                     `json:"count"`
			}
			Expect(resp.JSON(&body)).To(Succeed())
			Expect(body.Count).To(BeNumerically(">=", 1))
		})

		It("reports health for an unknown session", func() {
			resp, err := client.Get(ctx, "/session/no-such-session/health")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var health types.SessionHealth
			Expect(resp.JSON(&health)).To(Succeed())
			Expect(health.IsValid).To(BeFalse())
			Expect(health.Error).To(Equal("Session not found"))
		})

		It("deletes a stored session", func() {
			testServer.CLI.QueueSuccess("it-del-1", "ok")
			_, err := client.Post(ctx, "/chat", types.ChatRequest{Prompt: "hi"})
			Expect(err).NotTo(HaveOccurred())

			resp, err := client.Delete(ctx, "/session/it-del-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp, err = client.Get(ctx, "/session/it-del-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("serves combined stats", func() {
			resp, err := client.Get(ctx, "/session/stats")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body struct {
				Tracker types.TrackerStats `json:"tracker"`
				Store   types.StoreStats   `json:"store"`
			}
			Expect(resp.JSON(&body)).To(Succeed())
			Expect(body.Store.TotalSessions).To(BeNumerically(">=", 0))
		})

		It("exports sessions as CSV", func() {
			resp, err := client.Get(ctx, "/session/export?format=csv")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Headers.Get("Content-Type")).To(Equal("text/csv"))
			Expect(resp.String()).To(ContainSubstring("sessionId,projectPath"))
		})
	})

	Describe("Backup endpoints", func() {
		It("backs up and restores the store", func() {
			testServer.CLI.QueueSuccess("it-bak-1", "ok")
			_, err := client.Post(ctx, "/chat", types.ChatRequest{Prompt: "hi"})
			Expect(err).NotTo(HaveOccurred())

			resp, err := client.Post(ctx, "/backup", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var backup struct {
				File    string `json:"file"`
				Skipped bool   `json:"skipped"`
			}
			Expect(resp.JSON(&backup)).To(Succeed())
			Expect(backup.Skipped).To(BeFalse())
			Expect(backup.File).NotTo(BeEmpty())

			resp, err = client.Get(ctx, "/backup/")
			Expect(err).NotTo(HaveOccurred())
			var list struct {
				Backups []string `json:"backups"`
				Count   int      `json:"count"`
			}
			Expect(resp.JSON(&list)).To(Succeed())
			Expect(list.Count).To(BeNumerically(">=", 1))

			resp, err = client.Post(ctx, "/backup/restore", map[string]string{"file": backup.File})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("GET /health", func() {
		It("reports the subsystem healthy", func() {
			resp, err := client.Get(ctx, "/health")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var health types.HealthResponse
			Expect(resp.JSON(&health)).To(Succeed())
			Expect(health.Healthy).To(BeTrue())
		})
	})
})
