package server_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clauderelay/clauderelay/citest/testutil"
	"github.com/clauderelay/clauderelay/pkg/types"
)

var _ = Describe("SSE Streaming", func() {
	BeforeEach(func() {
		testServer.CLI.Reset()
	})

	Describe("GET /event", func() {
		It("announces the connection and relays bus events", func() {
			sse := testServer.SSEClient()
			Expect(sse.Connect(ctx, "/event")).To(Succeed())
			defer sse.Close()

			_, err := sse.WaitForEvent(5*time.Second, func(evt testutil.SSEEvent) bool {
				var payload struct {
					Type string `json:"type"`
				}
				if json.Unmarshal(evt.Data, &payload) != nil {
					return false
				}
				return payload.Type == "server.connected"
			})
			Expect(err).NotTo(HaveOccurred())

			testServer.CLI.QueueSuccess("sse-sess-1", "ok")
			_, err = client.Post(ctx, "/chat", types.ChatRequest{Prompt: "hi"})
			Expect(err).NotTo(HaveOccurred())

			_, err = sse.WaitForEvent(5*time.Second, func(evt testutil.SSEEvent) bool {
				var payload struct {
					Type string `json:"type"`
				}
				if json.Unmarshal(evt.Data, &payload) != nil {
					return false
				}
				return payload.Type == "chat.completed"
			})
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("POST /chat/stream", func() {
		It("streams CLI events followed by a result", func() {
			testServer.CLI.QueueSuccess("sse-sess-2", "streamed back")

			resp, err := client.Post(ctx, "/chat/stream", types.ChatRequest{Prompt: "hi"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Headers.Get("Content-Type")).To(HavePrefix("text/event-stream"))

			body := resp.String()
			Expect(body).To(ContainSubstring("event: message"))
			Expect(body).To(ContainSubstring(`"subtype":"init"`))
			Expect(body).To(ContainSubstring("event: result"))
			Expect(body).To(ContainSubstring(`"sessionId":"sse-sess-2"`))
		})

		It("reports failures in-band", func() {
			testServer.CLI.QueueFailure("validation failed")

			resp, err := client.Post(ctx, "/chat/stream", types.ChatRequest{Prompt: "hi"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.String()).To(ContainSubstring("event: error"))
		})
	})
})
