package devstub_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/embedchat/widget-gateway/internal/devstub"
	"github.com/embedchat/widget-gateway/internal/llm"
	"github.com/embedchat/widget-gateway/internal/model"
	"github.com/embedchat/widget-gateway/internal/session"
	"github.com/embedchat/widget-gateway/internal/timeline"
	"github.com/embedchat/widget-gateway/internal/upstream"
	"github.com/embedchat/widget-gateway/pkg/logger"
)

type failingLLM struct{}

func (failingLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return nil, errors.New("model overloaded")
}

func (failingLLM) Name() string { return "failing" }

// These specs run the real bootstrap and timeline engine against the
// devstub over HTTP, covering the full session and send lifecycle.
var _ = Describe("Gateway against the devstub", func() {
	var (
		store         *devstub.Store
		server        *httptest.Server
		visitors      upstream.VisitorDirectory
		conversations upstream.ConversationDirectory
		messages      upstream.MessageDirectory
		bootstrap     *session.Bootstrap
		engine        *timeline.Engine
		ctx           context.Context
	)

	startServer := func(llmClient llm.Client) {
		store = devstub.NewStore()
		server = httptest.NewServer(devstub.NewServer(store, llmClient, logger.NewNop()).Router())
		DeferCleanup(server.Close)

		client := upstream.NewClient(server.URL+"/api/v1", 5*time.Second, logger.NewNop())
		visitors = upstream.NewVisitors(client)
		conversations = upstream.NewConversations(client)
		messages = upstream.NewMessages(client)
		bootstrap = session.NewBootstrap(visitors, conversations, session.NewMemoryStore(), logger.NewNop())
		engine = timeline.NewEngine(timeline.Config{
			Messages: messages,
			Logger:   logger.NewNop(),
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		startServer(nil)
	})

	Describe("session lifecycle", func() {
		It("bootstraps a visitor and conversation on first contact", func() {
			res := bootstrap.EnsureSession(ctx)

			Expect(res.OK).To(BeTrue())
			Expect(res.VisitorUUID).NotTo(BeEmpty())
			Expect(res.Conversation).NotTo(BeNil())
			Expect(res.Repaired).To(BeFalse())

			Expect(store.GetVisitor(res.VisitorUUID)).NotTo(BeNil())
			Expect(store.GetConversation(res.Conversation.UUID)).NotTo(BeNil())
		})

		It("returns the same pair on repeated calls", func() {
			first := bootstrap.EnsureSession(ctx)
			second := bootstrap.EnsureSession(ctx)

			Expect(second.VisitorUUID).To(Equal(first.VisitorUUID))
			Expect(second.Conversation.UUID).To(Equal(first.Conversation.UUID))
		})

		It("self-heals when the visitor disappears upstream", func() {
			first := bootstrap.EnsureSession(ctx)
			Expect(store.DeleteVisitor(first.VisitorUUID)).To(BeTrue())

			repaired := bootstrap.EnsureSession(ctx)

			Expect(repaired.OK).To(BeTrue())
			Expect(repaired.Repaired).To(BeTrue())
			Expect(repaired.VisitorUUID).NotTo(Equal(first.VisitorUUID))
		})

		It("builds a brand-new pair on a fresh init", func() {
			first := bootstrap.EnsureSession(ctx)

			fresh := bootstrap.FreshInit(ctx)

			Expect(fresh.OK).To(BeTrue())
			Expect(fresh.VisitorUUID).NotTo(Equal(first.VisitorUUID))
			Expect(fresh.Conversation.UUID).NotTo(Equal(first.Conversation.UUID))
		})

		It("resets by deleting the visitor and clearing the slot", func() {
			first := bootstrap.EnsureSession(ctx)

			Expect(bootstrap.Reset(ctx)).To(Succeed())
			Expect(store.GetVisitor(first.VisitorUUID)).To(BeNil())
			Expect(bootstrap.SessionReady(ctx)).To(BeFalse())
		})
	})

	Describe("send lifecycle", func() {
		BeforeEach(func() {
			res := bootstrap.EnsureSession(ctx)
			Expect(res.OK).To(BeTrue())
			engine.SetConversation(ctx, res.Conversation)
		})

		It("resolves a send into date marker, visitor, and echoed reply", func() {
			result, err := engine.SendMessage(ctx, "Halo")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Outcome).To(Equal(timeline.OutcomeSuccess))

			snap := engine.Snapshot()
			Expect(snap.Entries).To(HaveLen(3))
			Expect(snap.Entries[0].IsDateMarker()).To(BeTrue())
			Expect(snap.Entries[1].Text).To(Equal("Halo"))
			Expect(*snap.Entries[1].IsSuccessful).To(BeTrue())
			Expect(snap.Entries[2].Text).To(Equal("You said: Halo"))
		})

		It("persists both records so a reload shows the same history", func() {
			engine.SendMessage(ctx, "Halo")

			engine.LoadMessages(ctx)

			snap := engine.Snapshot()
			Expect(snap.Entries).To(HaveLen(2))
			Expect(snap.Entries[0].Text).To(Equal("Halo"))
			Expect(snap.Entries[1].Text).To(Equal("You said: Halo"))
		})

		It("derives the conversation title from the first message", func() {
			engine.SendMessage(ctx, "Halo, I need help with my order")

			conv := store.GetConversation(engine.Conversation().UUID)
			Expect(conv.Title).To(Equal("Halo, I need help with my order"))
		})

		Context("when the assistant fails", func() {
			BeforeEach(func() {
				startServer(failingLLM{})
				res := bootstrap.EnsureSession(ctx)
				Expect(res.OK).To(BeTrue())
				engine.SetConversation(ctx, res.Conversation)
			})

			It("keeps the visitor message and renders the AI failure copy", func() {
				result, err := engine.SendMessage(ctx, "Halo")
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Outcome).To(Equal(timeline.OutcomeAIFailed))

				snap := engine.Snapshot()
				Expect(snap.Entries).To(HaveLen(3))
				Expect(snap.Entries[1].Text).To(Equal("Halo"))
				Expect(*snap.Entries[1].IsSuccessful).To(BeTrue())
				Expect(snap.Entries[2].MessageType).To(Equal(model.TypeError))
				Expect(snap.Entries[2].Text).To(Equal(timeline.DefaultMessages.AIResponseFailed))

				conv := store.GetConversation(engine.Conversation().UUID)
				Expect(conv).NotTo(BeNil())
				items, _, _ := store.History(conv.UUID, 10, 0)
				Expect(items).To(HaveLen(1))
				Expect(items[0].Sender).To(Equal(model.SenderVisitor))
			})
		})
	})

	Describe("backward pagination", func() {
		BeforeEach(func() {
			res := bootstrap.EnsureSession(ctx)
			Expect(res.OK).To(BeTrue())

			for i := 0; i < 5; i++ {
				sender := timeline.NewEngine(timeline.Config{
					Messages: messages,
					Logger:   logger.NewNop(),
				})
				sender.SetConversation(ctx, res.Conversation)
				_, err := sender.SendMessage(ctx, "message "+strconv.Itoa(i))
				Expect(err).NotTo(HaveOccurred())
			}

			engine = timeline.NewEngine(timeline.Config{
				Messages:        messages,
				Logger:          logger.NewNop(),
				InitialPageSize: 4,
				OlderPageSize:   4,
			})
			engine.SetConversation(ctx, res.Conversation)
		})

		It("loads the newest window first and pages backward to exhaustion", func() {
			snap := engine.Snapshot()
			Expect(snap.Entries).To(HaveLen(4))
			Expect(snap.HasMore).To(BeTrue())

			for snap.HasMore {
				engine.LoadOlderMessages(ctx)
				snap = engine.Snapshot()
			}

			Expect(snap.Entries).To(HaveLen(10))
			Expect(snap.HasMore).To(BeFalse())

			for i := 1; i < len(snap.Entries); i++ {
				Expect(snap.Entries[i].RemoteID).To(BeNumerically(">", snap.Entries[i-1].RemoteID))
			}
		})

		It("keeps paging a no-op once exhausted", func() {
			for engine.Snapshot().HasMore {
				engine.LoadOlderMessages(ctx)
			}
			count := len(engine.Snapshot().Entries)

			engine.LoadOlderMessages(ctx)
			Expect(engine.Snapshot().Entries).To(HaveLen(count))
		})
	})
})
