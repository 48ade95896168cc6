package session_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/embedchat/widget-gateway/internal/model"
	"github.com/embedchat/widget-gateway/internal/session"
	"github.com/embedchat/widget-gateway/pkg/logger"
)

type fakeVisitors struct {
	createFn  func(ctx context.Context) (*model.Visitor, error)
	getFn     func(ctx context.Context, uuid string) (*model.Visitor, error)
	deleteFn  func(ctx context.Context, uuid string) (bool, error)
	creates   int
	gets      int
	deletes   int
	deletedID string
}

func (f *fakeVisitors) Create(ctx context.Context) (*model.Visitor, error) {
	f.creates++
	if f.createFn != nil {
		return f.createFn(ctx)
	}
	return &model.Visitor{UUID: "visitor-new"}, nil
}

func (f *fakeVisitors) GetByUUID(ctx context.Context, uuid string) (*model.Visitor, error) {
	f.gets++
	if f.getFn != nil {
		return f.getFn(ctx, uuid)
	}
	return &model.Visitor{UUID: uuid}, nil
}

func (f *fakeVisitors) Delete(ctx context.Context, uuid string) (bool, error) {
	f.deletes++
	f.deletedID = uuid
	if f.deleteFn != nil {
		return f.deleteFn(ctx, uuid)
	}
	return true, nil
}

type fakeConversations struct {
	createFn  func(ctx context.Context, visitorUUID string) (*model.Conversation, error)
	activeFn  func(ctx context.Context, visitorUUID string) (*model.Conversation, error)
	creates   int
	activeFor []string
}

func (f *fakeConversations) Create(ctx context.Context, visitorUUID string) (*model.Conversation, error) {
	f.creates++
	if f.createFn != nil {
		return f.createFn(ctx, visitorUUID)
	}
	return &model.Conversation{UUID: "conv-" + visitorUUID, VisitorUUID: visitorUUID}, nil
}

func (f *fakeConversations) GetByUUID(ctx context.Context, uuid string) (*model.Conversation, error) {
	return &model.Conversation{UUID: uuid}, nil
}

func (f *fakeConversations) GetActiveByVisitor(ctx context.Context, visitorUUID string) (*model.Conversation, error) {
	f.activeFor = append(f.activeFor, visitorUUID)
	if f.activeFn != nil {
		return f.activeFn(ctx, visitorUUID)
	}
	return nil, nil
}

func (f *fakeConversations) ListByVisitor(ctx context.Context, visitorUUID string, limit, offset int) ([]model.Conversation, error) {
	return nil, nil
}

var _ = Describe("Bootstrap", func() {
	var (
		visitors      *fakeVisitors
		conversations *fakeConversations
		store         *session.MemoryStore
		bootstrap     *session.Bootstrap
		ctx           context.Context
	)

	BeforeEach(func() {
		visitors = &fakeVisitors{}
		conversations = &fakeConversations{}
		store = session.NewMemoryStore()
		bootstrap = session.NewBootstrap(visitors, conversations, store, logger.NewNop())
		ctx = context.Background()
	})

	Describe("EnsureSession", func() {
		Context("with an empty identity slot", func() {
			It("creates a visitor and a conversation and persists the slot", func() {
				res := bootstrap.EnsureSession(ctx)

				Expect(res.OK).To(BeTrue())
				Expect(res.VisitorUUID).To(Equal("visitor-new"))
				Expect(res.Conversation).NotTo(BeNil())
				Expect(res.Repaired).To(BeFalse())

				cached, ok := store.Get()
				Expect(ok).To(BeTrue())
				Expect(cached).To(Equal("visitor-new"))
			})

			It("reuses an existing active conversation instead of creating one", func() {
				conversations.activeFn = func(ctx context.Context, visitorUUID string) (*model.Conversation, error) {
					return &model.Conversation{UUID: "conv-active", VisitorUUID: visitorUUID}, nil
				}

				res := bootstrap.EnsureSession(ctx)

				Expect(res.OK).To(BeTrue())
				Expect(res.Conversation.UUID).To(Equal("conv-active"))
				Expect(conversations.creates).To(BeZero())
			})
		})

		Context("with a healthy cached identity", func() {
			BeforeEach(func() {
				Expect(store.Set("visitor-cached")).To(Succeed())
				conversations.activeFn = func(ctx context.Context, visitorUUID string) (*model.Conversation, error) {
					return &model.Conversation{UUID: "conv-active", VisitorUUID: visitorUUID}, nil
				}
			})

			It("verifies and returns the cached pair without creating anything", func() {
				res := bootstrap.EnsureSession(ctx)

				Expect(res.OK).To(BeTrue())
				Expect(res.VisitorUUID).To(Equal("visitor-cached"))
				Expect(res.Conversation.UUID).To(Equal("conv-active"))
				Expect(res.Repaired).To(BeFalse())
				Expect(visitors.creates).To(BeZero())
				Expect(conversations.creates).To(BeZero())
			})

			It("is idempotent across repeated calls", func() {
				first := bootstrap.EnsureSession(ctx)
				second := bootstrap.EnsureSession(ctx)

				Expect(second.VisitorUUID).To(Equal(first.VisitorUUID))
				Expect(second.Conversation.UUID).To(Equal(first.Conversation.UUID))
				Expect(visitors.creates).To(BeZero())
			})

			It("creates a conversation when the visitor has no active one", func() {
				conversations.activeFn = nil

				res := bootstrap.EnsureSession(ctx)

				Expect(res.OK).To(BeTrue())
				Expect(res.VisitorUUID).To(Equal("visitor-cached"))
				Expect(conversations.creates).To(Equal(1))
			})
		})

		Context("when the cached identity is stale", func() {
			BeforeEach(func() {
				Expect(store.Set("visitor-stale")).To(Succeed())
			})

			It("self-heals when the visitor no longer exists upstream", func() {
				visitors.getFn = func(ctx context.Context, uuid string) (*model.Visitor, error) {
					return nil, nil
				}

				res := bootstrap.EnsureSession(ctx)

				Expect(res.OK).To(BeTrue())
				Expect(res.Repaired).To(BeTrue())
				Expect(res.VisitorUUID).To(Equal("visitor-new"))

				cached, ok := store.Get()
				Expect(ok).To(BeTrue())
				Expect(cached).To(Equal("visitor-new"))
			})

			It("self-heals when verification fails with a backend error", func() {
				visitors.getFn = func(ctx context.Context, uuid string) (*model.Visitor, error) {
					return nil, errors.New("upstream returned 500")
				}

				res := bootstrap.EnsureSession(ctx)

				Expect(res.OK).To(BeTrue())
				Expect(res.Repaired).To(BeTrue())
				Expect(res.VisitorUUID).To(Equal("visitor-new"))
			})

			It("self-heals when the active conversation fetch fails", func() {
				conversations.activeFn = func(ctx context.Context, visitorUUID string) (*model.Conversation, error) {
					if visitorUUID == "visitor-stale" {
						return nil, errors.New("upstream returned 500")
					}
					return nil, nil
				}

				res := bootstrap.EnsureSession(ctx)

				Expect(res.OK).To(BeTrue())
				Expect(res.Repaired).To(BeTrue())
				Expect(res.VisitorUUID).To(Equal("visitor-new"))
			})

			It("runs the repair pass exactly once, never a loop", func() {
				visitors.getFn = func(ctx context.Context, uuid string) (*model.Visitor, error) {
					return nil, nil
				}

				bootstrap.EnsureSession(ctx)

				Expect(visitors.gets).To(Equal(1))
				Expect(visitors.creates).To(Equal(1))
			})

			It("reports a failure when the repair pass itself fails", func() {
				visitors.getFn = func(ctx context.Context, uuid string) (*model.Visitor, error) {
					return nil, nil
				}
				visitors.createFn = func(ctx context.Context) (*model.Visitor, error) {
					return nil, errors.New("create exploded")
				}

				res := bootstrap.EnsureSession(ctx)

				Expect(res.OK).To(BeFalse())
				Expect(res.Failure).NotTo(BeNil())
				Expect(res.Failure.Kind).To(Equal(session.KindVisitorInit))
				Expect(res.Error).NotTo(BeEmpty())
			})
		})

		Context("when initialization fails", func() {
			It("tags a visitor creation failure", func() {
				visitors.createFn = func(ctx context.Context) (*model.Visitor, error) {
					return nil, errors.New("boom")
				}

				res := bootstrap.EnsureSession(ctx)

				Expect(res.OK).To(BeFalse())
				Expect(res.Failure.Kind).To(Equal(session.KindVisitorInit))
			})

			It("tags a conversation creation failure", func() {
				conversations.createFn = func(ctx context.Context, visitorUUID string) (*model.Conversation, error) {
					return nil, errors.New("boom")
				}

				res := bootstrap.EnsureSession(ctx)

				Expect(res.OK).To(BeFalse())
				Expect(res.Failure.Kind).To(Equal(session.KindConversationInit))
			})

			It("never panics past the state machine boundary", func() {
				visitors.createFn = func(ctx context.Context) (*model.Visitor, error) {
					return nil, errors.New("boom")
				}

				Expect(func() { bootstrap.EnsureSession(ctx) }).NotTo(Panic())
			})
		})
	})

	Describe("FreshInit", func() {
		It("abandons the cached identity and builds a new pair", func() {
			Expect(store.Set("visitor-old")).To(Succeed())

			res := bootstrap.FreshInit(ctx)

			Expect(res.OK).To(BeTrue())
			Expect(res.VisitorUUID).To(Equal("visitor-new"))
			Expect(visitors.creates).To(Equal(1))
			Expect(conversations.creates).To(Equal(1))
		})

		It("always creates a conversation even when an active one exists", func() {
			conversations.activeFn = func(ctx context.Context, visitorUUID string) (*model.Conversation, error) {
				return &model.Conversation{UUID: "conv-active"}, nil
			}

			res := bootstrap.FreshInit(ctx)

			Expect(res.OK).To(BeTrue())
			Expect(res.Conversation.UUID).NotTo(Equal("conv-active"))
			Expect(conversations.creates).To(Equal(1))
		})
	})

	Describe("SessionReady", func() {
		It("is false with an empty slot", func() {
			Expect(bootstrap.SessionReady(ctx)).To(BeFalse())
		})

		It("is true when the cached visitor resolves upstream", func() {
			Expect(store.Set("visitor-cached")).To(Succeed())
			Expect(bootstrap.SessionReady(ctx)).To(BeTrue())
		})

		It("is false when the cached visitor is gone", func() {
			Expect(store.Set("visitor-gone")).To(Succeed())
			visitors.getFn = func(ctx context.Context, uuid string) (*model.Visitor, error) {
				return nil, nil
			}
			Expect(bootstrap.SessionReady(ctx)).To(BeFalse())
		})
	})

	Describe("Reset", func() {
		It("deletes the visitor upstream and clears the slot", func() {
			Expect(store.Set("visitor-cached")).To(Succeed())

			Expect(bootstrap.Reset(ctx)).To(Succeed())

			Expect(visitors.deletes).To(Equal(1))
			Expect(visitors.deletedID).To(Equal("visitor-cached"))
			_, ok := store.Get()
			Expect(ok).To(BeFalse())
		})

		It("still clears the slot when the upstream delete fails", func() {
			Expect(store.Set("visitor-cached")).To(Succeed())
			visitors.deleteFn = func(ctx context.Context, uuid string) (bool, error) {
				return false, errors.New("boom")
			}

			Expect(bootstrap.Reset(ctx)).To(Succeed())
			_, ok := store.Get()
			Expect(ok).To(BeFalse())
		})

		It("is a no-op on an empty slot", func() {
			Expect(bootstrap.Reset(ctx)).To(Succeed())
			Expect(visitors.deletes).To(BeZero())
		})
	})
})
