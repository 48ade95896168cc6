package timeline_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/embedchat/widget-gateway/internal/model"
	"github.com/embedchat/widget-gateway/internal/timeline"
)

var _ = Describe("Normalize", func() {
	now := time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)

	It("maps a plain record into a text entry", func() {
		entry := timeline.Normalize(model.Message{
			ID:               42,
			ConversationUUID: "conv-1",
			Sender:           model.SenderAssistant,
			MessageType:      model.TypeText,
			MessageContent:   "hello",
			CreatedAt:        model.FlexTime{Time: now.Add(-time.Hour)},
		}, now)

		Expect(entry.ID).To(Equal("42"))
		Expect(entry.RemoteID).To(Equal(int64(42)))
		Expect(entry.ConversationUUID).To(Equal("conv-1"))
		Expect(entry.Sender).To(Equal(model.SenderAssistant))
		Expect(entry.MessageType).To(Equal(model.TypeText))
		Expect(entry.Text).To(Equal("hello"))
		Expect(entry.Timestamp).To(Equal(now.Add(-time.Hour)))
	})

	It("detects a stored date row by its content shape", func() {
		entry := timeline.Normalize(model.Message{
			ID:             7,
			Sender:         model.SenderSystem,
			MessageType:    model.TypeText,
			MessageContent: "2025-03-13",
		}, now)

		Expect(entry.IsDateMarker()).To(BeTrue())
		Expect(entry.Sender).To(Equal(model.SenderDate))
		Expect(entry.MessageType).To(Equal(model.TypeDate))
		Expect(entry.Text).To(Equal("2025-03-13"))
	})

	It("does not mistake prose containing a date for a date row", func() {
		entry := timeline.Normalize(model.Message{
			Sender:         model.SenderVisitor,
			MessageContent: "2025-03-13 was a good day",
		}, now)

		Expect(entry.IsDateMarker()).To(BeFalse())
	})

	It("canonicalizes the aliased conversation field", func() {
		entry := timeline.Normalize(model.Message{
			Sender:         model.SenderVisitor,
			ConversationID: "conv-alias",
			MessageContent: "hi",
		}, now)

		Expect(entry.ConversationUUID).To(Equal("conv-alias"))
	})

	It("prefers the canonical conversation field over the alias", func() {
		entry := timeline.Normalize(model.Message{
			Sender:           model.SenderVisitor,
			ConversationUUID: "conv-canonical",
			ConversationID:   "conv-alias",
			MessageContent:   "hi",
		}, now)

		Expect(entry.ConversationUUID).To(Equal("conv-canonical"))
	})

	It("falls back to now for a record without a timestamp", func() {
		entry := timeline.Normalize(model.Message{
			Sender:         model.SenderVisitor,
			MessageContent: "hi",
		}, now)

		Expect(entry.Timestamp).To(Equal(now))
	})

	It("defaults a missing message type to text", func() {
		entry := timeline.Normalize(model.Message{
			Sender:         model.SenderVisitor,
			MessageContent: "hi",
		}, now)

		Expect(entry.MessageType).To(Equal(model.TypeText))
	})

	It("keeps a record without a backend id by synthesizing nothing for text rows", func() {
		entry := timeline.Normalize(model.Message{
			Sender:         model.SenderVisitor,
			MessageContent: "hi",
		}, now)

		Expect(entry.ID).To(BeEmpty())
		Expect(entry.Text).To(Equal("hi"))
	})
})

var _ = Describe("Entry", func() {
	Describe("CanRetry", func() {
		failed := false

		It("allows retrying a resolved failure", func() {
			entry := timeline.Entry{MessageType: model.TypeText, IsSuccessful: &failed}
			Expect(entry.CanRetry()).To(BeTrue())
		})

		It("never allows retrying placeholders or date markers", func() {
			Expect(timeline.Entry{MessageType: model.TypeDate, IsSuccessful: &failed}.CanRetry()).To(BeFalse())
			Expect(timeline.Entry{IsThinking: true, IsSuccessful: &failed}.CanRetry()).To(BeFalse())
			Expect(timeline.Entry{IsSending: true, IsSuccessful: &failed}.CanRetry()).To(BeFalse())
		})

		It("does not allow retrying an unresolved or successful slot", func() {
			ok := true
			Expect(timeline.Entry{MessageType: model.TypeText}.CanRetry()).To(BeFalse())
			Expect(timeline.Entry{MessageType: model.TypeText, IsSuccessful: &ok}.CanRetry()).To(BeFalse())
		})
	})
})
