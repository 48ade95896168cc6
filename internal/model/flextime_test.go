package model_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/embedchat/widget-gateway/internal/model"
)

var _ = Describe("FlexTime", func() {
	decode := func(raw string) model.FlexTime {
		var t model.FlexTime
		Expect(json.Unmarshal([]byte(raw), &t)).To(Succeed())
		return t
	}

	It("decodes RFC3339 strings", func() {
		t := decode(`"2025-03-14T15:00:00Z"`)
		Expect(t.Time).To(Equal(time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)))
	})

	It("decodes epoch seconds", func() {
		t := decode(`1741964400`)
		Expect(t.Unix()).To(Equal(int64(1741964400)))
	})

	It("decodes epoch milliseconds", func() {
		t := decode(`1741964400123`)
		Expect(t.UnixMilli()).To(Equal(int64(1741964400123)))
	})

	It("decodes numeric strings as epochs", func() {
		t := decode(`"1741964400"`)
		Expect(t.Unix()).To(Equal(int64(1741964400)))
	})

	It("decodes null and empty strings to the zero time", func() {
		Expect(decode(`null`).IsZero()).To(BeTrue())
		Expect(decode(`""`).IsZero()).To(BeTrue())
	})

	It("never fails on garbage, it degrades to the zero time", func() {
		Expect(decode(`"yesterday-ish"`).IsZero()).To(BeTrue())
	})

	It("marshals the zero time as null", func() {
		raw, err := json.Marshal(model.FlexTime{})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(raw)).To(Equal("null"))
	})

	It("survives a message record with a malformed timestamp", func() {
		var msg model.Message
		err := json.Unmarshal([]byte(`{"sender":"visitor","message_content":"hi","created_at":"not a date"}`), &msg)
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.MessageContent).To(Equal("hi"))
		Expect(msg.CreatedAt.IsZero()).To(BeTrue())
	})
})
