package session_test

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/embedchat/widget-gateway/internal/session"
)

var _ = Describe("MemoryStore", func() {
	It("starts empty", func() {
		store := session.NewMemoryStore()
		_, ok := store.Get()
		Expect(ok).To(BeFalse())
	})

	It("round-trips a UUID", func() {
		store := session.NewMemoryStore()
		Expect(store.Set("visitor-1")).To(Succeed())

		uuid, ok := store.Get()
		Expect(ok).To(BeTrue())
		Expect(uuid).To(Equal("visitor-1"))
	})

	It("clears the slot", func() {
		store := session.NewMemoryStore()
		Expect(store.Set("visitor-1")).To(Succeed())
		Expect(store.Clear()).To(Succeed())

		_, ok := store.Get()
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("FileStore", func() {
	var path string

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "state", "visitor")
	})

	It("starts empty when the file does not exist", func() {
		store := session.NewFileStore(path)
		_, ok := store.Get()
		Expect(ok).To(BeFalse())
	})

	It("persists a UUID across store instances", func() {
		Expect(session.NewFileStore(path).Set("visitor-1")).To(Succeed())

		uuid, ok := session.NewFileStore(path).Get()
		Expect(ok).To(BeTrue())
		Expect(uuid).To(Equal("visitor-1"))
	})

	It("trims surrounding whitespace on read", func() {
		store := session.NewFileStore(path)
		Expect(store.Set("visitor-1")).To(Succeed())

		uuid, _ := store.Get()
		Expect(uuid).To(Equal("visitor-1"))
	})

	It("clears by removing the file and tolerates a missing one", func() {
		store := session.NewFileStore(path)
		Expect(store.Set("visitor-1")).To(Succeed())
		Expect(store.Clear()).To(Succeed())
		Expect(store.Clear()).To(Succeed())

		_, ok := store.Get()
		Expect(ok).To(BeFalse())
	})
})
