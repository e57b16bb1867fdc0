package handler

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"graphqlws/internal/hooks"
	"graphqlws/internal/protocol"
	"graphqlws/internal/session"
)

// Ginkgo/Gomega BDD coverage of the scenarios in spec.md §8, mirroring the
// teacher's mix of testify-style and ginkgo-style test suites.
var _ = Describe("Handler", func() {
	var (
		h    *Handler
		sess *session.Session
		exec *scriptedExecutor
	)

	BeforeEach(func() {
		exec = newScriptedExecutor()
		sess = session.New("bdd-session")
	})

	When("the keep-alive interval is disabled", func() {
		It("acks a connection_init without ever emitting ka", func() {
			h = New(Config{Executor: exec, Hooks: hooks.Default(), KeepAliveInterval: 0})

			out := h.Handle(context.Background(), []byte(`{"type":"connection_init"}`), sess)

			var first protocol.Message
			Eventually(out).Should(Receive(&first))
			Expect(first.Type).To(Equal(protocol.TypeConnectionAck))

			Eventually(out).Should(BeClosed())
		})
	})

	When("a start completes successfully", func() {
		It("emits exactly one data followed by one complete", func() {
			h = New(Config{Executor: exec, Hooks: hooks.Default(), KeepAliveInterval: 0})

			out := h.Handle(context.Background(), []byte(`{"type":"start","id":"abc","payload":{"query":"{ message }"}}`), sess)

			exec.respCh <- protocol.GraphQLResponse{Data: "myData"}
			close(exec.respCh)
			close(exec.errCh)

			var msgs []protocol.Message
			Eventually(func() []protocol.Message {
				select {
				case m, ok := <-out:
					if ok {
						msgs = append(msgs, m)
					}
				default:
				}
				return msgs
			}, 2*time.Second, 10*time.Millisecond).Should(HaveLen(2))

			Expect(msgs[0].Type).To(Equal(protocol.TypeData))
			Expect(msgs[1].Type).To(Equal(protocol.TypeComplete))
			Expect(msgs[1].ID).To(Equal("abc"))
		})
	})

	When("a start id is already active", func() {
		It("drops the duplicate silently without a second executor call", func() {
			h = New(Config{Executor: exec, Hooks: hooks.Default(), KeepAliveInterval: 0})

			h.Handle(context.Background(), []byte(`{"type":"start","id":"dup","payload":{"query":"{ x }"}}`), sess)
			second := h.Handle(context.Background(), []byte(`{"type":"start","id":"dup","payload":{"query":"{ x }"}}`), sess)

			_, ok := <-second
			Expect(ok).To(BeFalse())
			Expect(exec.calls).To(Equal(1))
		})
	})
})
