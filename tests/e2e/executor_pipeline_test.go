package e2e

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/edgecomet/apcore/acl"
	"github.com/edgecomet/apcore/core"
	"github.com/edgecomet/apcore/executor"
	"github.com/edgecomet/apcore/middleware"
	"github.com/edgecomet/apcore/registry"
)

func objectSchema(props map[string]any, required ...string) map[string]any {
	reqs := make([]any, len(required))
	for i, r := range required {
		reqs[i] = r
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   reqs,
	}
}

var _ = Describe("Call, happy path", func() {
	It("runs a handler and observes the full call chain", func() {
		var observedChain []string
		greetModule := &core.Module{
			ID:           "greet.hello",
			Description:  "greets someone by name",
			InputSchema:  objectSchema(map[string]any{"name": map[string]any{"type": "string"}}, "name"),
			OutputSchema: objectSchema(map[string]any{"message": map[string]any{"type": "string"}}, "message"),
			Handler: core.HandlerFunc(func(_ context.Context, callCtx *core.Context, in map[string]any) (map[string]any, error) {
				observedChain = callCtx.CallChain
				return map[string]any{"message": "hi " + in["name"].(string)}, nil
			}),
		}

		store := registry.New()
		Expect(store.Register(greetModule, nil)).To(Succeed())
		ex := executor.New(store, nil, nil, nil)

		out, err := ex.Call(context.Background(), "greet.hello", map[string]any{"name": "Alice"}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(map[string]any{"message": "hi Alice"}))
		Expect(observedChain).To(Equal([]string{"greet.hello"}))
	})
})

var _ = Describe("Circular call detection", func() {
	It("raises CIRCULAR_CALL when a call tree revisits a module", func() {
		store := registry.New()

		var ex *executor.Executor
		moduleA := &core.Module{
			ID:          "a",
			InputSchema: objectSchema(nil),
			Handler: core.HandlerFunc(func(ctx context.Context, callCtx *core.Context, _ map[string]any) (map[string]any, error) {
				return ex.Call(ctx, "b", map[string]any{}, callCtx)
			}),
		}
		moduleB := &core.Module{
			ID:          "b",
			InputSchema: objectSchema(nil),
			Handler: core.HandlerFunc(func(ctx context.Context, callCtx *core.Context, _ map[string]any) (map[string]any, error) {
				return ex.Call(ctx, "a", map[string]any{}, callCtx)
			}),
		}
		Expect(store.Register(moduleA, nil)).To(Succeed())
		Expect(store.Register(moduleB, nil)).To(Succeed())

		ex = executor.New(store, nil, nil, nil)
		_, err := ex.Call(context.Background(), "a", map[string]any{}, nil)
		Expect(err).To(HaveOccurred())
		Expect(core.CodeOf(err)).To(Equal(core.CodeCircularCall))

		apcoreErr, ok := err.(*core.Error)
		Expect(ok).To(BeTrue())
		Expect(apcoreErr.Details["cycle"]).To(Equal([]string{"a", "b", "a"}))
	})
})

var _ = Describe("ACL deny", func() {
	It("denies a public caller reaching an admin.* target", func() {
		store := registry.New()
		adminDelete := &core.Module{
			ID:          "admin.delete",
			InputSchema: objectSchema(nil),
			Handler: core.HandlerFunc(func(_ context.Context, _ *core.Context, _ map[string]any) (map[string]any, error) {
				return map[string]any{}, nil
			}),
		}
		Expect(store.Register(adminDelete, nil)).To(Succeed())

		engine := acl.New(acl.Deny, []*acl.Rule{
			{Callers: []string{"public.*"}, Targets: []string{"admin.*"}, Effect: acl.Deny},
			{Callers: []string{"*"}, Targets: []string{"*"}, Effect: acl.Allow},
		})

		ex := executor.New(store, nil, engine, nil)

		root := core.NewRootContext(context.Background(), core.Identity{})
		parent := root.Derive(context.Background(), "public.x")

		_, err := ex.Call(context.Background(), "admin.delete", map[string]any{}, parent)
		Expect(err).To(HaveOccurred())
		Expect(core.CodeOf(err)).To(Equal(core.CodeACLDenied))

		apcoreErr := err.(*core.Error)
		Expect(apcoreErr.Details["caller_id"]).To(Equal("public.x"))
		Expect(apcoreErr.Details["module_id"]).To(Equal("admin.delete"))
	})
})

var _ = Describe("Validation redaction", func() {
	It("redacts x-sensitive fields in the recorded context without touching the handler's view", func() {
		var sawInHandler map[string]any
		var redactedSeenByContext map[string]any

		store := registry.New()
		secretIntake := &core.Module{
			ID: "secret.intake",
			InputSchema: objectSchema(map[string]any{
				"password": map[string]any{"type": "string", "x-sensitive": true},
				"username": map[string]any{"type": "string"},
			}, "password", "username"),
			OutputSchema: objectSchema(nil),
			Handler: core.HandlerFunc(func(_ context.Context, callCtx *core.Context, in map[string]any) (map[string]any, error) {
				sawInHandler = in
				redactedSeenByContext = callCtx.RedactedInputs
				return map[string]any{}, nil
			}),
		}
		Expect(store.Register(secretIntake, nil)).To(Succeed())

		ex := executor.New(store, nil, nil, nil)
		_, err := ex.Call(context.Background(), "secret.intake", map[string]any{"password": "p@ss", "username": "u"}, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(sawInHandler).To(Equal(map[string]any{"password": "p@ss", "username": "u"}))
		Expect(redactedSeenByContext["password"]).To(Equal(executor.RedactedPlaceholder))
		Expect(redactedSeenByContext["username"]).To(Equal("u"))
	})
})

var _ = Describe("Middleware recovery", func() {
	It("lets an on_error hook supply a fallback output when the handler raises", func() {
		store := registry.New()
		flaky := &core.Module{
			ID:           "flaky.op",
			InputSchema:  objectSchema(nil),
			OutputSchema: objectSchema(map[string]any{"result": map[string]any{"type": "string"}}, "result"),
			Handler: core.HandlerFunc(func(_ context.Context, _ *core.Context, _ map[string]any) (map[string]any, error) {
				return nil, core.NewError(core.CodeModuleLoad, "flaky.op always raises for this scenario")
			}),
		}
		Expect(store.Register(flaky, nil)).To(Succeed())

		mgr := middleware.NewManager()
		mgr.Add(&fallbackMiddleware{})

		ex := executor.New(store, mgr, nil, nil)
		out, err := ex.Call(context.Background(), "flaky.op", map[string]any{}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(map[string]any{"result": "fallback"}))
	})
})

// fallbackMiddleware recovers from any handler error by supplying a
// fixed fallback output, exercising the Middleware Manager's
// ExecuteOnError path through a real executor.Call rather than a
// package-internal unit test.
type fallbackMiddleware struct {
	middleware.Base
}

func (*fallbackMiddleware) OnError(string, map[string]any, error, *core.Context) (map[string]any, error) {
	return map[string]any{"result": "fallback"}, nil
}
