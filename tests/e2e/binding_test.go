package e2e

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/edgecomet/apcore/binding"
	"github.com/edgecomet/apcore/core"
	"github.com/edgecomet/apcore/executor"
	"github.com/edgecomet/apcore/registry"
)

type upperInput struct {
	Text string `json:"text"`
}

type upperOutput struct {
	Text string `json:"text"`
}

func upper(in upperInput) (upperOutput, error) {
	out := make([]rune, len(in.Text))
	for i, r := range in.Text {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		out[i] = r
	}
	return upperOutput{Text: string(out)}, nil
}

var _ = Describe("Function binding end to end", func() {
	It("runs a reflected Go function as a module through a YAML manifest", func() {
		dir := GinkgoT().TempDir()
		manifestPath := filepath.Join(dir, "bindings.yaml")
		writeDiscoveryFile(manifestPath, `
bindings:
  - module_id: text.upper
    target: "text:Upper"
    auto_schema: true
`)

		sourceRegistry := registry.NewSourceRegistry()
		sourceRegistry.RegisterSource("text:Upper", func() *registry.ModuleSource {
			return binding.MustSourceFromFunc(upper, binding.Options{Description: "uppercases the given text"})
		})

		store := registry.New()
		report, err := binding.LoadBindings(manifestPath, sourceRegistry, store)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Registered).To(Equal(1))
		Expect(report.Warnings).To(BeEmpty())

		ex := executor.New(store, nil, nil, nil)
		out, err := ex.Call(context.Background(), "text.upper", map[string]any{"text": "hi there"}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(map[string]any{"text": "HI THERE"}))
	})

	It("rejects a schema violation before the handler runs", func() {
		mod, err := binding.MakeFunctionModule(upper, binding.Options{ModuleID: "text.upper2"})
		Expect(err).NotTo(HaveOccurred())

		store := registry.New()
		Expect(store.Register(mod, nil)).To(Succeed())
		ex := executor.New(store, nil, nil, nil)

		_, err = ex.Call(context.Background(), "text.upper2", map[string]any{"text": 5}, nil)
		Expect(err).To(HaveOccurred())
		Expect(core.CodeOf(err)).To(Equal(core.CodeSchemaValidation))
	})
})
