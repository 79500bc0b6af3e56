package e2e

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/edgecomet/apcore/core"
	"github.com/edgecomet/apcore/registry"
)

func writeDiscoveryFile(path, content string) {
	Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
	Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
}

func discoveryTestFactory(desc string) registry.Factory {
	return func() *registry.ModuleSource {
		return &registry.ModuleSource{
			Description:  desc,
			InputSchema:  map[string]any{"type": "object"},
			OutputSchema: map[string]any{"type": "object"},
			Handler: core.HandlerFunc(func(_ context.Context, _ *core.Context, in map[string]any) (map[string]any, error) {
				return in, nil
			}),
		}
	}
}

var _ = Describe("Topological discovery with a dependency cycle", func() {
	It("raises CIRCULAR_DEPENDENCY naming every module on the cycle", func() {
		root := GinkgoT().TempDir()

		xPath := filepath.Join(root, "mod_x.go")
		yPath := filepath.Join(root, "mod_y.go")
		zPath := filepath.Join(root, "mod_z.go")
		writeDiscoveryFile(xPath, "package mods\n")
		writeDiscoveryFile(yPath, "package mods\n")
		writeDiscoveryFile(zPath, "package mods\n")
		writeDiscoveryFile(filepath.Join(root, "mod_x_meta.yaml"), "dependencies:\n  - module_id: mod_y\n")
		writeDiscoveryFile(filepath.Join(root, "mod_y_meta.yaml"), "dependencies:\n  - module_id: mod_z\n")
		writeDiscoveryFile(filepath.Join(root, "mod_z_meta.yaml"), "dependencies:\n  - module_id: mod_x\n")

		sourceRegistry := registry.NewSourceRegistry()
		sourceRegistry.RegisterSource(xPath, discoveryTestFactory("x"))
		sourceRegistry.RegisterSource(yPath, discoveryTestFactory("y"))
		sourceRegistry.RegisterSource(zPath, discoveryTestFactory("z"))

		store := registry.New()
		_, err := registry.Discover(store, registry.Config{
			Roots:    []registry.RootSpec{{Path: root}},
			Registry: sourceRegistry,
		})

		Expect(err).To(HaveOccurred())
		Expect(core.CodeOf(err)).To(Equal(core.CodeCircularDependency))

		apcoreErr := err.(*core.Error)
		cycle, ok := apcoreErr.Details["cycle"].([]string)
		Expect(ok).To(BeTrue())
		Expect(cycle).To(ContainElements("mod_x", "mod_y", "mod_z"))
	})
})
