// Package sqlite provides dependency boundary tests for the sqlite store.
package sqlite

import (
	"go/build"
	"strings"
	"testing"
)

var allowedModuleImports = map[string]struct{}{
	"stockcore/pkg/domain":                       {},
	"stockcore/internal/infra/persistence/memory": {},
	"stockcore/internal/entitymodel/sqlbundle":    {},
}

func TestImportsAreDomainOrInfra(t *testing.T) {
	pkg, err := build.Default.ImportDir(".", 0)
	if err != nil {
		t.Fatalf("import dir: %v", err)
	}
	for _, imp := range pkg.Imports {
		if !strings.HasPrefix(imp, "stockcore/") {
			continue
		}
		if _, ok := allowedModuleImports[imp]; ok {
			continue
		}
		t.Fatalf("unexpected dependency: %s", imp)
	}
}
