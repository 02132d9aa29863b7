package core

import (
	"fmt"
	"maps"

	"vorpal/internal/ports"
	"vorpal/internal/shared"
	"vorpal/internal/types"
)

// DependencyBindings maps each dependency's binding name to its store
// directory, e.g. {"gmp": "<root>/gmp-abc"}.
func DependencyBindings(store ports.StorePort, deps []types.PackageOutput) map[string]string {
	bindings := make(map[string]string, len(deps))
	for _, dep := range deps {
		bindings[shared.BindingName(dep.Name)] = store.OutputDir(dep)
	}
	return bindings
}

// BuildEnvironment merges the declared environment with the dependency
// bindings. A declared key may not shadow a binding or the reserved
// output variable.
func BuildEnvironment(store ports.StorePort, pkg types.Package) (map[string]string, error) {
	build := pkg.Build()
	env := maps.Clone(build.Environment)
	if _, ok := env[types.OutputBinding]; ok {
		return nil, shared.Fail(shared.KindInvalidPackage, shared.StageConfig,
			fmt.Sprintf("package %s: environment may not set reserved variable %s", pkg.Name(), types.OutputBinding), nil)
	}
	for key, value := range DependencyBindings(store, build.Dependencies) {
		if _, ok := env[key]; ok {
			return nil, shared.Fail(shared.KindInvalidPackage, shared.StageConfig,
				fmt.Sprintf("package %s: environment key %s shadows a dependency binding", pkg.Name(), key), nil)
		}
		env[key] = value
	}
	return env, nil
}
