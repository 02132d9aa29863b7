package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vorpal/internal/adapters"
	"vorpal/internal/shared"
	"vorpal/internal/types"
)

func TestBuildEnvironmentBindsDependencies(t *testing.T) {
	store := adapters.NewFileStore("/store")
	pkg, err := types.NewPackageBuilder("gcc", "make", "/src/gcc").
		WithEnvironment("CFLAGS", "-O2").
		WithDependencies(
			types.PackageOutput{Name: "gmp", Hash: "abc"},
			types.PackageOutput{Name: "rust-std", Hash: "def"},
		).
		Build()
	require.NoError(t, err)

	env, err := BuildEnvironment(store, pkg)
	require.NoError(t, err)
	want := map[string]string{
		"CFLAGS":   "-O2",
		"gmp":      "/store/gmp-abc",
		"rust_std": "/store/rust-std-def",
	}
	if diff := cmp.Diff(want, env); diff != "" {
		t.Fatalf("environment mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildEnvironmentRejectsShadowing(t *testing.T) {
	store := adapters.NewFileStore("/store")

	shadow, err := types.NewPackageBuilder("gcc", "make", "/src").
		WithEnvironment("gmp", "/usr").
		WithDependencies(types.PackageOutput{Name: "gmp", Hash: "abc"}).
		Build()
	require.NoError(t, err)
	_, err = BuildEnvironment(store, shadow)
	assert.Equal(t, shared.KindInvalidPackage, shared.KindOf(err))

	reserved, err := types.NewPackageBuilder("gcc", "make", "/src").
		WithEnvironment(types.OutputBinding, "/tmp").
		Build()
	require.NoError(t, err)
	_, err = BuildEnvironment(store, reserved)
	assert.Equal(t, shared.KindInvalidPackage, shared.KindOf(err))
}

func TestBuildEnvironmentDoesNotAliasPackage(t *testing.T) {
	pkg, err := types.NewPackageBuilder("zlib", "make", "/src").WithEnvironment("A", "1").Build()
	require.NoError(t, err)

	env, err := BuildEnvironment(adapters.NewFileStore("/store"), pkg)
	require.NoError(t, err)
	env["A"] = "2"
	assert.Equal(t, "1", pkg.Build().Environment["A"])
}
