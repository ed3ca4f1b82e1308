package stdindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "modernity/internal/core/errors"
)

const stdSrc = `
#![stable(feature = "rust1", since = "1.0.0")]
extern crate alloc as alloc_crate;

#[stable(feature = "rust1", since = "1.0.0")]
pub mod prelude {
    #[stable(feature = "rust1", since = "1.0.0")]
    pub mod v1 {
        #[stable(feature = "rust1", since = "1.0.0")]
        pub use crate::vec::Vec;
        #[stable(feature = "rust1", since = "1.0.0")]
        pub use core::option::Option::{self, Some, None};
    }
}

#[stable(feature = "rust1", since = "1.0.0")]
pub mod vec {
    pub use alloc_crate::vec::*;
}

#[stable(feature = "rust1", since = "1.0.0")]
pub mod collections {
    #[stable(feature = "rust1", since = "1.0.0")]
    pub mod hash_map {
        #[stable(feature = "rust1", since = "1.0.0")]
        pub struct HashMap<K, V> { k: K, v: V }

        impl<K, V> HashMap<K, V> {
            #[stable(feature = "try_reserve", since = "1.57.0")]
            pub fn try_reserve(&mut self, n: usize) {}
            pub fn unstable_thing(&self) {}
        }
    }
    #[stable(feature = "rust1", since = "1.0.0")]
    pub use self::hash_map::HashMap;
}

#[stable(feature = "thread_scope", since = "1.63.0")]
pub fn scope() {}

#[macro_export]
#[stable(feature = "rust1", since = "1.0.0")]
macro_rules! println {
    ($($arg:tt)*) => {};
}
`

const coreSrc = `
#[stable(feature = "rust1", since = "1.0.0")]
pub mod option {
    #[stable(feature = "rust1", since = "1.0.0")]
    pub enum Option<T> {
        #[stable(feature = "rust1", since = "1.0.0")]
        None,
        #[stable(feature = "rust1", since = "1.0.0")]
        Some(T),
    }

    impl<T> Option<T> {
        #[stable(feature = "option_zip", since = "1.46.0")]
        pub fn zip(self) {}
        #[stable(feature = "is_some_and", since = "1.70.0")]
        pub fn is_some_and(self) -> bool { true }
    }
}

#[stable(feature = "rust1", since = "1.0.0")]
pub mod iter {
    #[stable(feature = "rust1", since = "1.0.0")]
    pub trait Iterator {
        #[stable(feature = "iter_map_while", since = "1.57.0")]
        fn map_while(self);
    }
}

#[macro_export]
#[stable(feature = "matches_macro", since = "1.42.0")]
macro_rules! matches {
    ($e:expr) => {};
}
`

const allocSrc = `
#[stable(feature = "rust1", since = "1.0.0")]
pub mod vec {
    #[stable(feature = "rust1", since = "1.0.0")]
    pub struct Vec<T> { t: T }

    impl<T> Vec<T> {
        #[stable(feature = "rust1", since = "1.0.0")]
        pub const fn new() -> Self { loop {} }
        #[stable(feature = "vec_leak", since = "1.47.0")]
        pub fn leak(self) {}
    }
}
`

func buildTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := Build(map[string][]byte{
		"std":   []byte(stdSrc),
		"core":  []byte(coreSrc),
		"alloc": []byte(allocSrc),
	})
	require.NoError(t, err)
	return ix
}

func TestResolve(t *testing.T) {
	ix := buildTestIndex(t)

	tests := []struct {
		path  string
		since string
		ok    bool
	}{
		{"std::thread_scope_missing", "", false},
		{"std::scope", "1.63.0", true},
		{"std::collections::hash_map::HashMap::try_reserve", "1.57.0", true},
		{"std::collections::HashMap::try_reserve", "1.57.0", true},
		{"std::collections::hash_map::HashMap::unstable_thing", "", false},
		{"core::option::Option::zip", "1.46.0", true},
		{"Option::is_some_and", "1.70.0", true},
		{"Some", "1.0.0", true},
		{"Vec::leak", "1.47.0", true},
		{"std::vec::Vec::leak", "1.47.0", true},
		{"core::iter::Iterator::map_while", "1.57.0", true},
		{"matches!", "1.42.0", true},
		{"println!", "1.0.0", true},
		{"core::matches!", "1.42.0", true},
		{"serde::Serialize", "", false},
		{"my_local_thing", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			def, ok := ix.Resolve(tt.path)
			require.Equal(t, tt.ok, ok, "resolve %q -> %+v", tt.path, def)
			if tt.ok {
				assert.Equal(t, tt.since, def.Since)
				assert.Equal(t, Minor(tt.since), def.Minor)
			}
		})
	}
}

func TestResolve_AliasCycleTerminates(t *testing.T) {
	ix, err := Build(map[string][]byte{
		"std": []byte(`
#[stable(feature = "rust1", since = "1.0.0")]
pub mod a { pub use crate::b::*; }
#[stable(feature = "rust1", since = "1.0.0")]
pub mod b { pub use crate::a::*; pub use crate::a::Thing; }
`),
		"core":  []byte("#[stable(feature = \"x\", since = \"1.0.0\")]\npub fn f() {}\n"),
		"alloc": []byte("#[stable(feature = \"x\", since = \"1.0.0\")]\npub fn g() {}\n"),
	})
	require.NoError(t, err)

	_, ok := ix.Resolve("std::a::Thing::method")
	assert.False(t, ok)
}

func TestMinor(t *testing.T) {
	assert.Equal(t, 36, Minor("1.36.0"))
	assert.Equal(t, 0, Minor("1.0"))
	assert.Equal(t, -1, Minor("CURRENT_RUSTC_VERSION"))
	assert.Equal(t, -1, Minor("1"))
}

func writeArtifacts(t *testing.T, dir string) Paths {
	t.Helper()
	paths := Paths{
		Std:   filepath.Join(dir, "expanded-std.rs"),
		Core:  filepath.Join(dir, "expanded-core.rs"),
		Alloc: filepath.Join(dir, "expanded-alloc.rs"),
	}
	require.NoError(t, os.WriteFile(paths.Std, []byte(stdSrc), 0o644))
	require.NoError(t, os.WriteFile(paths.Core, []byte(coreSrc), 0o644))
	require.NoError(t, os.WriteFile(paths.Alloc, []byte(allocSrc), 0o644))
	return paths
}

func TestLoad_MissingFile(t *testing.T) {
	dir := t.TempDir()
	paths := writeArtifacts(t, dir)
	require.NoError(t, os.Remove(paths.Core))

	_, err := Load(paths, Options{})
	require.Error(t, err)
	assert.True(t, domainErrors.IsCode(err, domainErrors.CodeMissingExpansionFile), "got %v", err)
}

func TestLoad_Malformed(t *testing.T) {
	dir := t.TempDir()
	paths := writeArtifacts(t, dir)
	require.NoError(t, os.WriteFile(paths.Alloc, []byte("}}}} fn ( {{ ]] struct\n"), 0o644))

	_, err := Load(paths, Options{})
	require.Error(t, err)
	assert.True(t, domainErrors.IsCode(err, domainErrors.CodeMalformedExpansion), "got %v", err)
}

func TestLoad_Cache(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")
	paths := writeArtifacts(t, dir)

	first, err := Load(paths, Options{CacheDir: cacheDir})
	require.NoError(t, err)

	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	second, err := Load(paths, Options{CacheDir: cacheDir})
	require.NoError(t, err)
	assert.Equal(t, first.Size(), second.Size())

	for _, path := range []string{"Vec::leak", "std::collections::HashMap::try_reserve", "matches!"} {
		a, okA := first.Resolve(path)
		b, okB := second.Resolve(path)
		assert.Equal(t, okA, okB, path)
		assert.Equal(t, a, b, path)
	}

	// A changed artifact invalidates the cached entry.
	require.NoError(t, os.WriteFile(paths.Core, []byte(coreSrc+"\n#[stable(feature = \"y\", since = \"1.80.0\")]\npub fn newer() {}\n"), 0o644))
	third, err := Load(paths, Options{CacheDir: cacheDir})
	require.NoError(t, err)
	def, ok := third.Resolve("core::newer")
	require.True(t, ok)
	assert.Equal(t, 80, def.Minor)
}
