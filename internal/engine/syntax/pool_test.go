package syntax

import (
	"sync"
	"testing"
)

func TestParserPool_GetPut(t *testing.T) {
	pool := NewParserPool(Rust())

	sp := pool.Get()
	if sp == nil {
		t.Fatal("expected non-nil parser from pool")
	}
	pool.Put(sp)

	again := pool.Get()
	defer pool.Put(again)
	tree := again.Parse([]byte("fn f() {}\n"), nil)
	if tree == nil {
		t.Fatal("expected recycled parser to parse")
	}
	defer tree.Close()
	if tree.RootNode().HasError() {
		t.Fatal("expected error-free parse from recycled parser")
	}
}

func TestParserPool_PutNil(t *testing.T) {
	pool := NewParserPool(Rust())
	pool.Put(nil)
}

func TestParserPool_ParsesValidRust(t *testing.T) {
	pool := NewParserPool(Rust())

	tree := pool.Parse([]byte("fn main() { let v = vec![1, 2]; }\n"))
	if tree == nil {
		t.Fatal("expected non-nil parse tree")
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.Kind() != "source_file" || root.HasError() {
		t.Fatalf("expected error-free source_file, got %s hasError=%v", root.Kind(), root.HasError())
	}
}

func TestParserPool_ConcurrentAccess(t *testing.T) {
	pool := SharedPool()

	const goroutines = 16
	const iters = 20

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < iters; i++ {
				tree := pool.Parse([]byte("struct S { a: u8 }\n"))
				if tree == nil {
					t.Error("nil tree")
					return
				}
				tree.Close()
			}
		}()
	}
	wg.Wait()
}
