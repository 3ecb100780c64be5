package store_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/steveyegge/livedoc/internal/store"
)

func ExampleFileStore() {
	dir, _ := os.MkdirTemp("", "livedoc-example")
	defer os.RemoveAll(dir)

	s, err := store.NewFileStore(filepath.Join(dir, "document.json"))
	if err != nil {
		fmt.Println(err)
		return
	}

	ctx := context.Background()
	_ = s.Save(ctx, "hello")
	content, _ := s.Load(ctx)
	fmt.Println(content)
	// Output: hello
}
