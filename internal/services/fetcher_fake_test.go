package services

import (
	"context"
	"strings"
	"sync"
)

// fakeFetcher serves canned pages by exact URL and records every request
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func newFakeFetcher(pages map[string]string) *fakeFetcher {
	if pages == nil {
		pages = make(map[string]string)
	}
	return &fakeFetcher{pages: pages}
}

func (f *fakeFetcher) Fetch(_ context.Context, pageURL string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pageURL)
	return f.pages[pageURL]
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeFetcher) CalledContaining(substr string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

type fakeImageChecker struct {
	exists bool
	probed []string
}

func (c *fakeImageChecker) Exists(_ context.Context, imageURL string) bool {
	c.probed = append(c.probed, imageURL)
	return c.exists
}
