package crawler

import "github.com/crawlingchimp/crawlingchimp/internal/model"

// frontier is the FIFO queue of targets awaiting a fetch. FIFO order keeps
// the traversal breadth-first, so dequeued depths never decrease.
type frontier struct {
	items []model.CrawlTarget
	head  int
}

func (f *frontier) push(t model.CrawlTarget) {
	f.items = append(f.items, t)
}

func (f *frontier) pop() (model.CrawlTarget, bool) {
	if f.head >= len(f.items) {
		return model.CrawlTarget{}, false
	}
	t := f.items[f.head]
	f.items[f.head] = model.CrawlTarget{}
	f.head++

	// Reclaim the consumed prefix once it dominates the slice.
	if f.head > 64 && f.head*2 > len(f.items) {
		f.items = append([]model.CrawlTarget(nil), f.items[f.head:]...)
		f.head = 0
	}
	return t, true
}

func (f *frontier) len() int {
	return len(f.items) - f.head
}

// visitedSet holds the URLs that were fetched or enqueued, in the order
// they were first seen. Membership uses the normalized key; the URL first
// seen for a key is the one reported.
type visitedSet struct {
	seen  map[string]struct{}
	order []visitedURL
}

type visitedURL struct {
	key string
	url string
}

func newVisitedSet() *visitedSet {
	return &visitedSet{seen: make(map[string]struct{})}
}

// add inserts u under key and reports whether key was new.
func (v *visitedSet) add(key, u string) bool {
	if _, ok := v.seen[key]; ok {
		return false
	}
	v.seen[key] = struct{}{}
	v.order = append(v.order, visitedURL{key: key, url: u})
	return true
}

func (v *visitedSet) contains(key string) bool {
	_, ok := v.seen[key]
	return ok
}

func (v *visitedSet) len() int {
	return len(v.order)
}

// list returns the URLs in insertion order, skipping those whose key is in
// exclude.
func (v *visitedSet) list(exclude map[string]struct{}) []string {
	out := make([]string, 0, len(v.order))
	for _, e := range v.order {
		if _, skip := exclude[e.key]; skip {
			continue
		}
		out = append(out, e.url)
	}
	return out
}
