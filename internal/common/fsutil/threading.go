package fsutil

import (
	"path/filepath"
	"sort"
	"sync"
)

// Path mutex registry. Blocks are built concurrently and may share output paths.
var (
	pathMutexes sync.Map // Maps paths to mutexes
)

// GetPathMutex returns a mutex for the given path
func GetPathMutex(path string) *sync.Mutex {
	normalizedPath := filepath.Clean(path)

	actual, _ := pathMutexes.LoadOrStore(normalizedPath, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// acquireMutexes locks several paths in sorted order to avoid deadlocks
func acquireMutexes(paths ...string) func() {
	sortedPaths := make([]string, 0, len(paths))
	for _, p := range paths {
		sortedPaths = append(sortedPaths, filepath.Clean(p))
	}
	sort.Strings(sortedPaths)

	var mutexes []*sync.Mutex
	for i, path := range sortedPaths {
		if i > 0 && path == sortedPaths[i-1] {
			continue
		}
		mu := GetPathMutex(path)
		mu.Lock()
		mutexes = append(mutexes, mu)
	}

	return func() {
		for i := len(mutexes) - 1; i >= 0; i-- {
			mutexes[i].Unlock()
		}
	}
}
