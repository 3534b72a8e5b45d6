package sessioncache

import (
	"maps"
	"slices"
	"sync"
)

// Store persists course caches.
type Store interface {
	// Load returns the cache for course. ok is false when none is saved.
	Load(course string) (c CourseSessionCache, ok bool, err error)
	Save(c CourseSessionCache) error
	Delete(course string) error
	Courses() []string
	Close() error
}

// Memory is an in-process Store.
//
// Thread-safety: Memory is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	courses map[string]CourseSessionCache
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{courses: make(map[string]CourseSessionCache)}
}

// Load returns a copy of the cache saved for course.
func (m *Memory) Load(course string) (CourseSessionCache, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[course]
	if !ok {
		return CourseSessionCache{}, false, nil
	}
	return c.Clone(), true, nil
}

// Save stores a copy of c, replacing any earlier cache of its course.
func (m *Memory) Save(c CourseSessionCache) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[c.Course] = c.Clone()
	return nil
}

// Delete forgets course. Deleting an unknown course is not an error.
func (m *Memory) Delete(course string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.courses, course)
	return nil
}

// Courses returns the saved courses, sorted.
func (m *Memory) Courses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.courses))
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
