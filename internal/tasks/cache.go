package tasks

import (
	"sync"

	"tasktracker/internal/model"
)

// Cache is the ordered task list of the current session. Order is whatever the
// server returned last.
type Cache struct {
	mu    sync.RWMutex
	tasks []model.Task
}

func NewCache() *Cache {
	return &Cache{}
}

func (c *Cache) Replace(tasks []model.Task) {
	next := make([]model.Task, len(tasks))
	copy(next, tasks)
	c.mu.Lock()
	c.tasks = next
	c.mu.Unlock()
}

func (c *Cache) Snapshot() []model.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Task, len(c.tasks))
	copy(out, c.tasks)
	return out
}

func (c *Cache) Get(id int64) (model.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.index(id); i >= 0 {
		return c.tasks[i], true
	}
	return model.Task{}, false
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tasks)
}

// SetDone writes the completion flag of task id and reports its previous value.
// found is false when the id is not cached.
func (c *Cache) SetDone(id int64, done bool) (prior bool, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.index(id)
	if i < 0 {
		return false, false
	}
	prior = bool(c.tasks[i].MarkAsDone)
	c.tasks[i].MarkAsDone = model.Flag(done)
	return prior, true
}

// Put replaces the entry with the same id in place.
func (c *Cache) Put(task model.Task) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.index(task.ID)
	if i < 0 {
		return false
	}
	c.tasks[i] = task
	return true
}

func (c *Cache) Reset() {
	c.mu.Lock()
	c.tasks = nil
	c.mu.Unlock()
}

func (c *Cache) index(id int64) int {
	for i := range c.tasks {
		if c.tasks[i].ID == id {
			return i
		}
	}
	return -1
}
