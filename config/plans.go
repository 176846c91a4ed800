package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Plan describes one subscription tier and its monthly credit allotment.
type Plan struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	PriceMonthly float64  `json:"priceMonthly"`
	Credits      int      `json:"credits"`
	Features     []string `json:"features,omitempty"`
}

// defaultPlans is used when no catalog file is present.
var defaultPlans = []Plan{
	{ID: "free", Name: "Free", PriceMonthly: 0, Credits: 3,
		Features: []string{"Basic stem separation", "3 credits per month"}},
	{ID: "basic", Name: "Basic", PriceMonthly: 9.99, Credits: 10,
		Features: []string{"High quality separation", "10 credits per month", "WAV download"}},
	{ID: "pro", Name: "Pro", PriceMonthly: 19.99, Credits: 30,
		Features: []string{"Premium quality separation", "30 credits per month", "Priority processing"}},
}

// PlanCatalog holds the current set of plans. Reads and reloads may race,
// so access goes through the mutex.
type PlanCatalog struct {
	mu    sync.RWMutex
	plans []Plan
}

// NewPlanCatalog loads the catalog from path, falling back to the built-in
// defaults when the file is missing or unreadable.
func NewPlanCatalog(path string) *PlanCatalog {
	c := &PlanCatalog{plans: defaultPlans}
	if path != "" {
		if err := c.LoadFile(path); err != nil {
			// Defaults stay in place; the watcher may pick the file up later.
			fmt.Fprintf(os.Stderr, "plan catalog: %v, using defaults\n", err)
		}
	}
	return c
}

// LoadFile replaces the catalog with the contents of the given JSON file.
func (c *PlanCatalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read plan catalog %s: %w", path, err)
	}
	var plans []Plan
	if err := json.Unmarshal(data, &plans); err != nil {
		return fmt.Errorf("failed to parse plan catalog %s: %w", path, err)
	}
	if len(plans) == 0 {
		return fmt.Errorf("plan catalog %s is empty", path)
	}
	c.mu.Lock()
	c.plans = plans
	c.mu.Unlock()
	return nil
}

// Plans returns a copy of the current plan list.
func (c *PlanCatalog) Plans() []Plan {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// Plan looks up a plan by ID. The Free plan is the fallback for unknown IDs
// so a stale identity snapshot never leaves a user without an allotment.
func (c *PlanCatalog) Plan(id string) Plan {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.plans {
		if p.ID == id {
			return p
		}
	}
	return c.plans[0]
}

// Watch reloads the catalog whenever the file changes. It blocks until the
// done channel is closed, so callers run it in a goroutine.
func (c *PlanCatalog) Watch(path string, done <-chan struct{}, onReload func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create plan catalog watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch plan catalog %s: %w", path, err)
	}

	for {
		select {
		case event := <-watcher.Events:
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				err := c.LoadFile(path)
				if onReload != nil {
					onReload(err)
				}
			}
		case <-watcher.Errors:
			// Watch errors are transient; keep the last good catalog.
		case <-done:
			return nil
		}
	}
}
