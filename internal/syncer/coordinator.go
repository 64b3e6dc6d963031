package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/coolnight20187/python-7ty-system/internal/logger"
	"github.com/coolnight20187/python-7ty-system/internal/notify"
	"github.com/coolnight20187/python-7ty-system/internal/queue"
)

// Store is the queue API a drain needs.
type Store interface {
	ListAll(ctx context.Context, category string) ([]queue.Entry, error)
	Remove(ctx context.Context, category, id string) error
}

// Notifier is told about every entry the server accepted.
type Notifier interface {
	Succeeded(ctx context.Context, entry queue.Entry) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, entry queue.Entry) error

func (f NotifierFunc) Succeeded(ctx context.Context, entry queue.Entry) error {
	return f(ctx, entry)
}

// DispatchNotifier shows the category's success notification, if it has one.
func DispatchNotifier(d *notify.Dispatcher) Notifier {
	return NotifierFunc(func(ctx context.Context, entry queue.Entry) error {
		req, err := d.FromSyncSuccess(entry.Category, entry.Payload)
		if err != nil || req == nil {
			return err
		}
		return d.Show(ctx, *req)
	})
}

// Category binds a queue category to the handler that replays it.
type Category struct {
	Name    string
	Handler Handler
}

type Options struct {
	// AllTag drains every category, like an empty tag.
	AllTag string
	// Tags maps extra trigger tags to category names.
	Tags map[string]string
}

// Coordinator drains queue categories on triggers.
type Coordinator struct {
	store      Store
	notifier   Notifier
	categories []Category
	byName     map[string]Category
	allTag     string
	tags       map[string]string
	// one lock per category keeps a category's entries strictly one at a time
	locks map[string]*sync.Mutex
}

func NewCoordinator(store Store, categories []Category, notifier Notifier, opts Options) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("queue store is nil")
	}
	c := &Coordinator{
		store:    store,
		notifier: notifier,
		byName:   make(map[string]Category, len(categories)),
		allTag:   opts.AllTag,
		tags:     make(map[string]string, len(opts.Tags)),
		locks:    make(map[string]*sync.Mutex, len(categories)),
	}
	for _, cat := range categories {
		if cat.Name == "" || cat.Handler == nil {
			return nil, fmt.Errorf("category %q needs a name and a handler", cat.Name)
		}
		if _, dup := c.byName[cat.Name]; dup {
			return nil, fmt.Errorf("duplicate category %q", cat.Name)
		}
		c.categories = append(c.categories, cat)
		c.byName[cat.Name] = cat
		c.locks[cat.Name] = &sync.Mutex{}
	}
	for tag, name := range opts.Tags {
		if _, ok := c.byName[name]; !ok {
			return nil, fmt.Errorf("tag %q maps to unknown category %q", tag, name)
		}
		c.tags[tag] = name
	}
	return c, nil
}

// Categories returns the category names in declaration order.
func (c *Coordinator) Categories() []string {
	names := make([]string, len(c.categories))
	for i, cat := range c.categories {
		names[i] = cat.Name
	}
	return names
}

// Resolve maps a trigger tag to the categories it drains.
func (c *Coordinator) Resolve(tag string) ([]string, error) {
	if tag == "" || tag == c.allTag {
		return c.Categories(), nil
	}
	if name, ok := c.tags[tag]; ok {
		return []string{name}, nil
	}
	if _, ok := c.byName[tag]; ok {
		return []string{tag}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
}

// Run drains what the trigger names. Categories drain concurrently and
// independently; the returned error joins the storage failures.
func (c *Coordinator) Run(ctx context.Context, trigger Trigger) ([]Report, error) {
	names, err := c.Resolve(trigger.Tag)
	if err != nil {
		return nil, err
	}
	logger.WithComponent("sync").Debugf("trigger %s tag=%q drains %v", trigger.Source, trigger.Tag, names)

	reports := make([]Report, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			reports[i] = c.Drain(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range reports {
		if r.Error != "" {
			errs = append(errs, fmt.Errorf("%s: %s", r.Category, r.Error))
		}
	}
	return reports, errors.Join(errs...)
}

// Drain replays every entry currently queued in one category, oldest first.
// A drain already running for the category finishes before this one lists.
func (c *Coordinator) Drain(ctx context.Context, name string) Report {
	report := Report{Category: name}
	cat, ok := c.byName[name]
	if !ok {
		report.Error = fmt.Sprintf("%v: %q", ErrUnknownTag, name)
		return report
	}

	lock := c.locks[name]
	lock.Lock()
	defer lock.Unlock()

	entries, err := c.store.ListAll(ctx, name)
	if err != nil {
		logger.WithComponent("sync").Errorf("list %s: %v", name, err)
		report.Error = err.Error()
		return report
	}
	if len(entries) == 0 {
		return report
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})

	for _, entry := range entries {
		report.Attempted++
		if err := cat.Handler.Submit(ctx, entry); err != nil {
			report.Failed++
			logger.WithComponent("sync").Warnf("failed to sync %s/%s: %v", name, entry.ID, err)
			continue
		}
		if err := c.store.Remove(ctx, name, entry.ID); err != nil {
			report.Failed++
			logger.WithComponent("sync").Errorf("synced %s/%s but could not remove it: %v", name, entry.ID, err)
			continue
		}
		report.Succeeded++
		logger.WithComponent("sync").Infof("synced %s/%s", name, entry.ID)

		if c.notifier != nil {
			if err := c.notifier.Succeeded(ctx, entry); err != nil {
				logger.WithComponent("sync").Warnf("notify %s/%s: %v", name, entry.ID, err)
			}
		}
	}
	return report
}
