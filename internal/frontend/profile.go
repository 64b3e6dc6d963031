package frontend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/coolnight20187/python-7ty-system/internal/fetch"
	"github.com/coolnight20187/python-7ty-system/internal/notify"
	"github.com/coolnight20187/python-7ty-system/internal/queue"
	"github.com/coolnight20187/python-7ty-system/internal/syncer"
)

// AllTag drains every category of a front-end.
const AllTag = "background-sync"

// Category declares one kind of pending mutation: where it is replayed and
// what the user is told once the server accepts it.
type Category struct {
	Name   string
	Method string
	// Path is templated with {id} and payload fields. Empty with Stored set.
	Path string
	Body syncer.BodyBuilder
	// Stored replays the request recorded in the payload instead of Path.
	Stored bool
	// Tag is the trigger tag draining only this category.
	Tag string
	// Message is the bridge message type draining only this category.
	Message string
	// PayloadSchema is an optional JSON schema checked at enqueue.
	PayloadSchema string
	Success       notify.CopyBuilder
}

// Profile is everything that differs between the agent, customer and staff workers.
type Profile struct {
	Name         string
	CacheVersion string
	Assets       []string
	OfflinePages []string
	// SkipWaitingOnInstall activates a freshly installed version immediately.
	SkipWaitingOnInstall bool
	QueueVersion         int
	Categories           []Category
	Notify               notify.Policy
}

var profiles = map[string]func() Profile{
	"agent":    agentProfile,
	"customer": customerProfile,
	"staff":    staffProfile,
}

// Lookup returns the profile of a front-end.
func Lookup(name string) (Profile, error) {
	build, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown front-end %q", name)
	}
	return build(), nil
}

// Names lists the known front-ends.
func Names() []string {
	out := make([]string, 0, len(profiles))
	for n := range profiles {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// DatabaseName is the queue database of the front-end.
func (p Profile) DatabaseName() string {
	return "ty7-" + p.Name + "-db"
}

// QueueSchema declares one container per category.
func (p Profile) QueueSchema() queue.Schema {
	s := queue.Schema{Name: p.DatabaseName(), Version: p.QueueVersion, PayloadSchemas: map[string]string{}}
	for _, c := range p.Categories {
		s.Categories = append(s.Categories, c.Name)
		if c.PayloadSchema != "" {
			s.PayloadSchemas[c.Name] = c.PayloadSchema
		}
	}
	return s
}

// SyncCategories binds every category to an HTTP handler on origin.
func (p Profile) SyncCategories(origin string, fetcher fetch.Fetcher) ([]syncer.Category, error) {
	out := make([]syncer.Category, 0, len(p.Categories))
	for _, c := range p.Categories {
		build := syncer.StoredRequest(origin)
		if !c.Stored {
			method := c.Method
			if method == "" {
				method = http.MethodPost
			}
			build = syncer.Endpoint(origin, method, c.Path, c.Body)
		}
		h, err := syncer.NewHTTPHandler(fetcher, build)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", c.Name, err)
		}
		out = append(out, syncer.Category{Name: c.Name, Handler: h})
	}
	return out, nil
}

// SyncOptions maps the front-end's trigger tags onto categories.
func (p Profile) SyncOptions() syncer.Options {
	tags := map[string]string{}
	for _, c := range p.Categories {
		if c.Tag != "" {
			tags[c.Tag] = c.Name
		}
	}
	return syncer.Options{AllTag: AllTag, Tags: tags}
}

// MessageTypes maps SYNC_* bridge messages onto categories.
func (p Profile) MessageTypes() map[string]string {
	out := map[string]string{}
	for _, c := range p.Categories {
		if c.Message != "" {
			out[c.Message] = c.Name
		}
	}
	return out
}

// NotifyPolicy is the notification table with the success copy of every category.
func (p Profile) NotifyPolicy() notify.Policy {
	policy := p.Notify
	policy.Success = map[string]notify.CopyBuilder{}
	for _, c := range p.Categories {
		if c.Success != nil {
			policy.Success[c.Name] = c.Success
		}
	}
	return policy
}

func decodeDetail(detail json.RawMessage, dst any) error {
	if len(detail) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(detail))
	dec.UseNumber()
	return dec.Decode(dst)
}
