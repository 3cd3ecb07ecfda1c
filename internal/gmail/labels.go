package gmail

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	gm "google.golang.org/api/gmail/v1"
)

// labelResolver maps label names to ids, creating missing labels. Lookups
// are serialized so concurrent messages never create the same label twice.
type labelResolver struct {
	svc     *gm.Service
	cache   LabelCache
	account string
	logger  *zap.Logger

	mu    sync.Mutex
	known map[string]string // lower-case name -> id
}

func newLabelResolver(svc *gm.Service, cache LabelCache, logger *zap.Logger) *labelResolver {
	return &labelResolver{
		svc:    svc,
		cache:  cache,
		logger: logger,
		known:  make(map[string]string),
	}
}

// resolve returns the label id and whether it came from the persistent cache.
func (r *labelResolver) resolve(ctx context.Context, name string) (string, bool, error) {
	key := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.known[key]; ok {
		return id, false, nil
	}

	if r.cache != nil {
		id, ok, err := r.cache.LabelID(Backend, r.account, name)
		if err != nil {
			r.logger.Warn("Label cache lookup failed", zap.String("label", name), zap.Error(err))
		} else if ok {
			r.known[key] = id
			return id, true, nil
		}
	}

	resp, err := r.svc.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return "", false, fmt.Errorf("list labels: %w", err)
	}
	var id string
	for _, l := range resp.Labels {
		lk := strings.ToLower(l.Name)
		if _, seen := r.known[lk]; !seen {
			r.known[lk] = l.Id
		}
		if id == "" && lk == key {
			id = l.Id
		}
	}

	if id == "" {
		created, err := r.svc.Users.Labels.Create("me", &gm.Label{
			Name:                  name,
			LabelListVisibility:   "labelShow",
			MessageListVisibility: "show",
		}).Context(ctx).Do()
		if err != nil {
			return "", false, fmt.Errorf("create label %q: %w", name, err)
		}
		id = created.Id
		r.known[key] = id
		r.logger.Info("Created label", zap.String("label", name), zap.String("label_id", id))
	}

	if r.cache != nil {
		if err := r.cache.PutLabel(Backend, r.account, name, id); err != nil {
			r.logger.Warn("Label cache update failed", zap.String("label", name), zap.Error(err))
		}
	}
	return id, false, nil
}

// forget drops a label id from memory and the persistent cache.
func (r *labelResolver) forget(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.known, strings.ToLower(name))
	if r.cache != nil {
		if err := r.cache.DeleteLabel(Backend, r.account, name); err != nil {
			r.logger.Warn("Label cache delete failed", zap.String("label", name), zap.Error(err))
		}
	}
}
