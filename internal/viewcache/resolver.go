package viewcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/netsharklabs/netshark-go/internal/logger"
	"github.com/netsharklabs/netshark-go/internal/shark"
)

// Resolver implements the find-or-create protocol for persistent views on
// top of a Store.
type Resolver struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewResolver wraps a store.
func NewResolver(store Store) *Resolver {
	return &Resolver{
		store: store,
		log:   logger.L().With().Str("component", "viewcache").Logger(),
		now:   time.Now,
	}
}

// FindOrCreate returns the open view titled title on the appliance,
// attaching through the cache when possible. A stale cached handle purges
// every entry for the appliance and resyncs from the server's open-view
// list; this tolerates appliance restarts without surfacing the miss. Only
// when no titled view matches does build run; the new view's title is then
// registered eagerly so the next lookup hits.
func (r *Resolver) FindOrCreate(ctx context.Context, ns *shark.NetShark, title string, build func(context.Context) (*shark.View, error)) (*shark.View, error) {
	host := ns.Host()

	entry, ok, err := r.store.Lookup(host, title)
	if err != nil {
		return nil, err
	}
	if ok {
		view, err := ns.GetOpenViewByHandle(ctx, entry.Handle)
		if err == nil {
			if err := r.store.Touch(host, title, r.now()); err != nil {
				return nil, err
			}
			r.log.Debug().Str("host", host).Str("title", title).Str("handle", entry.Handle).Msg("view cache hit")
			return view, nil
		}
		var nf *shark.ResourceNotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
		// The cached handle no longer resolves: the appliance restarted or
		// the view was closed behind our back. The whole host cache is
		// suspect, not just this title.
		r.log.Info().Str("host", host).Str("title", title).Str("handle", entry.Handle).
			Msg("stale view handle, resyncing cache for appliance")
		if err := r.store.DeleteHost(host); err != nil {
			return nil, err
		}
	}

	match, err := r.resync(ctx, ns, title)
	if err != nil {
		return nil, err
	}
	if match != nil {
		return match, nil
	}

	view, err := build(ctx)
	if err != nil {
		return nil, err
	}
	if view.Title() != "" {
		if err := r.store.Save(Entry{Host: host, Title: view.Title(), Handle: view.Handle(), LastUsed: r.now()}); err != nil {
			return nil, fmt.Errorf("register view %s: %w", view.Handle(), err)
		}
	}
	return view, nil
}

// resync reloads the cache from the appliance's open-view list and returns
// the view whose title matches, if any.
func (r *Resolver) resync(ctx context.Context, ns *shark.NetShark, title string) (*shark.View, error) {
	views, err := ns.GetOpenViews(ctx)
	if err != nil {
		return nil, err
	}

	var match *shark.View
	for _, v := range views {
		if v.Title() == "" {
			continue
		}
		err := r.store.Save(Entry{Host: ns.Host(), Title: v.Title(), Handle: v.Handle(), LastUsed: r.now()})
		if err != nil {
			return nil, err
		}
		if v.Title() == title {
			match = v
		}
	}
	return match, nil
}
