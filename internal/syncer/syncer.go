// Package syncer keeps the store consistent with the server.
//
// Every mutation is applied to the store at once, when it is issued, and
// comes back as a Task that performs the round trip and reconciles the
// store with the server's answer. A created group stays pending until its
// create task has bound the server-assigned number; nothing that needs the
// number runs before that.
package syncer

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gravitrone/tdome/internal/api"
	"github.com/gravitrone/tdome/internal/store"
)

// DefaultGroupName names groups created without one.
const DefaultGroupName = "New Group"

// loadConcurrency bounds parallel member fetches during Load.
const loadConcurrency = 4

var (
	// ErrEmptyName is returned when renaming a group to a blank name.
	ErrEmptyName = errors.New("group name cannot be empty")
	// ErrNoTalks is returned when adding an empty set of talks.
	ErrNoTalks = errors.New("no talks selected")
)

// Remote is the server API the syncer drives. *api.Client implements it.
type Remote interface {
	ListGroups(ctx context.Context) ([]api.Group, error)
	CreateGroup(ctx context.Context, input api.CreateGroupInput) (*api.Group, error)
	UpdateGroup(ctx context.Context, number int, input api.UpdateGroupInput) (*api.Group, error)
	DeleteGroup(ctx context.Context, number int) error
	ListGroupTalks(ctx context.Context, number int) ([]api.Talk, error)
	ListUngroupedTalks(ctx context.Context) ([]api.Talk, error)
}

var _ Remote = (*api.Client)(nil)

// Task performs the server round trip of an issued operation.
type Task func(ctx context.Context) error

// Syncer issues operations against the store and the server.
type Syncer struct {
	remote Remote
	store  *store.Store
	log    *zap.Logger
}

// New returns a syncer. A nil logger discards output.
func New(remote Remote, st *store.Store, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{remote: remote, store: st, log: log}
}

// Store returns the store the syncer reconciles into.
func (s *Syncer) Store() *store.Store {
	return s.store
}

// --- Mutations ---

// CreateGroup stages a pending group holding talks and returns its key
// with the task that creates it on the server. The talks leave the
// ungrouped pool immediately.
//
// The task binds the server's number, then loads the group's talks, then
// refreshes the ungrouped pool. If the server refuses, the pending group
// is discarded and its talks go back to the pool.
func (s *Syncer) CreateGroup(name string, talks []api.Talk) (store.Key, Task) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultGroupName
	}
	key := s.store.Stage(name, talks)
	ids := talkIDs(talks)
	log := s.log.With(zap.String("op", "create"), zap.String("group", string(key)))

	return key, func(ctx context.Context) error {
		created, err := s.remote.CreateGroup(ctx, api.CreateGroupInput{Name: name, Talks: ids})
		if err != nil {
			log.Warn("create group failed", zap.String("name", name), zap.Error(err))
			if _, rmErr := s.store.RemoveGroup(key); rmErr != nil {
				log.Debug("pending group already gone", zap.Error(rmErr))
			}
			s.refreshUngrouped(ctx, log)
			err = errors.Wrapf(err, "create group %q", name)
			return errors.WithHint(err, "the group was not created and its talks are back in the ungrouped list")
		}

		if err := s.store.Confirm(key, *created); err != nil {
			return errors.Wrapf(err, "confirm group %d", created.Number)
		}
		log.Debug("group confirmed", zap.Int("number", created.Number))

		if err := s.FetchGroupTalks(ctx, key); err != nil {
			log.Warn("load new group talks failed", zap.Int("number", created.Number), zap.Error(err))
			return err
		}
		return s.FetchUngrouped(ctx)
	}
}

// RenameGroup sets a confirmed group's name locally and returns the task
// that saves it. If saving fails the previous name comes back, unless the
// group was renamed again in the meantime.
func (s *Syncer) RenameGroup(key store.Key, name string) (Task, error) {
	g, err := s.confirmed(key)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	old, err := s.store.Rename(key, name)
	if err != nil {
		return nil, err
	}
	log := s.groupLogger("rename", g)

	return func(ctx context.Context) error {
		updated, err := s.remote.UpdateGroup(ctx, g.Number, api.UpdateGroupInput{Name: &name})
		if err != nil {
			reverted := s.store.RenameIf(key, name, old)
			log.Warn("rename group failed",
				zap.String("name", name), zap.Bool("reverted", reverted), zap.Error(err))
			return errors.Wrapf(err, "rename group %d to %q", g.Number, name)
		}
		if err := s.store.Update(key, *updated); err != nil {
			log.Debug("renamed group no longer held", zap.Error(err))
		}
		return nil
	}, nil
}

// AddTalks moves talks into a confirmed group locally, out of the pool or
// whatever group held them, and returns the task that saves the change.
// On failure the moves are undone and the pool is refreshed.
func (s *Syncer) AddTalks(key store.Key, talks []api.Talk) (Task, error) {
	g, err := s.confirmed(key)
	if err != nil {
		return nil, err
	}
	if len(talks) == 0 {
		return nil, ErrNoTalks
	}
	moves, err := s.store.Assign(key, talks)
	if err != nil {
		return nil, err
	}
	ids := talkIDs(talks)
	log := s.groupLogger("add", g)

	return func(ctx context.Context) error {
		if _, err := s.remote.UpdateGroup(ctx, g.Number, api.UpdateGroupInput{Talks: ids}); err != nil {
			s.store.Revert(key, moves)
			log.Warn("add talks failed", zap.Ints("talks", ids), zap.Error(err))
			s.refreshUngrouped(ctx, log)
			return errors.Wrapf(err, "add %d talks to group %d", len(ids), g.Number)
		}
		if err := s.FetchGroupTalks(ctx, key); err != nil {
			return err
		}
		return s.FetchUngrouped(ctx)
	}, nil
}

// RemoveGroup drops a confirmed group locally, returning its talks to the
// pool, and returns the task that deletes it on the server. If the server
// refuses, the group comes back with whichever members are still
// ungrouped. A group the server no longer has counts as deleted. Once the
// server accepts, any copy of the group a concurrent refresh brought back
// is dropped too.
func (s *Syncer) RemoveGroup(key store.Key) (Task, error) {
	g, err := s.confirmed(key)
	if err != nil {
		return nil, err
	}
	removed, err := s.store.RemoveGroup(key)
	if err != nil {
		return nil, err
	}
	log := s.groupLogger("delete", g)

	return func(ctx context.Context) error {
		err := s.remote.DeleteGroup(ctx, g.Number)
		switch {
		case err == nil:
		case api.IsNotFound(err):
			log.Debug("group already deleted on server")
		default:
			s.store.Restore(removed)
			log.Warn("delete group failed", zap.Error(err))
			s.refreshUngrouped(ctx, log)
			return errors.Wrapf(err, "delete group %d", g.Number)
		}
		if s.store.DropNumber(g.Number) {
			log.Debug("dropped group refetched while deleting")
		}
		return s.FetchUngrouped(ctx)
	}, nil
}

// --- Reads ---

// FetchGroups replaces the confirmed groups with the server's list.
func (s *Syncer) FetchGroups(ctx context.Context) error {
	groups, err := s.remote.ListGroups(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch groups")
	}
	s.store.ReplaceGroups(groups)
	return nil
}

// FetchGroupTalks replaces a group's members with the server's list. A
// pending group has no address yet, so this fails with
// store.ErrPendingGroup without contacting the server.
func (s *Syncer) FetchGroupTalks(ctx context.Context, key store.Key) error {
	g, err := s.confirmed(key)
	if err != nil {
		return err
	}
	talks, err := s.remote.ListGroupTalks(ctx, g.Number)
	if err != nil {
		return errors.Wrapf(err, "fetch talks of group %d", g.Number)
	}
	return s.store.ReplaceGroupTalks(key, talks)
}

// FetchUngrouped replaces the ungrouped pool with the server's list.
func (s *Syncer) FetchUngrouped(ctx context.Context) error {
	talks, err := s.remote.ListUngroupedTalks(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch ungrouped talks")
	}
	s.store.ReplaceUngrouped(talks)
	return nil
}

// Load fetches the groups, then every confirmed group's talks, then the
// ungrouped pool.
func (s *Syncer) Load(ctx context.Context) error {
	if err := s.FetchGroups(ctx); err != nil {
		return err
	}

	confirmed := lo.Filter(s.store.Groups(), func(g store.Group, _ int) bool { return !g.Pending() })
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(loadConcurrency)
	for _, g := range confirmed {
		eg.Go(func() error {
			return s.FetchGroupTalks(egCtx, g.Key)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	if err := s.FetchUngrouped(ctx); err != nil {
		return err
	}
	if err := s.store.CheckPartition(); err != nil {
		s.log.Error("store partition broken after load", zap.Error(err))
	}
	s.log.Debug("loaded", zap.Int("groups", len(confirmed)), zap.Int("ungrouped", len(s.store.Ungrouped())))
	return nil
}

// --- Helpers ---

// confirmed returns the group for key, failing for unknown and pending
// groups.
func (s *Syncer) confirmed(key store.Key) (store.Group, error) {
	g, ok := s.store.Group(key)
	if !ok {
		return store.Group{}, errors.Wrapf(store.ErrUnknownGroup, "group %s", key)
	}
	if g.Pending() {
		return store.Group{}, errors.Wrapf(store.ErrPendingGroup, "group %q", g.Name)
	}
	return g, nil
}

func (s *Syncer) refreshUngrouped(ctx context.Context, log *zap.Logger) {
	if err := s.FetchUngrouped(ctx); err != nil {
		log.Warn("refresh ungrouped after failure", zap.Error(err))
	}
}

func (s *Syncer) groupLogger(op string, g store.Group) *zap.Logger {
	return s.log.With(
		zap.String("op", op),
		zap.String("group", string(g.Key)),
		zap.Int("number", g.Number),
	)
}

func talkIDs(talks []api.Talk) []int {
	return lo.Map(talks, func(t api.Talk, _ int) int { return t.ID })
}
