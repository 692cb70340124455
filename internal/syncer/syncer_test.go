package syncer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gravitrone/tdome/internal/api"
	"github.com/gravitrone/tdome/internal/fakeapi"
	"github.com/gravitrone/tdome/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

type harness struct {
	fake   *fakeapi.Server
	client *api.Client
	store  *store.Store
	sync   *Syncer
	logs   *observer.ObservedLogs
	seen   int
}

func newHarness(t *testing.T, talkIDs ...int) *harness {
	t.Helper()
	fake := fakeapi.New(nil)
	for _, id := range talkIDs {
		fake.AddTalk(api.Talk{ID: id, Title: "talk"})
	}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	core, logs := observer.New(zap.DebugLevel)
	client := api.NewClient(srv.URL, 2*time.Second)
	st := store.New()
	return &harness{
		fake:   fake,
		client: client,
		store:  st,
		sync:   New(client, st, zap.New(core)),
		logs:   logs,
	}
}

// load pulls the server state in and marks the requests so far as seen.
func (h *harness) load(t *testing.T) {
	t.Helper()
	require.NoError(t, h.sync.Load(context.Background()))
	h.seen = len(h.fake.Requests())
}

// since returns the routes hit after the last load.
func (h *harness) since() []string {
	reqs := h.fake.Requests()[h.seen:]
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, r.Method+" "+r.Path)
	}
	return out
}

func (h *harness) ungroupedIDs() []int {
	return ids(h.store.Ungrouped())
}

func (h *harness) memberIDs(key store.Key) []int {
	return ids(h.store.GroupTalks(key))
}

func (h *harness) talks(t *testing.T, want ...int) []api.Talk {
	t.Helper()
	out := make([]api.Talk, 0, len(want))
	for _, id := range want {
		talk, ok := h.store.Talk(id)
		require.True(t, ok, "talk %d not loaded", id)
		out = append(out, talk)
	}
	return out
}

func ids(ts []api.Talk) []int {
	out := make([]int, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID)
	}
	return out
}

// --- Create ---

func TestCreateGroupConfirmsThenLoadsMembers(t *testing.T) {
	h := newHarness(t, 101, 102, 103)
	h.load(t)

	key, task := h.sync.CreateGroup("Round 1", h.talks(t, 101, 102))

	g, ok := h.store.Group(key)
	require.True(t, ok)
	assert.True(t, g.Pending())
	assert.Equal(t, []int{103}, h.ungroupedIDs())
	assert.Equal(t, []int{101, 102}, h.memberIDs(key))

	require.NoError(t, task(context.Background()))

	g, _ = h.store.Group(key)
	assert.False(t, g.Pending())
	assert.Equal(t, 1, g.Number)
	assert.Equal(t, "Round 1", g.Name)
	assert.Equal(t, []int{101, 102}, h.memberIDs(key))
	assert.Equal(t, []int{103}, h.ungroupedIDs())
	assert.Equal(t, []string{
		"POST /api/groups",
		"GET /api/groups/1/talks",
		"GET /api/talks/ungrouped",
	}, h.since())
	require.NoError(t, h.store.CheckPartition())
}

func TestCreateGroupDefaultsBlankName(t *testing.T) {
	h := newHarness(t)
	key, task := h.sync.CreateGroup("   ", nil)

	require.NoError(t, task(context.Background()))
	g, _ := h.store.Group(key)
	assert.Equal(t, DefaultGroupName, g.Name)
	assert.Equal(t, DefaultGroupName, h.fake.Groups()[0].Name)
}

func TestCreateGroupFailureRestoresPool(t *testing.T) {
	h := newHarness(t, 101, 102, 103)
	h.load(t)
	h.fake.Fail(fakeapi.RouteCreateGroup, fakeapi.Failure{Status: http.StatusInternalServerError, Message: "db down"})

	key, task := h.sync.CreateGroup("Round 1", h.talks(t, 101, 102))
	err := task(context.Background())

	require.Error(t, err)
	assert.True(t, api.IsRejected(err))
	assert.Contains(t, err.Error(), "db down")
	assert.Contains(t, errors.GetAllHints(err), "the group was not created and its talks are back in the ungrouped list")

	_, exists := h.store.Group(key)
	assert.False(t, exists)
	assert.Empty(t, h.store.Groups())
	assert.Equal(t, []int{101, 102, 103}, h.ungroupedIDs())
	assert.Empty(t, h.fake.Groups())
	require.NoError(t, h.store.CheckPartition())

	warns := h.logs.FilterMessage("create group failed").All()
	require.Len(t, warns, 1)
	assert.Equal(t, "create", warns[0].ContextMap()["op"])
}

func TestCreateGroupTransportFailureRestoresPool(t *testing.T) {
	h := newHarness(t, 101, 102)
	h.load(t)
	h.fake.Fail(fakeapi.RouteCreateGroup, fakeapi.Failure{})

	_, task := h.sync.CreateGroup("Round 1", h.talks(t, 101))
	err := task(context.Background())

	require.Error(t, err)
	assert.True(t, api.IsTransport(err))
	assert.Empty(t, h.store.Groups())
	assert.Equal(t, []int{101, 102}, h.ungroupedIDs())
}

func TestCreateGroupFailureKeepsPoolWhenRefreshFails(t *testing.T) {
	h := newHarness(t, 101, 102)
	h.load(t)
	h.fake.Fail(fakeapi.RouteCreateGroup, fakeapi.Failure{Status: http.StatusBadRequest})
	h.fake.Fail(fakeapi.RouteUngrouped, fakeapi.Failure{Status: http.StatusServiceUnavailable})

	_, task := h.sync.CreateGroup("Round 1", h.talks(t, 101, 102))
	require.Error(t, task(context.Background()))

	assert.Equal(t, []int{101, 102}, h.ungroupedIDs())
	assert.NotEmpty(t, h.logs.FilterMessage("refresh ungrouped after failure").All())
}

// A created group exposes no member address until the server has answered
// the create; reads against it fail locally instead of reaching the server.
func TestCreateGroupOrderingBarrier(t *testing.T) {
	h := newHarness(t, 101, 102, 103)
	h.load(t)
	release := h.fake.Hold(fakeapi.RouteCreateGroup)
	defer release()

	key, task := h.sync.CreateGroup("Round 1", h.talks(t, 101, 102))
	done := make(chan error, 1)
	go func() { done <- task(context.Background()) }()

	require.Eventually(t, func() bool { return len(h.since()) == 1 }, 2*time.Second, 5*time.Millisecond)

	g, _ := h.store.Group(key)
	assert.True(t, g.Pending())
	_, err := g.TalksPath()
	assert.ErrorIs(t, err, store.ErrPendingGroup)

	err = h.sync.FetchGroupTalks(context.Background(), key)
	assert.ErrorIs(t, err, store.ErrPendingGroup)
	_, err = h.sync.RenameGroup(key, "Other")
	assert.ErrorIs(t, err, store.ErrPendingGroup)
	_, err = h.sync.AddTalks(key, h.talks(t, 103))
	assert.ErrorIs(t, err, store.ErrPendingGroup)
	_, err = h.sync.RemoveGroup(key)
	assert.ErrorIs(t, err, store.ErrPendingGroup)

	assert.Equal(t, []string{"POST /api/groups"}, h.since())

	release()
	require.NoError(t, <-done)

	routes := h.since()
	post := slices.Index(routes, "POST /api/groups")
	members := slices.Index(routes, "GET /api/groups/1/talks")
	require.GreaterOrEqual(t, post, 0)
	require.Greater(t, members, post)
	g, _ = h.store.Group(key)
	path, err := g.TalksPath()
	require.NoError(t, err)
	assert.Equal(t, "/api/groups/1/talks", path)
}

// --- Add ---

func TestAddTalksToConfirmedGroup(t *testing.T) {
	h := newHarness(t, 101, 102, 103)
	h.fake.SeedGroup("Round 1", 101, 102)
	h.load(t)
	g, ok := h.store.GroupByNumber(1)
	require.True(t, ok)

	task, err := h.sync.AddTalks(g.Key, h.talks(t, 103))
	require.NoError(t, err)
	assert.Equal(t, []int{101, 102, 103}, h.memberIDs(g.Key))
	assert.Empty(t, h.ungroupedIDs())

	require.NoError(t, task(context.Background()))
	assert.Equal(t, []int{101, 102, 103}, h.memberIDs(g.Key))
	assert.Empty(t, h.ungroupedIDs())
	assert.Equal(t, []int{101, 102, 103}, h.fake.Members(1))
	assert.Equal(t, []string{
		"PUT /api/groups/1",
		"GET /api/groups/1/talks",
		"GET /api/talks/ungrouped",
	}, h.since())
}

func TestAddTalksFailureRevertsMoves(t *testing.T) {
	h := newHarness(t, 101, 102, 103)
	h.fake.SeedGroup("A", 101)
	h.fake.SeedGroup("B", 102)
	h.load(t)
	a, _ := h.store.GroupByNumber(1)
	b, _ := h.store.GroupByNumber(2)
	h.fake.Fail(fakeapi.RouteUpdateGroup, fakeapi.Failure{Status: http.StatusInternalServerError, Times: 1})

	task, err := h.sync.AddTalks(a.Key, h.talks(t, 102, 103))
	require.NoError(t, err)
	assert.Equal(t, []int{101, 102, 103}, h.memberIDs(a.Key))

	require.Error(t, task(context.Background()))
	assert.Equal(t, []int{101}, h.memberIDs(a.Key))
	assert.Equal(t, []int{102}, h.memberIDs(b.Key))
	assert.Equal(t, []int{103}, h.ungroupedIDs())
	require.NoError(t, h.store.CheckPartition())
	assert.Contains(t, h.since(), "GET /api/talks/ungrouped")
}

func TestAddTalksRequiresTalks(t *testing.T) {
	h := newHarness(t)
	h.fake.SeedGroup("A")
	h.load(t)
	g, _ := h.store.GroupByNumber(1)

	_, err := h.sync.AddTalks(g.Key, nil)
	assert.ErrorIs(t, err, ErrNoTalks)
}

// --- Remove ---

func TestRemoveGroupReturnsMembersToPool(t *testing.T) {
	h := newHarness(t, 101, 102, 103)
	h.fake.SeedGroup("Round 1", 101, 102)
	h.load(t)
	g, _ := h.store.GroupByNumber(1)

	task, err := h.sync.RemoveGroup(g.Key)
	require.NoError(t, err)
	assert.Empty(t, h.store.Groups())
	assert.Equal(t, []int{101, 102, 103}, h.ungroupedIDs())

	require.NoError(t, task(context.Background()))
	assert.Empty(t, h.store.Groups())
	assert.Equal(t, []int{101, 102, 103}, h.ungroupedIDs())
	assert.Empty(t, h.fake.Groups())
	assert.Equal(t, []string{"DELETE /api/groups/1", "GET /api/talks/ungrouped"}, h.since())
}

func TestRemoveGroupFailureRestoresGroup(t *testing.T) {
	h := newHarness(t, 101, 102, 103)
	h.fake.SeedGroup("Round 1", 101, 102)
	h.load(t)
	g, _ := h.store.GroupByNumber(1)
	h.fake.Fail(fakeapi.RouteDeleteGroup, fakeapi.Failure{Status: http.StatusForbidden})

	task, err := h.sync.RemoveGroup(g.Key)
	require.NoError(t, err)
	err = task(context.Background())

	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, api.StatusCode(err))
	restored, ok := h.store.Group(g.Key)
	require.True(t, ok)
	assert.Equal(t, 1, restored.Number)
	assert.Equal(t, []int{101, 102}, h.memberIDs(g.Key))
	assert.Equal(t, []int{103}, h.ungroupedIDs())
	require.NoError(t, h.store.CheckPartition())
	assert.Len(t, h.logs.FilterMessage("delete group failed").All(), 1)
}

func TestRemoveGroupAlreadyDeletedOnServer(t *testing.T) {
	h := newHarness(t, 101)
	h.fake.SeedGroup("Round 1", 101)
	h.load(t)
	g, _ := h.store.GroupByNumber(1)
	require.NoError(t, h.client.DeleteGroup(context.Background(), 1))

	task, err := h.sync.RemoveGroup(g.Key)
	require.NoError(t, err)
	require.NoError(t, task(context.Background()))
	assert.Empty(t, h.store.Groups())
	assert.Equal(t, []int{101}, h.ungroupedIDs())
}

func TestRemoveGroupDropsCopyReloadedWhileDeleting(t *testing.T) {
	h := newHarness(t, 101, 102, 103)
	h.fake.SeedGroup("Round 1", 101, 102)
	h.load(t)
	g, _ := h.store.GroupByNumber(1)
	release := h.fake.Hold(fakeapi.RouteDeleteGroup)
	defer release()

	task, err := h.sync.RemoveGroup(g.Key)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- task(context.Background()) }()
	require.Eventually(t, func() bool { return len(h.since()) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.sync.Load(context.Background()))
	_, reloaded := h.store.GroupByNumber(1)
	require.True(t, reloaded)

	release()
	require.NoError(t, <-done)
	assert.Empty(t, h.store.Groups())
	assert.Empty(t, h.fake.Groups())
	assert.Equal(t, []int{101, 102, 103}, h.ungroupedIDs())
	require.NoError(t, h.store.CheckPartition())
}

func TestCreateGroupKeepsStagedTalksDuringReload(t *testing.T) {
	h := newHarness(t, 101, 102, 103)
	h.load(t)
	release := h.fake.Hold(fakeapi.RouteCreateGroup)
	defer release()

	key, task := h.sync.CreateGroup("Round 1", h.talks(t, 101, 102))
	done := make(chan error, 1)
	go func() { done <- task(context.Background()) }()
	require.Eventually(t, func() bool { return len(h.since()) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.sync.Load(context.Background()))
	assert.Equal(t, []int{101, 102}, h.memberIDs(key))
	assert.Equal(t, []int{103}, h.ungroupedIDs())

	release()
	require.NoError(t, <-done)
	assert.Equal(t, []int{101, 102}, h.memberIDs(key))
	assert.Equal(t, []int{103}, h.ungroupedIDs())
	require.NoError(t, h.store.CheckPartition())
}

// --- Rename ---

func TestRenameGroupAppliesImmediately(t *testing.T) {
	h := newHarness(t)
	h.fake.SeedGroup("New Group")
	h.load(t)
	g, _ := h.store.GroupByNumber(1)

	task, err := h.sync.RenameGroup(g.Key, "Finals")
	require.NoError(t, err)
	got, _ := h.store.Group(g.Key)
	assert.Equal(t, "Finals", got.Name)

	require.NoError(t, task(context.Background()))
	got, _ = h.store.Group(g.Key)
	assert.Equal(t, "Finals", got.Name)
	assert.Equal(t, "Finals", h.fake.Groups()[0].Name)
	assert.Equal(t, []string{"PUT /api/groups/1"}, h.since())
}

func TestRenameGroupFailureReverts(t *testing.T) {
	h := newHarness(t)
	h.fake.SeedGroup("New Group")
	h.load(t)
	g, _ := h.store.GroupByNumber(1)
	h.fake.Fail(fakeapi.RouteUpdateGroup, fakeapi.Failure{Status: http.StatusInternalServerError})

	task, err := h.sync.RenameGroup(g.Key, "Finals")
	require.NoError(t, err)
	require.Error(t, task(context.Background()))

	got, _ := h.store.Group(g.Key)
	assert.Equal(t, "New Group", got.Name)
	warns := h.logs.FilterMessage("rename group failed").All()
	require.Len(t, warns, 1)
	assert.Equal(t, true, warns[0].ContextMap()["reverted"])
	assert.Equal(t, int64(1), warns[0].ContextMap()["number"])
}

func TestRenameGroupFailureKeepsLaterRename(t *testing.T) {
	h := newHarness(t)
	h.fake.SeedGroup("New Group")
	h.load(t)
	g, _ := h.store.GroupByNumber(1)
	h.fake.Fail(fakeapi.RouteUpdateGroup, fakeapi.Failure{Status: http.StatusInternalServerError, Times: 1})

	first, err := h.sync.RenameGroup(g.Key, "Finals")
	require.NoError(t, err)
	second, err := h.sync.RenameGroup(g.Key, "Semis")
	require.NoError(t, err)

	require.Error(t, first(context.Background()))
	got, _ := h.store.Group(g.Key)
	assert.Equal(t, "Semis", got.Name)

	require.NoError(t, second(context.Background()))
	got, _ = h.store.Group(g.Key)
	assert.Equal(t, "Semis", got.Name)
}

func TestRenameGroupRejectsBlankName(t *testing.T) {
	h := newHarness(t)
	h.fake.SeedGroup("A")
	h.load(t)
	g, _ := h.store.GroupByNumber(1)

	_, err := h.sync.RenameGroup(g.Key, "  ")
	assert.ErrorIs(t, err, ErrEmptyName)
	got, _ := h.store.Group(g.Key)
	assert.Equal(t, "A", got.Name)
}

func TestOperationsOnUnknownGroup(t *testing.T) {
	h := newHarness(t)
	_, err := h.sync.RenameGroup("missing", "x")
	assert.ErrorIs(t, err, store.ErrUnknownGroup)
	_, err = h.sync.RemoveGroup("missing")
	assert.ErrorIs(t, err, store.ErrUnknownGroup)
	err = h.sync.FetchGroupTalks(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrUnknownGroup)
}

// --- Load ---

func TestLoadPullsEverything(t *testing.T) {
	fake := fakeapi.Demo(nil)
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	st := store.New()
	s := New(api.NewClient(srv.URL), st, nil)

	require.NoError(t, s.Load(context.Background()))

	groups := st.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, "Performance", groups[0].Name)
	require.NotNil(t, groups[0].Decided)
	assert.Equal(t, []int{102, 108}, ids(st.GroupTalks(groups[0].Key)))
	assert.Equal(t, []int{106, 112}, ids(st.GroupTalks(groups[1].Key)))
	assert.Len(t, st.Ungrouped(), 8)
	require.NoError(t, st.CheckPartition())
}

func TestLoadDropsGroupsGoneFromServer(t *testing.T) {
	h := newHarness(t, 1, 2)
	h.fake.SeedGroup("A", 1)
	h.load(t)
	require.NoError(t, h.client.DeleteGroup(context.Background(), 1))

	h.load(t)
	assert.Empty(t, h.store.Groups())
	assert.Equal(t, []int{1, 2}, h.ungroupedIDs())
}

func TestLoadFailsWhenMembersFail(t *testing.T) {
	h := newHarness(t, 1)
	h.fake.SeedGroup("A", 1)
	h.fake.Fail(fakeapi.RouteGroupTalks, fakeapi.Failure{Status: http.StatusInternalServerError})

	err := h.sync.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch talks of group 1")
}

func TestMutationsNotifyUngroupedSubscribers(t *testing.T) {
	h := newHarness(t, 101, 102)
	h.load(t)
	var kinds []store.EventKind
	h.store.Subscribe(store.UngroupedChanged|store.GroupsChanged, func(e store.Event) {
		kinds = append(kinds, e.Kind)
	})

	_, task := h.sync.CreateGroup("A", h.talks(t, 101))
	require.NoError(t, task(context.Background()))

	assert.Contains(t, kinds, store.UngroupedChanged)
	assert.Contains(t, kinds, store.GroupsChanged)
}
