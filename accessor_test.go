package rowscope_test

import (
	"context"
	"errors"
	"testing"

	"github.com/scopedrows/rowscope"
	"github.com/scopedrows/rowscope/memory"
)

// recordingBackend captures every composed query on its way to the
// wrapped backend so tests can assert on key substitution.
type recordingBackend struct {
	rowscope.Backend
	lastSelect rowscope.Query
}

func (b *recordingBackend) Select(ctx context.Context, q rowscope.Query) ([]rowscope.Row, error) {
	b.lastSelect = q
	return b.Backend.Select(ctx, q)
}

type fixture struct {
	registry *rowscope.Registry
	accessor *rowscope.Accessor
	backend  *recordingBackend
	user     *rowscope.Entity
	admin    *rowscope.Subtype
	post     *rowscope.Entity
	group    *rowscope.Entity
}

func newFixture(t *testing.T, adminOpts ...rowscope.SubtypeOption) *fixture {
	t.Helper()
	reg := rowscope.NewRegistry()

	user, err := reg.DefineEntity("User", "users", []rowscope.FieldDefinition{
		{Name: "id", Type: rowscope.FieldTypeUUID, Required: true},
		{Name: "name", Type: rowscope.FieldTypeString, Required: true},
		{Name: "is_admin", Type: rowscope.FieldTypeBoolean},
	}, "id")
	if err != nil {
		t.Fatalf("define User: %v", err)
	}

	admin, err := reg.DefineSubtype("Admin", "User", "users", rowscope.Eq("is_admin", true), adminOpts...)
	if err != nil {
		t.Fatalf("define Admin: %v", err)
	}

	post, err := reg.DefineEntity("Post", "posts", []rowscope.FieldDefinition{
		{Name: "id", Type: rowscope.FieldTypeUUID, Required: true},
		{Name: "user_id", Type: rowscope.FieldTypeUUID, Required: true},
		{Name: "title", Type: rowscope.FieldTypeString},
	}, "id")
	if err != nil {
		t.Fatalf("define Post: %v", err)
	}

	group, err := reg.DefineEntity("Group", "groups", []rowscope.FieldDefinition{
		{Name: "id", Type: rowscope.FieldTypeUUID, Required: true},
		{Name: "name", Type: rowscope.FieldTypeString},
	}, "id")
	if err != nil {
		t.Fatalf("define Group: %v", err)
	}

	if err := reg.DefineRelation(rowscope.Relation{
		Name: "posts", Source: "User", Target: "Post", Kind: rowscope.RelationHasMany,
	}); err != nil {
		t.Fatalf("define posts relation: %v", err)
	}
	if err := reg.DefineRelation(rowscope.Relation{
		Name: "groups", Source: "User", Target: "Group", Kind: rowscope.RelationManyToMany,
	}); err != nil {
		t.Fatalf("define groups relation: %v", err)
	}

	backend := &recordingBackend{Backend: memory.New()}
	return &fixture{
		registry: reg,
		accessor: rowscope.NewAccessor(reg, backend),
		backend:  backend,
		user:     user,
		admin:    admin,
		post:     post,
		group:    group,
	}
}

func TestCreateThroughSubtypeInjectsPredicateDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, err := f.accessor.Create(ctx, f.admin, map[string]any{"name": "Alice"})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if alice.ID() == nil {
		t.Fatalf("expected generated primary key")
	}
	if isAdmin, _ := alice.Get("is_admin"); isAdmin != true {
		t.Errorf("expected is_admin injected as true, got %v", isAdmin)
	}

	// Visibility round-trip through the same subtype.
	found, err := f.accessor.Find(ctx, f.admin, alice.ID())
	if err != nil {
		t.Fatalf("find through subtype: %v", err)
	}
	if name, _ := found.Get("name"); name != "Alice" {
		t.Errorf("expected Alice, got %v", name)
	}

	// The base entity sees the same row.
	if _, err := f.accessor.Find(ctx, f.user, alice.ID()); err != nil {
		t.Fatalf("find through base entity: %v", err)
	}
}

func TestContradictingCreateIsStoredButInvisible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Caller explicitly contradicts the predicate; caller wins.
	mallory, err := f.accessor.Create(ctx, f.admin, map[string]any{"name": "Mallory", "is_admin": false})
	if err != nil {
		t.Fatalf("create should succeed in advisory mode: %v", err)
	}
	if isAdmin, _ := mallory.Get("is_admin"); isAdmin != false {
		t.Errorf("caller value must not be overwritten, got %v", isAdmin)
	}

	if _, err := f.accessor.Find(ctx, f.admin, mallory.ID()); !errors.Is(err, rowscope.ErrNotFound) {
		t.Errorf("expected ErrNotFound through subtype, got %v", err)
	}
	if _, err := f.accessor.Find(ctx, f.user, mallory.ID()); err != nil {
		t.Errorf("expected base entity to see the row, got %v", err)
	}
}

func TestEnforcedSubtypeRejectsContradictingCreate(t *testing.T) {
	f := newFixture(t, rowscope.WithEnforcedPredicate())
	ctx := context.Background()

	_, err := f.accessor.Create(ctx, f.admin, map[string]any{"name": "Mallory", "is_admin": false})
	var constraintErr *rowscope.ConstraintViolationError
	if !errors.As(err, &constraintErr) {
		t.Fatalf("expected ConstraintViolationError, got %v", err)
	}
}

func TestEveryRecordThroughSubtypeSatisfiesPredicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, values := range []map[string]any{
		{"name": "Alice", "is_admin": true},
		{"name": "Bob", "is_admin": false},
		{"name": "Carol", "is_admin": true},
		{"name": "Dave", "is_admin": false},
	} {
		if _, err := f.accessor.Create(ctx, f.user, values); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	admins, err := f.accessor.Query(f.admin).All(ctx)
	if err != nil {
		t.Fatalf("query admins: %v", err)
	}
	if len(admins) != 2 {
		t.Fatalf("expected 2 admins, got %d", len(admins))
	}
	for _, rec := range admins {
		if !f.admin.Predicate().Matches(rec.Values()) {
			t.Errorf("record %v violates the subtype predicate", rec.ID())
		}
	}

	// The base entity returns a superset.
	everyone, err := f.accessor.Query(f.user).All(ctx)
	if err != nil {
		t.Fatalf("query users: %v", err)
	}
	if len(everyone) < len(admins) {
		t.Errorf("base query returned fewer rows (%d) than subtype query (%d)", len(everyone), len(admins))
	}

	// A caller filter composes with the injected one.
	nonAdmins, err := f.accessor.Query(f.user).Where(rowscope.Eq("is_admin", false)).All(ctx)
	if err != nil {
		t.Fatalf("query non-admins: %v", err)
	}
	if len(nonAdmins) != 2 {
		t.Errorf("expected 2 non-admins, got %d", len(nonAdmins))
	}
}

func TestCountAndPaginationAreScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if _, err := f.accessor.Create(ctx, f.admin, map[string]any{"name": name}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if _, err := f.accessor.Create(ctx, f.user, map[string]any{"name": "z", "is_admin": false}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	count, err := f.accessor.Query(f.admin).Count(ctx)
	if err != nil {
		t.Fatalf("count admins: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 admins, got %d", count)
	}

	page, err := f.accessor.Query(f.admin).OrderBy("name", rowscope.SortAsc).Limit(2).Offset(1).All(ctx)
	if err != nil {
		t.Fatalf("paginate admins: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(page))
	}
	if name, _ := page[0].Get("name"); name != "b" {
		t.Errorf("expected page to start at b, got %v", name)
	}
}

func TestAllWithCountReturnsPageAndScopedTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if _, err := f.accessor.Create(ctx, f.admin, map[string]any{"name": name}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if _, err := f.accessor.Create(ctx, f.user, map[string]any{"name": "z", "is_admin": false}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	page, total, err := f.accessor.Query(f.admin).
		OrderBy("name", rowscope.SortAsc).
		Limit(2).
		Offset(1).
		AllWithCount(ctx)
	if err != nil {
		t.Fatalf("all with count: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected a 2-row page, got %d", len(page))
	}
	if name, _ := page[0].Get("name"); name != "b" {
		t.Errorf("expected page to start at b, got %v", name)
	}
	// The total ignores pagination but keeps the row filter.
	if total != 3 {
		t.Errorf("expected total of 3 admins, got %d", total)
	}
}

func TestUpdateAndDeleteAreScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.accessor.Create(ctx, f.admin, map[string]any{"name": "Alice"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := f.accessor.Create(ctx, f.user, map[string]any{"name": "Bob", "is_admin": false}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Update through the subtype touches only predicate-matching rows.
	updated, err := f.accessor.Update(ctx, f.admin, nil, map[string]any{"name": "renamed"})
	if err != nil {
		t.Fatalf("update admins: %v", err)
	}
	if updated != 1 {
		t.Errorf("expected 1 row updated, got %d", updated)
	}

	deleted, err := f.accessor.Delete(ctx, f.admin, nil)
	if err != nil {
		t.Fatalf("delete admins: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 row deleted, got %d", deleted)
	}

	remaining, err := f.accessor.Query(f.user).Count(ctx)
	if err != nil {
		t.Fatalf("count users: %v", err)
	}
	if remaining != 1 {
		t.Errorf("expected the non-admin row to survive, got %d", remaining)
	}
}

func TestRelationUsesBaseEntityForeignKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, err := f.accessor.Create(ctx, f.admin, map[string]any{"name": "Alice"})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	if _, err := f.accessor.Create(ctx, f.post, map[string]any{"user_id": alice.ID(), "title": "hello"}); err != nil {
		t.Fatalf("create post: %v", err)
	}

	posts, err := f.accessor.ResolveRelation(ctx, alice, "posts")
	if err != nil {
		t.Fatalf("resolve posts from admin record: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}

	// The composed query must filter on user_id, never admin_id.
	fromAdmin := f.backend.lastSelect
	if len(fromAdmin.Conditions) != 1 || fromAdmin.Conditions[0].Field != "user_id" {
		t.Fatalf("expected foreign key user_id, got %+v", fromAdmin.Conditions)
	}

	// Resolving from a base-entity record composes the identical key.
	viaUser, err := f.accessor.Find(ctx, f.user, alice.ID())
	if err != nil {
		t.Fatalf("find via base: %v", err)
	}
	if _, err := f.accessor.ResolveRelation(ctx, viaUser, "posts"); err != nil {
		t.Fatalf("resolve posts from base record: %v", err)
	}
	fromUser := f.backend.lastSelect
	if fromUser.Conditions[0].Field != fromAdmin.Conditions[0].Field {
		t.Errorf("foreign key differs between base (%q) and subtype (%q)",
			fromUser.Conditions[0].Field, fromAdmin.Conditions[0].Field)
	}
}

func TestManyToManySubstitutesJoinNamesFromBase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, err := f.accessor.Create(ctx, f.admin, map[string]any{"name": "Alice"})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	ops, err := f.accessor.Create(ctx, f.group, map[string]any{"name": "ops"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := f.backend.Insert(ctx, "group_user", rowscope.Row{
		"user_id": alice.ID(), "group_id": ops.ID(),
	}); err != nil {
		t.Fatalf("link: %v", err)
	}

	groups, err := f.accessor.ResolveRelation(ctx, alice, "groups")
	if err != nil {
		t.Fatalf("resolve groups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if name, _ := groups[0].Get("name"); name != "ops" {
		t.Errorf("expected ops, got %v", name)
	}

	join := f.backend.lastSelect.Join
	if join == nil {
		t.Fatalf("expected a join clause")
	}
	if join.Table != "group_user" || join.LocalKey != "user_id" || join.TargetKey != "group_id" {
		t.Errorf("join names not derived from base identities: %+v", join)
	}
}

func TestDeepSubtypeChainCannotResolveRelations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.registry.DefineSubtype("SuperAdmin", "Admin", "users", rowscope.Eq("name", "root")); err != nil {
		t.Fatalf("define nested subtype: %v", err)
	}
	super, _ := f.registry.Subtype("SuperAdmin")

	rec := rowscope.NewRecord(super, map[string]any{"id": "x", "name": "root", "is_admin": true})
	_, err := f.accessor.ResolveRelation(ctx, rec, "posts")
	var relErr *rowscope.RelationResolutionError
	if !errors.As(err, &relErr) {
		t.Fatalf("expected RelationResolutionError for two-level chain, got %v", err)
	}
}

func TestResolveOneAndUnknownRelation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, err := f.accessor.Create(ctx, f.admin, map[string]any{"name": "Alice"})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}

	if _, err := f.accessor.ResolveOne(ctx, alice, "posts"); !errors.Is(err, rowscope.ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty relation, got %v", err)
	}

	var relErr *rowscope.RelationResolutionError
	if _, err := f.accessor.ResolveRelation(ctx, alice, "comments"); !errors.As(err, &relErr) {
		t.Errorf("expected RelationResolutionError for unknown relation, got %v", err)
	}
}

func TestSaveReappliesSubtypeDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, err := f.accessor.Create(ctx, f.admin, map[string]any{"name": "Alice"})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}

	rec := rowscope.NewRecord(f.admin, map[string]any{"id": alice.ID(), "name": "Alice Cooper"})
	count, err := f.accessor.Save(ctx, rec)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row saved, got %d", count)
	}

	reloaded, err := f.accessor.Find(ctx, f.admin, alice.ID())
	if err != nil {
		t.Fatalf("record must remain visible through the subtype after save: %v", err)
	}
	if name, _ := reloaded.Get("name"); name != "Alice Cooper" {
		t.Errorf("expected updated name, got %v", name)
	}
}

func TestBackendFailuresAreWrapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	failing := &failingBackend{}
	accessor := rowscope.NewAccessor(f.registry, failing)

	_, err := accessor.Find(ctx, f.user, "some-id")
	var backendErr *rowscope.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("wrapped cause lost: %v", err)
	}
}

var errBoom = errors.New("boom")

type failingBackend struct{}

func (failingBackend) Select(context.Context, rowscope.Query) ([]rowscope.Row, error) {
	return nil, errBoom
}
func (failingBackend) Count(context.Context, rowscope.Query) (int64, error) { return 0, errBoom }
func (failingBackend) Insert(context.Context, string, rowscope.Row) error   { return errBoom }
func (failingBackend) Update(context.Context, rowscope.Query, rowscope.Row) (int64, error) {
	return 0, errBoom
}
func (failingBackend) Delete(context.Context, rowscope.Query) (int64, error) { return 0, errBoom }
