package main

import (
	"context"
	"log"
	"os"

	"github.com/scopedrows/rowscope"
	"github.com/scopedrows/rowscope/export"
	"github.com/scopedrows/rowscope/internal/config"
	"github.com/scopedrows/rowscope/postgres"
)

// The demo walks the canonical scenario: a User entity bound to the
// users table, an Admin subtype sharing that table behind is_admin =
// true, and a posts relation declared on User that resolves with the
// user_id key even when traversed from an Admin record.
func main() {
	ctx := context.Background()

	cfg, err := config.LoadDBConfig(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := postgres.RunMigrations(cfg, "./migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	conn, err := postgres.NewConnection(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	registry := rowscope.NewRegistry()

	user, err := registry.DefineEntity("User", "users", []rowscope.FieldDefinition{
		{Name: "id", Type: rowscope.FieldTypeUUID, Required: true},
		{Name: "name", Type: rowscope.FieldTypeString, Required: true},
		{Name: "is_admin", Type: rowscope.FieldTypeBoolean},
	}, "id")
	if err != nil {
		log.Fatalf("Failed to define User: %v", err)
	}

	admin, err := registry.DefineSubtype("Admin", "User", "users", rowscope.Eq("is_admin", true))
	if err != nil {
		log.Fatalf("Failed to define Admin: %v", err)
	}

	postEntity, err := registry.DefineEntity("Post", "posts", []rowscope.FieldDefinition{
		{Name: "id", Type: rowscope.FieldTypeUUID, Required: true},
		{Name: "user_id", Type: rowscope.FieldTypeUUID, Required: true},
		{Name: "title", Type: rowscope.FieldTypeString},
	}, "id")
	if err != nil {
		log.Fatalf("Failed to define Post: %v", err)
	}

	if err := registry.DefineRelation(rowscope.Relation{
		Name:   "posts",
		Source: "User",
		Target: "Post",
		Kind:   rowscope.RelationHasMany,
	}); err != nil {
		log.Fatalf("Failed to define posts relation: %v", err)
	}

	accessor := rowscope.NewAccessor(registry, postgres.NewBackend(conn.Pool))

	alice, err := accessor.Create(ctx, admin, map[string]any{"name": "Alice"})
	if err != nil {
		log.Fatalf("Failed to create admin: %v", err)
	}
	log.Printf("[DEMO] created admin %v (is_admin injected by row filter)", alice.ID())

	if _, err := accessor.Create(ctx, user, map[string]any{"name": "Bob", "is_admin": false}); err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	admins, err := accessor.Query(admin).All(ctx)
	if err != nil {
		log.Fatalf("Failed to query admins: %v", err)
	}
	everyone, err := accessor.Query(user).Count(ctx)
	if err != nil {
		log.Fatalf("Failed to count users: %v", err)
	}
	log.Printf("[DEMO] %d admin(s) visible through the subtype, %d user(s) in the shared table", len(admins), everyone)

	if _, err := accessor.Create(ctx, postEntity, map[string]any{
		"user_id": alice.ID(),
		"title":   "Scoped rows without duplicate tables",
	}); err != nil {
		log.Fatalf("Failed to create post: %v", err)
	}

	posts, err := accessor.ResolveRelation(ctx, alice, "posts")
	if err != nil {
		log.Fatalf("Failed to resolve posts: %v", err)
	}
	log.Printf("[DEMO] admin record resolved %d post(s) via user_id", len(posts))

	exporter := export.NewExporter(accessor)
	if err := exporter.WriteCSV(ctx, os.Stdout, admin, nil); err != nil {
		log.Fatalf("Failed to export admins: %v", err)
	}
}
