// Package normcache keeps a normalized, identity-keyed entity cache consistent with a
// backend that returns authoritative mutation results.
//
// Entities are stored once per identity ("<type>:<id>") and list fields reference them
// by identity, newest first. Updates merge into the stored entity, so every list that
// references it sees the change. Inserts and deletes change list membership and are
// applied by Policy:
//
//	c, _ := normcache.NewCache()
//	_, _ = c.Created(ctx, normcache.Entity{TypeTag: "users", ID: "1", Attributes: map[string]any{"name": "Alice"}})
//	_, _ = c.Created(ctx, normcache.Entity{TypeTag: "users", ID: "2", Attributes: map[string]any{"name": "Bob"}})
//	_ = c.Deleted(ctx, "users:1")
//	for user := range c.List("users") {
//		fmt.Println(user.String("name")) // Bob
//	}
//
// Coordinator issues mutations against a Backend and applies the matching reconciliation
// step only after the backend succeeds. Seeder pre-renders the initial list from a
// snapshot store (see package snapstore).
package normcache
