// Package snapstore persists pre-rendered list snapshots as opaque bytes with a TTL.
//
// The TTL is the regeneration window: once it lapses, readers miss and the seeder
// refetches from the backend. Drivers: memory, file, redis, sql (sqlite, postgres,
// mysql), nats key-value, dynamodb and null. Values can be gzip-compressed, capped in
// size, and sealed with AES-GCM on top of any driver.
package snapstore
