// Package localcache provides the durable key/value store used as the
// write-through mirror of the identity-provider configuration and as the
// persistence layer for rehydrated sessions.
//
// Three backends implement the same Cache interface:
//
//	cache, _ := localcache.NewSQLiteCache("/var/lib/salesdash/cache.db")
//	cache, _ := localcache.NewRedisCache(localcache.RedisOptions{Addr: "localhost:6379"})
//	cache    := localcache.NewMemoryCache()
//
// Values are whole strings replaced on every write, so concurrent readers
// need no locking beyond what the backend provides: the last write wins.
package localcache
