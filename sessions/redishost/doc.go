// Package redishost implements sessions.SessionHost on Redis so that several
// processes can share one view of live sessions.
//
// Each session is a JSON blob stored under <prefix>session:<id>. The key's
// expiry tracks the record's sliding TTL and is refreshed on every read or
// mutation. MutateSession is an optimistic WATCH/MULTI transaction retried a
// bounded number of times when another writer wins the race.
//
// Example:
//
//	host, err := redishost.New(redishost.Config{RedisAddr: "localhost:6379"})
//	if err != nil { ... }
//	defer host.Close()
package redishost
