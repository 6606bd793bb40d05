// Package memoryhost provides an in-memory sessions.SessionHost suitable for
// tests, development and single-process servers. All state is discarded on
// process exit.
//
// Example:
//
//	host := memoryhost.New()
//	eng, err := engine.NewEngine(reg, engine.WithSessionHost(host))
//
// For deployments where several processes serve sessions prefer redishost.
package memoryhost
