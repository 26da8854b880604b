// Package script is the execution core: a compilation gate backed by a
// bounded LRU+TTL artifact cache, and an execution coordinator that runs
// each compiled script on its own disposable engine instance under a
// timeout watchdog. The cache is the only resource shared between
// concurrent executions; engine instances never are.
package script
