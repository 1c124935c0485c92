// Package engine drives the bot: it walks the prioritized heads of every
// tracked repository, consults the queue admission state machine and hands
// each head to the pipeline.
package engine

// The implementation is split across multiple files:
// - bot.go: process lifetime, PID file and configuration reload
// - poller.go: passes and the wait between them
// - priority.go: lazy round-robin merge of head streams
// - queue.go: queue admission state machine
// - factory.go: dependency injection factory
// - safegroup.go: panic-safe concurrency utilities
