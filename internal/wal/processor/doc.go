/*
Package processor implements the WAL Processor: the worker loop that
finds PENDING operations whose backend the Health Monitor
reports online, dispatches them to a backend handler, and writes the
outcome back to the WAL.

A single worker goroutine runs one cycle per tick. Dispatch within a
cycle fans out through a golang.org/x/sync/errgroup bounded pool, and
per-backend dispatch is throttled with golang.org/x/time/rate so a
degraded backend's retries cannot starve dispatch of a healthy one.
*/
package processor
