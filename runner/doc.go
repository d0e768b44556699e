// Package runner executes batches of queries against the pipeline engine
// with bounded concurrency. It is the workhorse behind offline evaluation
// runs and corpus regression checks: hand it a query set and it drives every
// query to its terminal result, collecting outcomes in input order.
//
// The runner never short-circuits on per-query failures; a query whose run
// fails is reported in its Outcome so a batch always yields one outcome per
// query. Only context cancellation aborts the batch.
package runner
