// Package worker implements the store worker: the single goroutine that owns
// an RDF store, loads it once and answers queries sent over a transport.
//
// The worker moves through Uninitialized -> Loading -> Ready. A config
// message starts the load on a loader goroutine that builds a private store;
// the store is installed by the worker goroutine only when loading succeeded,
// so a failed load never leaves a partially filled store. Queries received
// before Ready are buffered (or rejected, depending on the pending policy)
// and answered in arrival order right after the ready message.
//
// Example usage:
//
//	workerEnd, supervisorEnd := transport.NewPipe(0)
//	fetcher := acquire.NewFetcher(acquire.Options{Timeout: cfg.FetchTimeout}, logger)
//
//	w, err := worker.NewWorker(workerEnd, fetcher, worker.OptionsFromConfig(cfg), logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	w.Start(ctx)
//	defer w.Stop()
//
// The worker handles:
//   - Lifecycle state and the pending query policy
//   - Content acquisition and store population
//   - Query evaluation with an optional deadline
//   - Conversion of every query error or panic into a failure response
//   - Graceful shutdown
//
// Health checks are provided via a separate HTTP server:
//
//	healthServer := worker.NewHealthServer(8083, redisClient, w, logger)
//	healthServer.Start()
//	defer healthServer.Stop()
package worker
