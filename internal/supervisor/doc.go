// Package supervisor is the caller side of a store worker. A Client sends
// the load config and queries over a transport and matches every response to
// its query through a generated correlation id.
//
// Example usage:
//
//	workerEnd, supervisorEnd := transport.NewPipe(0)
//	w, _ := worker.NewWorker(workerEnd, fetcher, worker.Options{}, logger)
//	w.Start(ctx)
//	defer w.Stop()
//
//	client := supervisor.NewClient(supervisorEnd, supervisor.Options{}, logger)
//	defer client.Close()
//
//	if err := client.Load(ctx, &protocol.LoadConfig{URL: "data.ttl"}); err != nil {
//	    return err
//	}
//	res, err := client.Query(ctx, "SELECT * WHERE { ?s ?p ?o } LIMIT 10")
package supervisor
