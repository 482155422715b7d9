// Package transport provides the message channel between a supervisor and a
// store worker.
//
// Two implementations are available:
//   - PipeEnd: an in-process pipe of buffered channels, created in pairs by NewPipe
//   - RedisStreams: an inbound stream read through a consumer group and an
//     outbound stream written with XADD
//
// Example usage:
//
//	workerEnd, supervisorEnd := transport.NewPipe(0)
//	defer supervisorEnd.Close()
//
//	go w.Run(ctx) // reads from workerEnd
//
//	if err := supervisorEnd.Send(ctx, encoded); err != nil {
//	    return err
//	}
//	delivery, err := supervisorEnd.Receive(ctx)
//
// Over Redis:
//
//	streams := transport.NewRedisStreams(redisClient, transport.RedisStreamsOptions{
//	    Consumer:       cfg.WorkerID,
//	    Group:          cfg.ConsumerGroup,
//	    InboundStream:  cfg.InboundStream,
//	    OutboundStream: cfg.OutboundStream,
//	    BlockTime:      cfg.BlockTime,
//	}, logger)
//	if err := streams.EnsureGroup(ctx); err != nil {
//	    log.Fatal(err)
//	}
package transport
