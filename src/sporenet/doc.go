// Package sporenet assembles a complete node from a config.Config.
//
// Engine.Init creates, in order, the node key, the gossip transport (in
// memory or NATS, optionally behind a circuit breaker), the group directory,
// the trainer, the feedback evaluator, the epoch coordinator and the HTTP
// service. Engine.Run then hands the coordinator and the service to a suture
// supervisor, which restarts them if they stop before the context is done.
//
// Several engines may run in one process by sharing a transport and a
// directory:
//
//	board := net.NewInmemBoard(0)
//	dir := directory.NewInmemDirectory()
//	for i := 0; i < n; i++ {
//		e := sporenet.NewEngine(conf[i])
//		e.Transport = board.NewTransport()
//		e.Directory = dir
//		if err := e.Init(ctx); err != nil { ... }
//	}
package sporenet
