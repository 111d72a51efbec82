// Package server wires the patch service: configuration, the page
// provider, the middleware stack and the REST and WebSocket routes.
//
// Example Usage:
//
//	srv, err := server.NewServer(cfg, logger)
//	if err != nil {
//		return err
//	}
//	defer srv.Close()
//	return srv.Run(ctx)
package server
