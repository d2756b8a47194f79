/*
Package ember provides a lightweight, embeddable HTTP/1.x server.

Ember is a library, not a framework: the host program constructs a
server, registers routes, and drives its lifecycle. Each accepted
connection carries exactly one request and is answered by a fixed pool
of workers, so load beyond the pool queues instead of spawning
goroutines without bound.

Features

  - Exact-match routing with :param and *catchall patterns
  - Fixed worker pool with a bounded FIFO queue and graceful drain
  - Bounded request parsing: header and body caps, read timeouts
  - One response per connection, always Connection: close
  - Panic containment: a failing handler answers 500 and the server keeps serving
  - Optional TLS, connection limiting, and SO_REUSEADDR rebinding
  - Structured zap logging and JSON-marshalable runtime stats

Quick Start

Basic usage example:

	package main

	import (
	    "log"

	    "github.com/emberhttp/ember/app"
	    "github.com/emberhttp/ember/core/http"
	)

	func main() {
	    application := app.New("127.0.0.1", 8080, nil)

	    srv := application.Server()
	    srv.GET("/hello", func(req *http.Request, res *http.Response) error {
	        res.Text(200, "Hello, world!")
	        return nil
	    })

	    if err := application.Run(); err != nil {
	        log.Fatal(err)
	    }
	}

Modules

The library is organized into a few small packages:

  - app: process lifecycle (signals, graceful shutdown)
  - config: settings, environment loading, logger construction
  - core: server, dispatcher, stats
  - core/http: request parsing and response building
  - core/router: route table
  - core/pools: worker, buffer, and object pools

For more information, see https://github.com/emberhttp/ember
*/
package ember
