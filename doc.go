/*
Package transmission provides a client for the Transmission daemon RPC API.

Highlights:
  - Transparent session-token handling: a 409 answer renews the
    X-Transmission-Session-Id token and the call is re-sent once
  - Optional Basic authentication
  - Typed errors for connection failures, missing authentication and
    unexpected responses
  - Pluggable Transport, so metrics, rate limiting and logging can be layered
    on top (see the middleware package)

Quick start:

	import (
	    "context"
	    "log"

	    transmission "github.com/jfxdev/go-transmission"
	)

	func main() {
	    client, err := transmission.New(transmission.Config{
	        Host:     "localhost",
	        Username: "admin",
	        Password: "password",
	    })
	    if err != nil {
	        log.Fatal(err)
	    }

	    resp, err := client.Call(context.Background(), "session-get", nil)
	    if err != nil {
	        log.Fatal(err)
	    }
	    log.Println(resp.Arguments()["version"])
	}
*/
package transmission
