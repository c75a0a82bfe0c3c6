package httpserver

import "time"

// ShutdownTimeout bounds how long in-flight requests, and the release of clients held
// for the server's lifetime, may take once shutdown starts.
var ShutdownTimeout = 15 * time.Second
