// Package devserver serves the build tree over HTTP for local development.
//
// HTML responses get the live reload client injected before </body>. The
// server also exposes the reload WebSocket, the client script, an optional
// socket.io endpoint and a /health probe.
package devserver
