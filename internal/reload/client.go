package reload

import _ "embed"

// ClientScript is the browser side of the WebSocket channel. It swaps
// matching stylesheets for style-only events and reloads the page otherwise.
//
//go:embed client.js
var ClientScript []byte

// ClientPath is where the dev server serves ClientScript.
const ClientPath = "/__assetpipe/client.js"

// SocketPath is where the dev server mounts the Hub.
const SocketPath = "/__assetpipe/livereload"
