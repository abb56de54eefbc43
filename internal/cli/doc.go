// Package cli turns command-line arguments, environment variables and an
// optional .env file into an app.Config and the task to run. It owns
// process-level concerns like usage text and exit codes.
package cli
