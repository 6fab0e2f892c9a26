// Package cli provides the interactive field client.
//
// It wires configuration, the local store, the session, the gRPC transport,
// the job scheduler and the sync orchestrator behind a small REPL. Map
// overlays run headless: they are reconciled against the store like a real
// map would be and can be inspected with the "map" command.
//
// Key features:
//   - Register / Login / Logout
//   - Select incident and collaboration room (pull cascade)
//   - Add, edit and delete content offline; pushes resume when online
//   - List / Show entities and their send status
//   - Sync and refresh on demand, plus background probing and polling
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
