// Package internal contains the core implementation packages for slate.
//
// # Package Organization
//
// The internal packages are organized by build stage:
//
//   - scanner: walks the source tree, classifies files and hashes them
//   - content: front matter, pages, routes and data files
//   - graph: entities and the dependency edges between them
//   - renderer: markdown, templates, stylesheets, data and assets
//   - build: cache keys, the single-flight build cache and cycle metrics
//   - finish: minification, style prefixing and compression
//   - store: the published artifact snapshot and the output tree
//   - engine: build sessions, cycles, the scheduler and the orchestrator
//   - watcher: debounced file system notifications
//   - server, websocket: the preview server and its live-reload hub
//   - config, logging, errors, monitoring, version: ambient concerns
//
// # Data Flow
//
// A cycle runs scanner → graph → renderer (through the build cache, in
// dependency order on a bounded pool) → finish → store. The store swaps
// in the new snapshot with one atomic pointer store; the preview server
// only ever reads whole snapshots.
//
// # Testing Strategy
//
//   - Unit tests with testify in every package
//   - gopter property tests behind the property build tag
//   - Fuzz tests for route and URL validation
//   - httptest and websocket round trips for the preview server
package internal
