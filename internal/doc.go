// Package internal contains the implementation packages for bruwatch.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - watcher: per-root file watching (fsnotify or polling) and classification
//   - collection: the event loop owning watch sessions and UI commands
//   - router: turns classified events into parsed updates
//   - pipeline: worker pool, tiny/large file handling and full loads
//   - bru: the .bru text format parser
//   - loading: per-collection loading indicator bookkeeping
//   - uid: stable path to id mapping and snapshot hydration
//   - registry: last valid bruno.json and .env per collection
//   - parsecache, secrets, snapshot, filestore: on-disk state
//   - publish, websocket: delivery of updates to consoles and UI clients
//   - config, logging, errors, validation, version: shared plumbing
//   - scaffolding: new collection templates
//
// # Inter-Package Communication
//
// The collection watcher is the only owner of session state. Watchers feed
// it events, the router and pipeline produce messages, and every message
// leaves through a publish.Sink. The websocket hub is both a sink and the
// source of UI commands, which it hands back to the collection watcher.
package internal
