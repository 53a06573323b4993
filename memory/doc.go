// Package memory contains concrete ConversationStore implementations. The
// store interface and Turn type reside in the core package; depend on
// core.ConversationStore in your code and select a backend at wiring time.
//
// Backends:
//   - InMemoryStore (this package): process-local, lost on restart
//   - memory/file: one msgpack file per conversation, survives restarts
//   - memory/redis: one Redis list per conversation, shared across instances
//
// memory/codec defines the record format shared by the file and redis
// backends; memory/memorytest is the conformance suite every backend runs.
package memory
