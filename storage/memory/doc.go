// Package memory provides an in-memory storage.KV backend.
//
// Entries live in a mutex-protected map and expire lazily on read as well as
// through a periodic sweep. It is suitable for development, testing and
// single-instance deployments where persistence is not required.
//
// Example usage:
//
//	kv := memory.New()
//	defer kv.Stop()
//
//	creds := storage.NewCredentialStore(kv)
package memory
