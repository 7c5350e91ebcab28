// Package valkey provides a Valkey-backed storage.KV for multi-instance deployments.
//
// Every key is stored under a configurable prefix (default "mcp:") so several
// gateways can share one Valkey database. Take is executed as a Lua script, which
// makes authorization code redemption and refresh token rotation single-use even
// when replicas race on the same credential.
//
// Example usage:
//
//	kv, err := valkey.New(valkey.Config{
//		Address:   "localhost:6379",
//		KeyPrefix: "llmrank:",
//	})
//	if err != nil {
//		return err
//	}
//	defer kv.Close()
//
//	creds := storage.NewCredentialStore(kv)
package valkey
