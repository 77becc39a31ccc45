// Package remote provides the HTTP client for the fleet management API.
//
// # Overview
//
// Each entity kind is exposed as a REST collection. A Resource binds the client
// to one kind and optional parent scope and implements EntityAPI:
//
//   - GET    /api/{kind}?parent={scope}: list the collection
//   - POST   /api/{kind}: create from a draft, returns the record with its server id
//   - PATCH  /api/{kind}/{id}: apply a partial update, returns the updated record
//   - DELETE /api/{kind}/{id}: remove the record
//
// List responses are wrapped as {"items": [...]}; single records are returned
// bare.
//
// # Client Usage
//
//	client, err := remote.NewClient("127.0.0.1:8080", remote.WithToken(token))
//	if err != nil {
//		log.Fatalf("failed to create client: %v", err)
//	}
//	rigs := client.Resource(entity.KindRig, "")
//	items, err := rigs.List(ctx)
//
// # Error Handling
//
// Every failure is returned as a *syncerr.Error:
//
//   - transport failures (refused, timeout, DNS): CodeNetworkUnavailable
//   - 4xx/5xx responses: CodeRemoteRejected, with the status in Metadata
//   - malformed payloads: CodeSerializationFailure
//
// The client never retries. Batched saves are retried by the autosave
// scheduler; singleton creates and deletes are retried by the user.
//
// # Timestamps
//
// Records carry timestamps as strings. RFC3339, RFC3339Nano, the legacy
// "2006-01-02 15:04:05" layout (local time) and bare dates are accepted;
// anything else decodes as the zero time.
//
// # Thread Safety
//
// Client and Resource are safe for concurrent use.
package remote
