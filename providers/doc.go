// Package providers defines the external identity collaborator used by the
// interactive consent flow.
//
// An IdentityProvider verifies a user's email and password against the
// dashboard's sign-in API and, with the resulting session, mints a plaintext API
// token. That API token becomes the user identity carried by authorization codes
// and access tokens.
//
// Implementations are provided in subpackages:
//   - providers/api: HTTP client for the dashboard sign-in and token APIs
//   - providers/mock: function-field mock for tests
package providers
