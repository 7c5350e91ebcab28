package storage

// Key namespaces inside the KV space.
const (
	NamespaceCode    = "oauth:code:"
	NamespaceAccess  = "oauth:access:"
	NamespaceRefresh = "oauth:refresh:"
	NamespaceClient  = "oauth:client:"
)

// CodeKey returns the key of an authorization code.
func CodeKey(code string) string { return NamespaceCode + code }

// AccessTokenKey returns the key of an access token.
func AccessTokenKey(token string) string { return NamespaceAccess + token }

// RefreshTokenKey returns the key of a refresh token.
func RefreshTokenKey(token string) string { return NamespaceRefresh + token }

// ClientKey returns the key of a registered client.
func ClientKey(clientID string) string { return NamespaceClient + clientID }
