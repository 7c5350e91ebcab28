package oauth

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lsendel/llmrank-mcp-gateway/providers"
	"github.com/lsendel/llmrank-mcp-gateway/security"
	"github.com/lsendel/llmrank-mcp-gateway/server"
)

// Banner messages never reveal whether an account exists.
const (
	consentMsgMissingFields = "Enter your email and password."
	consentMsgInvalid       = "Invalid email or password."
	consentMsgUnavailable   = "Sign-in is temporarily unavailable. Please try again in a moment."
)

// ConsentAuthenticator renders a sign-in and consent page. On submission it
// signs the user in with the identity provider and mints an API token that
// becomes the user identity of the issued code.
type ConsentAuthenticator struct {
	handler  *Handler
	provider providers.IdentityProvider
	tmpl     *template.Template
}

var _ AuthenticationStrategy = (*ConsentAuthenticator)(nil)

func newConsentAuthenticator(h *Handler, provider providers.IdentityProvider) *ConsentAuthenticator {
	return &ConsentAuthenticator{
		handler:  h,
		provider: provider,
		tmpl:     consentTemplate,
	}
}

// Mode implements AuthenticationStrategy.
func (a *ConsentAuthenticator) Mode() string { return AuthModeConsent }

// Authenticate implements AuthenticationStrategy. GET renders the page; POST
// verifies the submitted credentials and re-renders the page on failure.
func (a *ConsentAuthenticator) Authenticate(w http.ResponseWriter, r *http.Request, req *server.AuthorizationRequest) (*server.Identity, error) {
	if r.Method != http.MethodPost {
		a.render(w, r, req, http.StatusOK, "", "")
		return nil, nil
	}

	ctx := r.Context()
	clientIP := a.handler.clientIP(r)
	email := strings.TrimSpace(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")

	if email == "" || password == "" {
		a.render(w, r, req, http.StatusBadRequest, email, consentMsgMissingFields)
		return nil, nil
	}

	session, err := a.provider.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, providers.ErrInvalidCredentials) {
			a.handler.server.Auditor.LogAuthFailure(security.EventAuthFailure, req.ClientID, clientIP, "invalid_credentials")
			a.render(w, r, req, http.StatusUnauthorized, email, consentMsgInvalid)
			return nil, nil
		}
		a.handler.logger.Error("Identity provider sign-in failed", "client_id", req.ClientID, "error", err)
		a.render(w, r, req, http.StatusInternalServerError, email, consentMsgUnavailable)
		return nil, nil
	}

	apiToken, err := a.provider.MintAPIToken(ctx, session, a.tokenName(r, req))
	if err != nil {
		a.handler.logger.Error("API token issuance failed", "client_id", req.ClientID, "error", err)
		a.render(w, r, req, http.StatusInternalServerError, email, consentMsgUnavailable)
		return nil, nil
	}

	return &server.Identity{UserID: apiToken, Scopes: req.Scopes}, nil
}

// tokenName labels the minted API token in the user's dashboard.
func (a *ConsentAuthenticator) tokenName(r *http.Request, req *server.AuthorizationRequest) string {
	return fmt.Sprintf("MCP: %s (%s)", a.clientName(r, req.ClientID), uuid.NewString()[:8])
}

// clientName returns the registered name of clientID, or the id itself for
// clients that never registered.
func (a *ConsentAuthenticator) clientName(r *http.Request, clientID string) string {
	client, err := a.handler.server.GetClient(r.Context(), clientID)
	if err != nil || client.ClientName == "" {
		return clientID
	}
	return client.ClientName
}

type consentPageData struct {
	ServiceName string
	ClientName  string
	Scopes      []string
	Email       string
	Error       string
	Action      string

	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// render writes the page with status. The password field is always empty.
func (a *ConsentAuthenticator) render(w http.ResponseWriter, r *http.Request, req *server.AuthorizationRequest, status int, email, message string) {
	data := consentPageData{
		ServiceName:         a.handler.config.ServiceName,
		ClientName:          a.clientName(r, req.ClientID),
		Scopes:              req.Scopes,
		Email:               email,
		Error:               message,
		Action:              PathAuthorize,
		ResponseType:        req.ResponseType,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	}

	var buf bytes.Buffer
	if err := a.tmpl.Execute(&buf, data); err != nil {
		a.handler.logger.Error("Failed to render consent page", "error", err)
		a.handler.writeError(w, ErrorCodeServerError, "Internal server error", http.StatusInternalServerError)
		return
	}

	security.SetPageSecurityHeaders(w, a.handler.server.Config.Issuer)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

var consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Sign in to {{.ServiceName}}</title>
<style>
body{font-family:system-ui,-apple-system,sans-serif;background:#f6f7f9;margin:0;display:flex;justify-content:center;padding:48px 16px}
main{background:#fff;border-radius:12px;box-shadow:0 1px 4px rgba(0,0,0,.08);max-width:420px;width:100%;padding:32px}
h1{font-size:20px;margin:0 0 8px}
p{color:#4b5563;font-size:14px}
.error{background:#fef2f2;color:#b91c1c;border-radius:8px;padding:10px 12px;font-size:14px}
label{display:block;font-size:14px;margin:16px 0 4px}
input[type=email],input[type=password]{width:100%;box-sizing:border-box;padding:10px;border:1px solid #d1d5db;border-radius:8px}
ul{font-size:13px;color:#374151;padding-left:20px}
button{margin-top:24px;width:100%;padding:12px;border:0;border-radius:8px;background:#111827;color:#fff;font-size:15px;cursor:pointer}
</style>
</head>
<body>
<main>
<h1>Sign in to {{.ServiceName}}</h1>
<p><strong>{{.ClientName}}</strong> is requesting access to your account.</p>
{{if .Error}}<div class="error" role="alert">{{.Error}}</div>{{end}}
<form method="post" action="{{.Action}}">
<input type="hidden" name="response_type" value="{{.ResponseType}}">
<input type="hidden" name="client_id" value="{{.ClientID}}">
<input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
<input type="hidden" name="scope" value="{{.Scope}}">
<input type="hidden" name="state" value="{{.State}}">
<input type="hidden" name="code_challenge" value="{{.CodeChallenge}}">
<input type="hidden" name="code_challenge_method" value="{{.CodeChallengeMethod}}">
<label for="email">Email</label>
<input id="email" type="email" name="email" value="{{.Email}}" autocomplete="username" required>
<label for="password">Password</label>
<input id="password" type="password" name="password" value="" autocomplete="current-password" required>
{{if .Scopes}}<p>This will allow {{.ClientName}} to:</p>
<ul>{{range .Scopes}}<li>{{.}}</li>{{end}}</ul>{{end}}
<button type="submit">Sign in and allow</button>
</form>
</main>
</body>
</html>
`))
