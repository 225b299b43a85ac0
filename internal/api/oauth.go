package api

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"

	"github.com/jmbarlow/roomkit/internal/oauth"
)

// tokenResponse is the token endpoint wire format. The scope is echoed
// back so clients learn what they actually got after narrowing.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	RefreshExpiresIn int64  `json:"refresh_expires_in,omitempty"`
	Scope            string `json:"scope"`
}

// handleToken implements the OAuth token endpoint for all four grants.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, "invalid_request", "malformed form body")
		return
	}

	clientID, clientSecret := clientCredentials(r)
	req := oauth.TokenRequest{
		GrantType:    oauth.GrantType(r.PostFormValue("grant_type")),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		RefreshToken: r.PostFormValue("refresh_token"),
		Username:     r.PostFormValue("username"),
		Password:     r.PostFormValue("password"),
		Scope:        r.PostFormValue("scope"),
	}

	pair, err := s.oauth.Token(r.Context(), req)
	if err != nil {
		writeTokenError(w, s.logger, err)
		return
	}

	writeTokenResponse(w, pair)
}

// writeTokenResponse writes a minted pair with the caching headers
// RFC 6749 requires for token responses.
func writeTokenResponse(w http.ResponseWriter, pair *oauth.TokenPair) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:      pair.AccessToken,
		TokenType:        pair.TokenType,
		ExpiresIn:        pair.ExpiresIn,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresIn: pair.RefreshExpiresIn,
		Scope:            pair.Scope.String(),
	})
}

// handleRevoke implements RFC 7009 revocation. Possessing the token is
// the only credential required, and every token outcome is a 200:
// unknown and already-dead tokens succeed the same as live ones.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, "invalid_request", "malformed form body")
		return
	}

	err := s.oauth.Revoke(r.Context(), oauth.RevocationRequest{
		Token:         r.PostFormValue("token"),
		TokenTypeHint: r.PostFormValue("token_type_hint"),
	})
	if err != nil {
		s.logger.Error("revocation failure", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// handleIntrospect implements RFC 7662. Client authentication is
// mandatory; once past it, the answer for any token is a 200 with an
// active flag, never an error.
func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, "invalid_request", "malformed form body")
		return
	}

	clientID, clientSecret := clientCredentials(r)
	if _, err := s.oauth.AuthenticateClient(r.Context(), clientID, clientSecret); err != nil {
		if errors.Is(err, oauth.ErrInvalidClient) {
			writeOAuthError(w, "invalid_client", "")
			return
		}
		s.logger.Error("introspection client lookup failed", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, s.oauth.Introspect(r.Context(), r.PostFormValue("token")))
}

// authorizeFormTemplate is the minimal login-and-consent page shown to
// the resource owner. Request parameters ride along as hidden fields.
var authorizeFormTemplate = template.Must(template.New("authorize").Parse(`<!DOCTYPE html>
<html>
<head><title>Roomkit - Authorize {{.ClientName}}</title></head>
<body>
<h1>{{.ClientName}} wants access</h1>
<p>Requested scopes: {{.Scope}}</p>
<form method="POST" action="/oauth/authorize">
  <input type="hidden" name="client_id" value="{{.ClientID}}">
  <input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
  <input type="hidden" name="scope" value="{{.Scope}}">
  <input type="hidden" name="state" value="{{.State}}">
  <input type="hidden" name="code_challenge" value="{{.CodeChallenge}}">
  <input type="hidden" name="code_challenge_method" value="{{.CodeChallengeMethod}}">
  <label>Username <input type="text" name="username"></label>
  <label>Password <input type="password" name="password"></label>
  <button type="submit" name="decision" value="approve">Approve</button>
  <button type="submit" name="decision" value="deny">Deny</button>
</form>
</body>
</html>
`))

type authorizePageData struct {
	ClientName          string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// handleAuthorizeForm validates the authorization request and renders
// the consent page. Requests with an unregistered client or redirect URI
// get a JSON error; nothing is ever redirected to an unvetted URI.
func (s *Server) handleAuthorizeForm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if rt := q.Get("response_type"); rt != "" && rt != "code" {
		writeBadRequest(w, "unsupported response_type")
		return
	}

	req := oauth.IssueCodeRequest{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}

	client, scopes, err := s.oauth.ValidateAuthorizeRequest(r.Context(), req)
	if err != nil {
		s.writeAuthorizeError(w, r, req.RedirectURI, q.Get("state"), err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderErr := authorizeFormTemplate.Execute(w, authorizePageData{
		ClientName:          client.Name,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               scopes.String(),
		State:               q.Get("state"),
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	})
	if renderErr != nil {
		s.logger.Error("rendering authorize page", "error", renderErr)
	}
}

// handleAuthorizeSubmit processes the consent form: authenticates the
// resource owner, records consent as a single-use code, and redirects
// back to the client with code and state.
func (s *Server) handleAuthorizeSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeBadRequest(w, "malformed form body")
		return
	}

	req := oauth.IssueCodeRequest{
		ClientID:            r.PostFormValue("client_id"),
		RedirectURI:         r.PostFormValue("redirect_uri"),
		Scope:               r.PostFormValue("scope"),
		CodeChallenge:       r.PostFormValue("code_challenge"),
		CodeChallengeMethod: r.PostFormValue("code_challenge_method"),
	}
	state := r.PostFormValue("state")

	// Re-validate before trusting anything from the form round trip.
	if _, _, err := s.oauth.ValidateAuthorizeRequest(r.Context(), req); err != nil {
		s.writeAuthorizeError(w, r, req.RedirectURI, state, err)
		return
	}

	if r.PostFormValue("decision") == "deny" {
		redirectWithError(w, r, req.RedirectURI, state, "access_denied")
		return
	}

	userID, err := s.auth.AuthenticateUser(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		writeUnauthorized(w, "invalid username or password")
		return
	}
	req.UserID = userID

	code, err := s.oauth.IssueCode(r.Context(), req)
	if err != nil {
		s.writeAuthorizeError(w, r, req.RedirectURI, state, err)
		return
	}

	target, err := url.Parse(req.RedirectURI)
	if err != nil {
		writeBadRequest(w, "invalid redirect_uri")
		return
	}
	values := target.Query()
	values.Set("code", code.Code)
	if state != "" {
		values.Set("state", state)
	}
	target.RawQuery = values.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// writeAuthorizeError reports an authorization failure. Failures that
// happen before the redirect URI is proven registered are answered
// directly; everything after is relayed to the client via redirect.
func (s *Server) writeAuthorizeError(w http.ResponseWriter, r *http.Request, redirectURI, state string, err error) {
	switch {
	case errors.Is(err, oauth.ErrClientNotFound), errors.Is(err, oauth.ErrRedirectMismatch):
		writeBadRequest(w, "unknown client or unregistered redirect_uri")
	case errors.Is(err, oauth.ErrInvalidScope):
		redirectWithError(w, r, redirectURI, state, "invalid_scope")
	case errors.Is(err, oauth.ErrUnauthorizedClient):
		redirectWithError(w, r, redirectURI, state, "unauthorized_client")
	case errors.Is(err, oauth.ErrPKCERequired):
		redirectWithError(w, r, redirectURI, state, "invalid_request")
	default:
		s.logger.Error("authorize endpoint failure", "error", err)
		redirectWithError(w, r, redirectURI, state, "server_error")
	}
}

// redirectWithError relays a protocol error to a registered redirect URI.
func redirectWithError(w http.ResponseWriter, r *http.Request, redirectURI, state, code string) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		writeBadRequest(w, "invalid redirect_uri")
		return
	}
	values := target.Query()
	values.Set("error", code)
	if state != "" {
		values.Set("state", state)
	}
	target.RawQuery = values.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// clientCredentials extracts client authentication from HTTP Basic auth
// or, failing that, from the form body.
func clientCredentials(r *http.Request) (string, string) {
	if id, secret, ok := r.BasicAuth(); ok {
		if decoded, err := url.QueryUnescape(id); err == nil {
			id = decoded
		}
		if decoded, err := url.QueryUnescape(secret); err == nil {
			secret = decoded
		}
		return id, secret
	}
	return r.PostFormValue("client_id"), r.PostFormValue("client_secret")
}
