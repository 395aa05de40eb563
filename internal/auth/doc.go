// Package auth authenticates API and WebSocket callers.
//
// Users sign in with the identity provider and present its HS256 access
// token as "Authorization: Bearer <token>" (or ?access_token= on a WebSocket
// upgrade). JWTVerifier checks the signature with the configured secret and
// reads the "sub" and "email" claims.
//
// HTTPAuthMiddleware places an AuthContext on the request context:
//
//	mux.Handle("/api/", auth.HTTPAuthMiddleware(verifier)(api))
//
// With no verifier configured every request runs as AnonymousUserID.
package auth
