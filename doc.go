// Package authkit implements session-based authentication for server-rendered
// web applications backed by a relational users table.
//
// The package is organized around a small set of collaborating components:
//
//   - UserStore: lookups, existence checks and inserts over the users table.
//     Two backends ship with the module: stores/sqlstore (sqlx, named
//     queries) and stores/gormstore (GORM).
//   - LocalAuth: email + password credential verification with
//     distinguishable failure reasons.
//   - Sessions: serializes an authenticated user to its numeric id inside an
//     scs-managed session and resolves it back to a full record per request.
//   - AccountLinker: find-or-create of local accounts from third-party OAuth
//     profiles, keyed on (provider, provider id).
//   - Registrar + VerificationTokens: registration with a signed, one-hour
//     email verification token.
//   - Admin: session inspection and revocation for the admin panel.
//
// The Auth type in mux.go wires all of the above onto a gorilla/mux router.
// OAuth provider handlers (Google, GitHub) live in the oauth2 subpackage and
// are mounted with Auth.AddProvider.
package authkit
