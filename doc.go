// Package auth implements the forum token gateway: signed session and
// password reset tokens, revocation, and brute force lockout.
//
// Tokens:
//   - TokenCodec mints and decodes HS256 tokens. Decode only checks the
//     signature and structure, so TokenService decides what an expired or
//     revoked token means.
//   - Every token carries a purpose. Session tokens authenticate requests,
//     password reset tokens only authorize a single credential change.
//
// Lockout:
//   - LoginGuard counts consecutive failures through the directory. The
//     increment and the lock decision happen in one atomic step, so two
//     racing failures can never both see the counter below the threshold.
//
// Stores:
//   - UsersRepository and RevocationsRepository are the bun backed stores,
//     memstore has the in-process versions used for tests and single node
//     deployments.
//
// HTTP:
//   - middleware/gateway authenticates fiber requests and AuthController
//     exposes register, login, logout and password flows on any go-router
//     router, see RegisterAuthRoutes.
package auth
