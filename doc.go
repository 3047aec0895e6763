// Package authcore implements the authentication, session, and authorization
// core of an e-commerce backend: bcrypt credential hashing, dual-keyed JWT
// access/refresh tokens with rotation and replay detection, email OTP and TOTP
// second factors, device-bound sessions, federated Google login, and a
// role-permission authorization guard.
//
// The package is a storage-agnostic engine. Relational concerns (users, roles,
// permissions) stay behind the [UserRepository] and [RoleRepository]
// interfaces supplied by the caller; Redis is the engine's own operational
// store for devices, refresh-token rows, verification codes, and the
// role-permission cache.
//
// Engines are built once through [Builder.Build] and are safe for concurrent
// use afterwards. Request-scoped client metadata (IP, User-Agent) travels on
// the context via [WithClientIP] and [WithUserAgent].
package authcore
