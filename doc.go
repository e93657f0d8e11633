// Package identity manages user identities and their roles.
//
// Local identities sign up with a login, an email and a password. The
// password is stored as a salted SHA-256 digest whose salt is derived from
// a service wide secret plus the login and email, so changing either of
// those invalidates the stored digest.
//
// Federated identities come from Google or GitHub. A Reconciler maps a
// provider profile onto an existing identity or creates a new one with the
// default USER role. A local identity is never taken over by a federated
// login that shares its email.
//
// Signin and federated logins both return a signed bearer token carrying
// the login and the ROLE_ prefixed authorities. Roles are read from the
// store on every login, never from the previous token.
package identity
