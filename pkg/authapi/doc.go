// Package authapi is the client for the Resumade identity endpoints. It
// wraps login, register, refresh, logout and profile behind a uniform
// typed error contract and is the only code path allowed to write the
// token store as a side effect of a successful network result.
package authapi
