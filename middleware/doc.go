// Package middleware holds the net/http middleware a password reset endpoint
// needs in front of goReset.Engine.
//
//   - [ClientIP] puts the caller address on the request context for the
//     redemption throttle.
//   - [NoStore] keeps reset pages and their token-bearing URLs out of caches
//     and Referer headers.
//
// The middleware never calls the Engine and makes no reset decisions.
package middleware
