// Package util holds small helpers shared by the gateway packages that have no
// better home, such as log-safe truncation of credentials.
package util
