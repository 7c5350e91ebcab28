// Package testutil provides test fixtures and a controllable clock shared by the
// gateway's package tests.
package testutil
