// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when constructing conversations, scripting model
// behavior and injecting backend failures. Not intended for production usage.
package testutil
