// Package commands defines the relayd CLI: serve runs the relay, and
// version prints build metadata. Configuration comes from the
// environment (optionally a .env file) with flag overrides.
package commands
