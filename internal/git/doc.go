// Package git drives the git binary for a single task directory.
//
// Every invocation goes through util.CommandRunner with "-C <dir>", so tests
// script git by command line with util.MockCommandRunner. The client reports
// raw outcomes (conflicted paths, push rejection); deciding what they mean for
// synchronization is left to the caller.
//
// Credentials are passed through the environment (GIT_CONFIG_COUNT) instead
// of the command line so tokens never show up in process listings.
package git
