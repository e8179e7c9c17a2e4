// Package run drives registered tests through their lifecycle phases on a
// shared single-threaded task loop. Each cycle walks one test through
// setUp, body, and tearDown in order, waiting for the loop to go idle after
// every phase, collecting phase failures without aborting the cycle, and
// reporting the settled outcome to the suite registry.
package run
