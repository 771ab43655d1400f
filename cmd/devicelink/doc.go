// Package main hosts the devicelink CLI.
//
// The Cobra command tree loads configuration, applies flag overrides and
// hands off to the pipeline package for runs, to the store for reports on
// past runs, and to the shared lookups for interactive inspection. Heavy
// lifting stays in internal packages; commands only wire and render.
package main
