// Package fssource provides the local file prompt source. Use New to create a
// Source; Fetch resolves an id to a file under the base directory, probing
// versioned names and the extensions .txt, .text, .json, .yaml and .yml.
package fssource
