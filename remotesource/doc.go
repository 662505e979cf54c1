// Package remotesource provides the OpenAI stored-prompt source. Use New to
// create a Source; Fetch posts a prompt reference to the Responses endpoint,
// retries rate-limited, timed-out and failed attempts within a fixed budget,
// and caches successful results for the adapter's lifetime.
package remotesource
