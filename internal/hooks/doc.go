// Package hooks parses publish expressions into ordered stages.
//
// A hook tags one or more task subscriptions. Expressions are comma
// separated lists of compound hooks; a compound hook joins hooks with dots
// and runs all of them concurrently as one stage. An empty expression is
// the single hook "default".
package hooks
