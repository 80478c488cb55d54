// Package strategy holds the pluggable policy objects a fusion algorithm
// composes: target prioritizers (which target matters most) and device
// assignment strategies (which device should service it).
//
// Base carries one of each behind its own RWMutex so an operator can swap
// a policy while an algorithm call is in flight; algorithms read the
// current policy through Base for every decision rather than caching it
// across calls.
package strategy
