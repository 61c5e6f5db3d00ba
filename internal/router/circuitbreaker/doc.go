// Package circuitbreaker implements a three-state call gate. Closed circuits
// record call outcomes in a count-based sliding window and open once the
// failure rate reaches the configured threshold; open circuits reject calls
// until a cool-down elapses; half-open circuits admit a bounded number of
// trials whose outcomes decide between closing and re-opening.
package circuitbreaker
