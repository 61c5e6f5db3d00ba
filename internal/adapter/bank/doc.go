// Package bank talks to the acquiring bank that authorizes card payments.
package bank
