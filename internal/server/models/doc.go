// Package models defines the relay's records: signers, sign-in facts and the
// cast ledger.
package models
