// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import "fmt"

// ErrorKind identifies a kind of consensus rule violation. Rule errors mark
// the offending block invalid so the chain selector skips the tip; they are
// returned up the validation stack, never logged as recovery.
type ErrorKind string

// These constants are used to identify a specific RuleError.
const (
	// ErrPrevBlockMismatch indicates the block does not build on the
	// current tip.
	ErrPrevBlockMismatch = ErrorKind("ErrPrevBlockMismatch")

	// ErrBadMerkleRoot indicates the header's merkle root does not match
	// the root computed over the block's three object streams.
	ErrBadMerkleRoot = ErrorKind("ErrBadMerkleRoot")

	// ErrUnexpectedDifficulty indicates the header's bits field differs
	// from the retarget calculation over the active chain.
	ErrUnexpectedDifficulty = ErrorKind("ErrUnexpectedDifficulty")

	// ErrBadEdgeBits indicates the header's edge_bits field differs from
	// the memory-hardness retarget, or is outside the allowed set.
	ErrBadEdgeBits = ErrorKind("ErrBadEdgeBits")

	// ErrBadCycle indicates the header's cuckoo cycle failed verification.
	ErrBadCycle = ErrorKind("ErrBadCycle")

	// ErrHighHash indicates the header hash exceeds the target encoded in
	// the bits field.
	ErrHighHash = ErrorKind("ErrHighHash")

	// ErrBadBlockStructure indicates a malformed stream layout: a missing
	// or misplaced coinbase, a coin transaction in the invite stream or
	// vice versa, or an invite stream before its activation height.
	ErrBadBlockStructure = ErrorKind("ErrBadBlockStructure")

	// ErrBadReferralOrder indicates the block's referrals contain a cycle
	// or a referral whose parent is neither on chain nor in the block.
	ErrBadReferralOrder = ErrorKind("ErrBadReferralOrder")

	// ErrBadReferral indicates a referral failed graph admission: bad
	// signature, duplicate address, or taken alias.
	ErrBadReferral = ErrorKind("ErrBadReferral")

	// ErrMissingTxOut indicates a transaction spends an output that is
	// missing from the view, already spent, or in the wrong token stream.
	ErrMissingTxOut = ErrorKind("ErrMissingTxOut")

	// ErrImmatureSpend indicates a coinbase output was spent before
	// reaching coinbase maturity.
	ErrImmatureSpend = ErrorKind("ErrImmatureSpend")

	// ErrSpendTooHigh indicates a transaction's outputs exceed its inputs.
	ErrSpendTooHigh = ErrorKind("ErrSpendTooHigh")

	// ErrBadTxOutValue indicates an output value outside [0, MaxMoney],
	// or an invite output minting zero invites.
	ErrBadTxOutValue = ErrorKind("ErrBadTxOutValue")

	// ErrUnconfirmedRecipient indicates a coin output pays an address
	// that is not confirmed at this tip.
	ErrUnconfirmedRecipient = ErrorKind("ErrUnconfirmedRecipient")

	// ErrUnbeaconedRecipient indicates an invite output pays an address
	// with no referral on chain or in the block.
	ErrUnbeaconedRecipient = ErrorKind("ErrUnbeaconedRecipient")

	// ErrBadCoinbaseValue indicates the coinbase does not pay exactly the
	// subsidy split plus fees, has the wrong number of outputs, or pays the
	// wrong lottery winners.
	ErrBadCoinbaseValue = ErrorKind("ErrBadCoinbaseValue")

	// ErrBadInviteMint indicates the invite coinbase disagrees with the
	// invite lottery's winner list for this block.
	ErrBadInviteMint = ErrorKind("ErrBadInviteMint")

	// ErrBadUndoData indicates a block undo record that cannot be parsed,
	// including a misplaced invite-undo sentinel.
	ErrBadUndoData = ErrorKind("ErrBadUndoData")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// RuleError identifies a rule violation: the block is syntactically fine
// but breaks a consensus rule. It has full support for errors.Is and
// errors.As, so callers can detect the specific kind.
type RuleError struct {
	Err         error
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e RuleError) Unwrap() error {
	return e.Err
}

// ruleError creates a RuleError given a set of arguments.
func ruleError(kind ErrorKind, desc string) RuleError {
	return RuleError{Err: kind, Description: desc}
}

// AssertError identifies an error that indicates an internal code
// consistency issue: an undo path that does not reverse cleanly, an ANV
// sum that fails to balance, a database write that fails mid-apply. These
// indicate implementation bugs and must never be swallowed.
type AssertError string

// Error satisfies the error interface.
func (e AssertError) Error() string {
	return "assertion failed: " + string(e)
}

// assertError wraps an unexpected low-level failure in an AssertError.
func assertError(format string, args ...interface{}) AssertError {
	return AssertError(fmt.Sprintf(format, args...))
}
