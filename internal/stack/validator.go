// Package stack enforces which stack identifiers a storage block admits.
//
// Block D1 (id 7) is strict and only takes stack "D1". Blocks CY1..CY6 accept
// any stack: the yard relaxed that rule so predictions are never held back by
// stack labels the gate system reports inconsistently.
package stack

import (
	"fmt"
	"strings"

	"github.com/ChuLiYu/artg-queue/pkg/types"
)

var allowedStacks = map[int][]string{
	types.BlockD1: {"D1"},
}

// RejectionError reports a stack that the target block does not admit.
type RejectionError struct {
	Block   int
	Stack   string
	Allowed []string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("stack '%s' is not allowed for block %s; this block only accepts stack: %s",
		e.Stack, types.BlockLabel(e.Block), strings.Join(e.Allowed, ", "))
}

func (e *RejectionError) Unwrap() error { return types.ErrStackNotAllowed }

// AllowedStacks returns the admissible stacks of a block; nil means any.
func AllowedStacks(blockID int) []string {
	allowed := allowedStacks[blockID]
	if allowed == nil {
		return nil
	}
	return append([]string(nil), allowed...)
}

// Validate checks stack against the admission rule of blockID.
func Validate(stack string, blockID int) error {
	if !types.ValidBlock(blockID) {
		return fmt.Errorf("%w: %d", types.ErrInvalidBlock, blockID)
	}

	allowed, strict := allowedStacks[blockID]
	if !strict {
		return nil
	}

	normalized := strings.ToUpper(strings.TrimSpace(stack))
	for _, s := range allowed {
		if normalized == s {
			return nil
		}
	}
	return &RejectionError{Block: blockID, Stack: stack, Allowed: AllowedStacks(blockID)}
}
