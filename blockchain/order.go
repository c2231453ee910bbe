package blockchain

import (
	"fmt"

	"github.com/meritfoundation/merit/address"
	"github.com/meritfoundation/merit/referral"
)

// OrderReferrals sorts a block's referrals parent-before-child, breaking
// ties by the referrals' position in the block. known reports whether an
// address is already beaconed in the active chain. A block whose referrals
// contain a cycle, or one whose parent is neither on chain nor in the
// block, is rejected.
func OrderReferrals(refs []*referral.Referral, known func(address.Address) bool) ([]*referral.Referral, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	inBlock := make(map[address.Address]int, len(refs))
	for i, r := range refs {
		inBlock[r.Address()] = i
	}

	placed := make(map[address.Address]bool, len(refs))
	ordered := make([]*referral.Referral, 0, len(refs))
	pending := len(refs)

	for pending > 0 {
		progressed := false
		for _, r := range refs {
			addr := r.Address()
			if placed[addr] {
				continue
			}
			parent := r.ParentAddress
			ready := parent == addr || placed[parent] || known(parent)
			if !ready {
				if _, ok := inBlock[parent]; !ok {
					return nil, ruleError(ErrBadReferralOrder, fmt.Sprintf(
						"referral %v has unreachable parent %v", addr, parent))
				}
				continue
			}
			placed[addr] = true
			ordered = append(ordered, r)
			pending--
			progressed = true
		}
		if !progressed {
			return nil, ruleError(ErrBadReferralOrder,
				"referral parent relationships form a cycle")
		}
	}
	return ordered, nil
}
