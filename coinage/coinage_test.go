package coinage

import (
	"path/filepath"
	"testing"

	"github.com/decred/dcrd/chaincfg/chainhash"

	"github.com/meritfoundation/merit/address"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "coinage.ldb"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestAddAndSpendUnspent(t *testing.T) {
	idx := openTestIndex(t)
	var addr address.Address
	addr[0] = 0x01
	txid := chainhash.HashH([]byte("tx1"))

	if err := idx.AddUnspent(address.PubKeyHash, false, addr, txid, 0, 5000, 10, 1, false); err != nil {
		t.Fatalf("AddUnspent: %v", err)
	}

	unspent, err := idx.UnspentForAddress(address.PubKeyHash, false, addr)
	if err != nil {
		t.Fatalf("UnspentForAddress: %v", err)
	}
	if len(unspent) != 1 || unspent[0].Value != 5000 {
		t.Fatalf("UnspentForAddress = %+v, want one output of value 5000", unspent)
	}

	if err := idx.SpendUnspent(address.PubKeyHash, false, addr, txid, 0, 20, 2); err != nil {
		t.Fatalf("SpendUnspent: %v", err)
	}
	unspent, err = idx.UnspentForAddress(address.PubKeyHash, false, addr)
	if err != nil {
		t.Fatalf("UnspentForAddress after spend: %v", err)
	}
	if len(unspent) != 0 {
		t.Fatalf("UnspentForAddress after spend = %+v, want empty", unspent)
	}
}

func TestCoinsForAddressExcludesInvitesAndFutureHeights(t *testing.T) {
	idx := openTestIndex(t)
	var addr address.Address
	addr[0] = 0x02
	coinTx := chainhash.HashH([]byte("coin"))
	inviteTx := chainhash.HashH([]byte("invite"))
	futureTx := chainhash.HashH([]byte("future"))

	if err := idx.AddUnspent(address.PubKeyHash, false, addr, coinTx, 0, 1000, 5, 1, false); err != nil {
		t.Fatalf("AddUnspent coin: %v", err)
	}
	if err := idx.AddUnspent(address.PubKeyHash, true, addr, inviteTx, 0, 1, 5, 2, false); err != nil {
		t.Fatalf("AddUnspent invite: %v", err)
	}
	if err := idx.AddUnspent(address.PubKeyHash, false, addr, futureTx, 0, 2000, 1000, 3, false); err != nil {
		t.Fatalf("AddUnspent future: %v", err)
	}

	coins, err := idx.CoinsForAddress(addr, 100)
	if err != nil {
		t.Fatalf("CoinsForAddress: %v", err)
	}
	if len(coins) != 1 || coins[0].Amount != 1000 {
		t.Fatalf("CoinsForAddress = %+v, want only the one mature non-invite coin", coins)
	}
}

func TestUnspentKeysDoNotCollideAcrossInviteFlag(t *testing.T) {
	idx := openTestIndex(t)
	var addr address.Address
	addr[0] = 0x03
	txid := chainhash.HashH([]byte("shared-txid"))

	if err := idx.AddUnspent(address.PubKeyHash, false, addr, txid, 0, 100, 1, 1, false); err != nil {
		t.Fatalf("AddUnspent coin: %v", err)
	}
	if err := idx.AddUnspent(address.PubKeyHash, true, addr, txid, 0, 1, 1, 1, false); err != nil {
		t.Fatalf("AddUnspent invite: %v", err)
	}

	coinUnspent, err := idx.UnspentForAddress(address.PubKeyHash, false, addr)
	if err != nil {
		t.Fatalf("UnspentForAddress(coin): %v", err)
	}
	inviteUnspent, err := idx.UnspentForAddress(address.PubKeyHash, true, addr)
	if err != nil {
		t.Fatalf("UnspentForAddress(invite): %v", err)
	}
	if len(coinUnspent) != 1 || len(inviteUnspent) != 1 {
		t.Fatalf("expected one coin and one invite output, got %d and %d", len(coinUnspent), len(inviteUnspent))
	}
}
