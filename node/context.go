// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"path/filepath"

	"github.com/meritfoundation/merit/anv"
	"github.com/meritfoundation/merit/blockchain"
	"github.com/meritfoundation/merit/chaincfg"
	"github.com/meritfoundation/merit/coinage"
	logpkg "github.com/meritfoundation/merit/log"
	"github.com/meritfoundation/merit/mempool"
	"github.com/meritfoundation/merit/referral"
	"github.com/meritfoundation/merit/reward"
)

// Context is the fully wired set of subsystems a running node threads
// through every operation: chain parameters, the on-disk referral graph,
// the ANV/CGS engine, the coin-age index, the reward/subsidy cache, the
// mempool, and the chain state that connects blocks against all of them.
// Nothing here is a package-level global.
type Context struct {
	Params *chaincfg.Params

	Graph   *referral.Graph
	CGS     *anv.Engine
	CoinAge *coinage.Index
	Subsidy *reward.Cache
	Mempool *mempool.Pool
	Chain   *blockchain.Chain
}

// New opens every persistent subsystem under dataDir and wires them
// together into a Context for params. Callers must Close the returned
// Context when done.
func New(dataDir string, params *chaincfg.Params) (*Context, error) {
	graph, err := referral.Open(filepath.Join(dataDir, "graph"), params.GenesisAddress, params.SaferAliasActivationHeight)
	if err != nil {
		return nil, err
	}

	cgs, err := anv.Open(filepath.Join(dataDir, "anv"), graph)
	if err != nil {
		graph.Close()
		return nil, err
	}

	coinAge, err := coinage.Open(filepath.Join(dataDir, "coinage"))
	if err != nil {
		cgs.Close()
		graph.Close()
		return nil, err
	}

	subsidy := reward.NewCache(params.Subsidy)
	pool := mempool.New(graph)

	chain, err := blockchain.Open(filepath.Join(dataDir, "chain"), params, graph, cgs, coinAge, subsidy, pool)
	if err != nil {
		coinAge.Close()
		cgs.Close()
		graph.Close()
		return nil, err
	}

	logpkg.Node.Infof("node: opened data directory %s for network %s", dataDir, params.Name)

	return &Context{
		Params:  params,
		Graph:   graph,
		CGS:     cgs,
		CoinAge: coinAge,
		Subsidy: subsidy,
		Mempool: pool,
		Chain:   chain,
	}, nil
}

// Close releases every persistent subsystem's underlying handle.
func (c *Context) Close() error {
	var firstErr error
	if err := c.Chain.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.CoinAge.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.CGS.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.Graph.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// ParamsForConfig selects the chaincfg.Params matching cfg's network flags,
// defaulting to mainnet.
func ParamsForConfig(cfg *Config) *chaincfg.Params {
	switch {
	case cfg.TestNet:
		return chaincfg.TestNetParams()
	case cfg.RegNet:
		return chaincfg.RegNetParams()
	case cfg.SimNet:
		return chaincfg.SimNetParams()
	default:
		return chaincfg.MainNetParams()
	}
}
