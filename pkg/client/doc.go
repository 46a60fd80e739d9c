// Package client is the Go SDK for the ZakatLedger HTTP API.
//
// It records donations and fetches everything an external auditor needs to
// check the ledger independently: the raw block chain, the Merkle root over
// all committed fingerprints and per-block inclusion proofs.
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	blocks, err := c.Blocks(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res := chain.Validate(blocks) // re-check locally, do not trust the server
//
// Admin-only routes need a token from AdminToken, attached with
// WithBearerToken or SetBearerToken.
package client
