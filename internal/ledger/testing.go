package ledger

// SeedBalance is a test helper that seeds a balance when using the in-memory ledger.
func SeedBalance(l Ledger, owner, currency string, amount int64) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.walletFor(owner).balances[currency] = amount
	}
}

// SetFrozen is a test helper that toggles the frozen flag on an in-memory wallet.
func SetFrozen(l Ledger, owner string, frozen bool) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.walletFor(owner).isFrozen = frozen
	}
}
