package sniper

import (
	"fmt"

	"zenith-bot-go/internal/models"
)

// SimBalance reads the current simulated wallet balance under the wallet
// lock, so callers never observe a balance mid-mutation.
func (s *Sniper) SimBalance() (float64, error) {
	s.walletMu.Lock()
	defer s.walletMu.Unlock()

	var wallet models.SimulationPortfolio
	if err := s.db.First(&wallet).Error; err != nil {
		return 0, fmt.Errorf("failed to load simulation wallet: %w", err)
	}
	return wallet.Balance, nil
}
