package resolver

import "simkyc/internal/kyc/models"

// SelectBest picks the verification a status query should report for one
// service request. Attempts the provider has touched beat placeholders that
// were started and never progressed; among those the most recently updated
// wins, ties broken by id. With no progressed attempt the newest one is used.
func SelectBest(list []*models.Verification) *models.Verification {
	var best, newest *models.Verification
	for _, v := range list {
		if v == nil {
			continue
		}
		if newest == nil || v.ID > newest.ID {
			newest = v
		}
		if !v.HasProgressed() {
			continue
		}
		if best == nil || v.UpdatedAt.After(best.UpdatedAt) ||
			(v.UpdatedAt.Equal(best.UpdatedAt) && v.ID > best.ID) {
			best = v
		}
	}
	if best != nil {
		return best
	}
	return newest
}
