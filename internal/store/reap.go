package store

// ReapStaleProcessing rewrites any invoice whose credit is "processing" but
// whose last attempt is older than staleThreshold back to "pending" with a
// stale_processing annotation. It is a standalone
// pass so both the credit monitor's loop and an offline repair run can
// invoke it, the same shape as a reclaimPendingMessages sweep (Redis
// XAutoClaim) idle-message recovery in pkg/queue/redis.go.
func (s *Store) ReapStaleProcessing(now int64, staleThresholdSeconds int64) (int, error) {
	reaped := 0
	err := s.Mutate(func(doc *Document) error {
		for label, rec := range doc.Invoices {
			if rec.Credit.Status != CreditStatusProcessing {
				continue
			}
			if now-rec.Credit.LastAttemptAt < staleThresholdSeconds {
				continue
			}
			rec.Credit.Status = CreditStatusPending
			rec.Credit.LastError = "stale_processing"
			doc.Invoices[label] = rec
			reaped++
		}
		return nil
	})
	return reaped, err
}
