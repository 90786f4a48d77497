package web

import (
	"context"
	"log"
	"time"
)

// StartSessionCleanup starts a background goroutine to clean up expired sessions
// until ctx is done
func (s *Server) StartSessionCleanup(ctx context.Context) {
	interval := s.sessions.cfg.CleanupInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.db.CleanupExpiredSessions(ctx); err != nil {
					log.Printf("[SESSION]: Error cleaning up expired sessions: %v", err)
				}
			}
		}
	}()

	log.Printf("[SESSION]: Started session cleanup background task (every %s)", interval)
}
