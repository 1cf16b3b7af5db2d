package scraper

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/premiummeter/premiummeter/src/models"
)

// ExpiryMarker sweeps records whose expiration date has passed while their
// contract status is still active, flipping them to expired. Idempotent;
// running it twice in a row changes nothing the second time.
type ExpiryMarker struct {
	db    models.IDatabaseService
	nowFn func() time.Time
}

func NewExpiryMarker(db models.IDatabaseService) *ExpiryMarker {
	return &ExpiryMarker{
		db:    db,
		nowFn: time.Now,
	}
}

func (m *ExpiryMarker) MarkExpired() (int64, error) {
	count, err := m.db.MarkExpiredContracts(m.nowFn())
	if err != nil {
		return 0, fmt.Errorf("ExpiryMarker.MarkExpired: %w", err)
	}

	if count > 0 {
		log.Infof("ExpiryMarker: marked %d contracts expired", count)
	} else {
		log.Debug("ExpiryMarker: no contracts to expire")
	}

	return count, nil
}
