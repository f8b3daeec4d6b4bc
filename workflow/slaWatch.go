package workflow

import (
	"time"

	"bitbucket.org/mmtopup/recon_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SLABreach reports one supplier whose settlement files have gone quiet.
type SLABreach struct {
	SupplierId   int        `json:"supplier_id"`
	SupplierCode string     `json:"supplier_code"`
	LastRunAt    *time.Time `json:"last_run_at"`
	AlertWorthy  bool       `json:"alert_worthy"`
}

// CheckSettlementSLA scans active suppliers for ones with no completed run
// inside maxAge. Breaches get a supplier-wide audit event (no run id) and go
// through the same DB-backed alert cooldown as run verdicts. Intended to run
// on a schedule (nightly) or via an admin trigger.
func CheckSettlementSLA(db *gorm.DB, logger *logrus.Logger, maxAge time.Duration, now time.Time) ([]SLABreach, error) {
	auditLog := models.NewAuditLog(db)

	suppliers, err := models.ListSuppliers(db, true)
	if err != nil {
		return nil, err
	}

	cutoff := now.Add(-maxAge)
	var breaches []SLABreach
	for i := range suppliers {
		s := &suppliers[i]

		var lastRun models.ReconciliationRun
		err := db.Where("supplier_id = ? AND status = ?", s.ID, models.RunStatusCompleted).
			Order("received_at desc").
			First(&lastRun).Error
		if err != nil && err != gorm.ErrRecordNotFound {
			return nil, err
		}

		var lastRunAt *time.Time
		if err == nil {
			t := lastRun.ReceivedAt
			lastRunAt = &t
			if !t.Before(cutoff) {
				continue
			}
		}

		alertWorthy, markErr := s.TryMarkAlerted(db, now)
		if markErr != nil {
			return nil, markErr
		}

		breach := SLABreach{
			SupplierId:   s.ID,
			SupplierCode: s.Code,
			LastRunAt:    lastRunAt,
			AlertWorthy:  alertWorthy,
		}
		breaches = append(breaches, breach)

		if _, err := auditLog.Append(models.AppendInput{
			SupplierId: s.ID,
			EventType:  models.AuditEventAlertDecision,
			ActorType:  models.ActorTypeSystem,
			EntityType: "supplier",
			EntityId:   s.Code,
			Payload:    breach,
		}); err != nil {
			return nil, err
		}

		logger.WithFields(logrus.Fields{
			"module":        "SLAWatch",
			"supplier_code": s.Code,
			"alert_worthy":  alertWorthy,
		}).Warn("settlement SLA breached")
	}

	return breaches, nil
}
