package models

import (
	"errors"

	"bitbucket.org/mmtopup/recon_backend/utils"
	"gorm.io/gorm"
)

// translateNotFound maps gorm's sentinel onto the shared utils error so
// callers check one value without importing gorm themselves.
func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorRecordNotFound
	}
	return err
}
