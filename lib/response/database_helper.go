package response

import (
	"errors"

	"github.com/getevo/evo/v2/lib/log"
	"gorm.io/gorm"
)

// HandleDBError handles common database errors with consistent responses
// Returns nil if no error, otherwise returns appropriate error response
func HandleDBError(err error, notFoundMsg string, context string) any {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(notFoundMsg)
	}

	log.Error("%s: %v", context, err)
	return Error(ErrDatabaseError)
}
