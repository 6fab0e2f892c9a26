package workers

import (
	"errors"

	"github.com/dmitrijs2005/fieldsync/internal/common"
)

func isNotFound(err error) bool {
	return errors.Is(err, common.ErrorNotFound)
}
