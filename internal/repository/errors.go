package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/lib/pq"
	"github.com/rongwang/intentmarket/internal/models"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqConnectionClass     = "08"
)

// classify maps driver errors onto the model error kinds. Errors that already
// carry a kind pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		models.ErrInvalidArgument, models.ErrNotFound, models.ErrForbidden,
		models.ErrConflict, models.ErrStoreUnavailable,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == pqUniqueViolation, pqErr.Code == pqForeignKeyViolation:
			return fmt.Errorf("%w: %s: %s", models.ErrConflict, op, pqErr.Message)
		case pqErr.Code.Class() == pqConnectionClass:
			return fmt.Errorf("%w: %s: %v", models.ErrStoreUnavailable, op, err)
		}
	}

	var throttled *types.ProvisionedThroughputExceededException
	var internal *types.InternalServerError
	var limited *types.RequestLimitExceeded
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr) ||
		errors.As(err, &throttled) ||
		errors.As(err, &internal) ||
		errors.As(err, &limited) {
		return fmt.Errorf("%w: %s: %v", models.ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
