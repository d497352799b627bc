package repository

import "errors"

// ErrConditionNotMet is returned by conditional updates whose WHERE guard matched no row.
var ErrConditionNotMet = errors.New("conditional update matched no rows")

func affectedOrStale(rows int64, err error) error {
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrConditionNotMet
	}
	return nil
}
