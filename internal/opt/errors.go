package opt

import (
	"errors"
	"fmt"
)

// ErrEmptyDataset is returned when there are no examples to average over.
var ErrEmptyDataset = errors.New("dataset is empty")

// ErrInvalidParam matches every *ParamError with errors.Is.
var ErrInvalidParam = errors.New("invalid parameter")

// ParamError reports a rejected hyperparameter.
type ParamError struct {
	Name   string
	Value  any
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Name, e.Value, e.Reason)
}

func (e *ParamError) Is(target error) bool {
	return target == ErrInvalidParam
}
