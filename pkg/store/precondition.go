package store

import (
	"github.com/mnohosten/flamestore/pkg/value"
	"github.com/mnohosten/flamestore/pkg/wire"
)

// validatePrecondition rejects preconditions that set both variants
func validatePrecondition(pre *wire.Precondition) error {
	if pre == nil {
		return nil
	}
	if pre.Exists != nil && pre.UpdateTime != nil {
		return wire.InvalidArgument("precondition cannot set both exists and updateTime")
	}
	if pre.UpdateTime != nil {
		if _, err := value.ParseTime(*pre.UpdateTime); err != nil {
			return wire.InvalidArgument("precondition: %v", err)
		}
	}
	return nil
}

// checkPrecondition evaluates a precondition against the current document
// (nil when absent). A failure aborts the whole commit.
func checkPrecondition(pre *wire.Precondition, path string, cur *Document) error {
	if pre == nil {
		return nil
	}
	if pre.Exists != nil {
		if *pre.Exists && cur == nil {
			return wire.FailedPrecondition("document %q does not exist", path)
		}
		if !*pre.Exists && cur != nil {
			return wire.AlreadyExists("document %q already exists", path)
		}
		return nil
	}
	if pre.UpdateTime != nil {
		if cur == nil {
			return wire.FailedPrecondition("document %q does not exist", path)
		}
		want, err := value.ParseTime(*pre.UpdateTime)
		if err != nil {
			return wire.InvalidArgument("precondition: %v", err)
		}
		if !cur.UpdateTime.Equal(want) {
			return wire.FailedPrecondition("document %q was updated at %s, expected %s",
				path, value.FormatTime(cur.UpdateTime), *pre.UpdateTime)
		}
	}
	return nil
}
