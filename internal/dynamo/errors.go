package dynamo

import (
	"github.com/jarrod-lowe/jmap-service-libs/dbclient"
)

// IsConditionFailed reports whether err is a failed condition expression on a
// single-item write.
func IsConditionFailed(err error) bool {
	return dbclient.IsConditionalCheckFailed(err)
}

// CanceledByCondition reports whether err is a cancelled transaction in which
// the item at index failed its condition expression.
func CanceledByCondition(err error, index int) bool {
	for _, r := range dbclient.GetTransactionCancellationReasons(err) {
		if r.Index == index {
			return r.Code == "ConditionalCheckFailed"
		}
	}
	return false
}
