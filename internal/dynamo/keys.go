// Package dynamo provides shared DynamoDB constants and utilities.
package dynamo

import "time"

const (
	// Primary key attributes.
	AttrPK = "pk"
	AttrSK = "sk"

	// Key prefixes.
	PrefixProfile      = "PROFILE#"
	PrefixProfileEmail = "PROFILEEMAIL#"
	PrefixAuthUser     = "AUTHUSER#"
	PrefixMessage      = "MSG#"
	PrefixParticipant  = "PARTICIPANT#"
	PrefixReply        = "REPLY#"
	PrefixThread       = "THREAD#"
	PrefixAgent        = "AGENT#"
	PrefixEntry        = "ENTRY#"
	PrefixOwner        = "OWNER#"
	PrefixConversation = "CONV#"
	PrefixTurn         = "TURN#"

	// GSI key attributes.
	AttrGSI1PK = "gsi1pk"
	AttrGSI1SK = "gsi1sk"
	AttrGSI2PK = "gsi2pk"
	AttrGSI2SK = "gsi2sk"

	// Index names.
	IndexGSI1 = "gsi1"
	IndexGSI2 = "gsi2"

	// MaxTransactItems is the DynamoDB limit on items in one TransactWriteItems call.
	MaxTransactItems = 100
)

// sortTimeLayout is fixed width so that lexicographic order matches time order.
const sortTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SortTime formats t for use inside a sort key.
func SortTime(t time.Time) string {
	return t.UTC().Format(sortTimeLayout)
}

// ParseTime parses an RFC3339 timestamp attribute, returning the zero time on error.
func ParseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FormatTime formats a timestamp attribute.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
