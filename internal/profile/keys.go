package profile

import "github.com/ryandotelliott/dead-internet/internal/dynamo"

const (
	skProfile      = "PROFILE"
	skProfileEmail = "PROFILEEMAIL"
	skAuthUser     = "AUTHUSER"
)

// PK returns the partition key for this profile.
func (p *Profile) PK() string {
	return dynamo.PrefixProfile + p.ID
}

// SK returns the sort key for this profile.
func (p *Profile) SK() string {
	return skProfile
}

// emailLockPK returns the partition key of the item that reserves an address.
func emailLockPK(email string) string {
	return dynamo.PrefixProfileEmail + email
}

// authUserPK returns the partition key of the auth user lookup item.
func authUserPK(authUserID string) string {
	return dynamo.PrefixAuthUser + authUserID
}
