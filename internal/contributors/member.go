package contributors

import (
	"strings"

	"github.com/google/uuid"
)

const (
	userKeyPrefix  = "user:"
	payerKeyPrefix = "payer:"
)

// UserMemberKey identifies a registered user within a group.
func UserMemberKey(userID uuid.UUID) string {
	return userKeyPrefix + userID.String()
}

// PayerMemberKey identifies an anonymous sender by the first non-empty identity
// the provider reported. It returns "" when nothing usable was supplied.
func PayerMemberKey(identities ...string) string {
	for _, id := range identities {
		id = strings.ToLower(strings.TrimSpace(id))
		if id != "" {
			return payerKeyPrefix + id
		}
	}
	return ""
}
