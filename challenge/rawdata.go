package challenge

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/ruteri/embedded-wallet-custody/interfaces"
)

// Canonical raw data is a wire-format contract shared with every signer:
// fields joined by "|" in a fixed order. Changing it invalidates every
// outstanding signature.
const (
	rawDataSeparator = "|"
	anonPrefix       = "ANON"

	// CreatedAtLayout is ISO 8601 in UTC with millisecond precision.
	CreatedAtLayout = "2006-01-02T15:04:05.000Z"
)

func formatCreatedAt(t time.Time) string {
	return t.UTC().Format(CreatedAtLayout)
}

func formatValue(v []byte) string {
	return base64.StdEncoding.EncodeToString(v)
}

// UserRawData builds the canonical bytes of a user-scoped challenge:
//
//	purpose|id|createdAt|value|version|session.id|session.ip|session.deviceNonce|session.userAgent|userId|walletId[|shareHash]
//
// Share-scoped purposes require shareHash. For the others it is omitted even
// if given.
func UserRawData(c *interfaces.Challenge, s *interfaces.Session, shareHash string) ([]byte, error) {
	if s == nil {
		return nil, ErrMissingSession
	}
	fields := []string{
		string(c.Purpose),
		c.ID,
		formatCreatedAt(c.CreatedAt),
		formatValue(c.Value),
		c.Version,
		s.ID,
		s.IP,
		s.DeviceNonce,
		s.UserAgent,
		c.UserID,
		c.WalletID,
	}
	if c.Purpose.ShareScoped() {
		if shareHash == "" {
			return nil, ErrMissingShareHash
		}
		fields = append(fields, shareHash)
	}
	return []byte(strings.Join(fields, rawDataSeparator)), nil
}

// AnonRawData builds the canonical bytes of an anonymous challenge:
//
//	ANON|purpose|id|createdAt|value|version|chain|address
func AnonRawData(c *interfaces.AnonChallenge) []byte {
	return []byte(strings.Join([]string{
		anonPrefix,
		string(c.Purpose),
		c.ID,
		formatCreatedAt(c.CreatedAt),
		formatValue(c.Value),
		c.Version,
		string(c.Chain),
		c.Address,
	}, rawDataSeparator))
}

// canonical provides the shared raw-data construction to every client.
type canonical struct{}

func (canonical) RawData(c *interfaces.Challenge, s *interfaces.Session, shareHash string) ([]byte, error) {
	return UserRawData(c, s, shareHash)
}

func (canonical) AnonRawData(c *interfaces.AnonChallenge) ([]byte, error) {
	return AnonRawData(c), nil
}
