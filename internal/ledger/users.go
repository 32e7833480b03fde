package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/celerix-dev/celerix-ledger/internal/resource"
	"github.com/celerix-dev/celerix-ledger/pkg/schema"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// pinCost is the bcrypt cost for user PINs. Tests lower it.
var pinCost = bcrypt.DefaultCost

const minPinLength = 4

// HashPin returns the bcrypt hash stored in place of a raw PIN.
func HashPin(pin string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), pinCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPin reports whether pin matches the stored hash.
func CheckPin(hash, pin string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

func validatePin(pin string) error {
	if len(pin) < minPinLength {
		return resource.Invalid("pin", ErrInvalidPin)
	}
	return nil
}

// SetPin replaces a user's PIN and ends their session. It acts as the seed
// identity so an operator can reset a PIN without logging in.
func (l *Ledger) SetPin(userID, pin string) error {
	if err := validatePin(pin); err != nil {
		return err
	}
	if !l.Users.Operations().Exist(userID) {
		return fmt.Errorf("%w: %q", resource.ErrNotExist, userID)
	}
	hash, err := HashPin(pin)
	if err != nil {
		return err
	}

	_, err = l.audit.Update(schema.Users, userID, func(current json.RawMessage) (any, error) {
		var u schema.User
		if err := json.Unmarshal(current, &u); err != nil {
			return nil, err
		}
		u.Pin = hash
		return u, nil
	}, schema.SeedIdentity)
	if err != nil {
		return err
	}

	l.Sessions.Revoke(userID)
	l.log.Info("pin changed", zap.String("user", userID))
	return nil
}
