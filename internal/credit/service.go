// Package credit keeps per-user credit balances inside a jsondb document.
//
// Each user is a record {"name": ..., "credit": ...} stored under the key
// "~" + name in the document's top-level object. Records written by older
// versions under the bare name are moved to the prefixed key on first access.
package credit

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"

	"github.com/fnordcredit/fnordcredit/pkg/log"
)

// KeyPrefix keeps user keys apart from anything else in the document.
const KeyPrefix = "~"

// MethodDelta adds Amount to the current credit.
const MethodDelta = "delta"

// Store is the document access the service needs. *jsondb.Store satisfies it.
type Store interface {
	Loaded() bool
	View(fn func(doc any) error) error
	Update(fn func(doc any) error) error
}

// Record is one user's balance. Credit keeps the number as stored, so
// integer balances of any size survive an update digit for digit.
type Record struct {
	Name   string      `json:"name"`
	Credit json.Number `json:"credit"`
}

// Update describes a credit change.
type Update struct {
	Username any
	Method   string
	Amount   any
}

// Service implements the user operations of the credit API.
type Service struct {
	store  Store
	logger log.Logger
}

func NewService(store Store, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Service{store: store, logger: logger}
}

var errNotObject = errors.New("credit: document root is not an object")

// errNoChange aborts an Update without marking the store dirty.
var errNoChange = errors.New("no change")

// ListUsernames returns the names of all records, sorted.
func (s *Service) ListUsernames() ([]string, error) {
	if !s.store.Loaded() {
		return nil, ErrNotLoaded
	}
	names := []string{}
	err := s.store.View(func(doc any) error {
		db, ok := doc.(map[string]any)
		if !ok {
			return errNotObject
		}
		for _, v := range db {
			rec, ok := v.(map[string]any)
			if !ok {
				continue
			}
			if name, ok := rec["name"].(string); ok {
				names = append(names, name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.storeErr(err)
	}
	sort.Strings(names)
	return names, nil
}

// AddUser creates a record with zero credit.
func (s *Service) AddUser(username any) (map[string]string, error) {
	name, err := s.checkCommon(username)
	if err != nil {
		return nil, err
	}

	var exists bool
	err = s.store.Update(func(doc any) error {
		db, ok := doc.(map[string]any)
		if !ok {
			return errNotObject
		}
		if rec, migrated := s.find(db, name); rec != nil {
			exists = true
			if migrated {
				return nil
			}
			return errNoChange
		}
		db[KeyPrefix+name] = map[string]any{"name": name, "credit": json.Number("0")}
		return nil
	})
	if exists {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, s.storeErr(err)
	}

	s.logger.Info("[addUser] New user created: " + strconv.Quote(name))
	return map[string]string{"created": name}, nil
}

// Credit returns the user's current credit.
func (s *Service) Credit(username any) (any, error) {
	name, err := s.checkCommon(username)
	if err != nil {
		return nil, err
	}

	var credit any
	err = s.access(name, func(rec map[string]any) error {
		credit = rec["credit"]
		return errNoChange
	})
	if err != nil {
		return nil, err
	}
	return credit, nil
}

// UpdateCredit applies upd and returns the updated record.
func (s *Service) UpdateCredit(upd Update) (*Record, error) {
	name, err := s.checkCommon(upd.Username)
	if err != nil {
		return nil, err
	}

	var out *Record
	err = s.access(name, func(rec map[string]any) error {
		old, ok := toNumber(rec["credit"])
		if !ok {
			return fieldTypeError("db:userRec:credit", rec["credit"], "number")
		}
		if upd.Method != MethodDelta {
			return ErrUnsupportedMode
		}
		amount, ok := toNumber(upd.Amount)
		if !ok {
			return fieldTypeError("amount", upd.Amount, "number")
		}

		credit, err := addNumbers(rec["credit"], upd.Amount, old, amount)
		if err != nil {
			return err
		}
		s.logger.Info(fmt.Sprintf("[userCredits] Changed credit for user %s by %s from %s to %s",
			strconv.Quote(name), numberText(upd.Amount, amount), numberText(rec["credit"], old), credit))
		rec["credit"] = credit
		out = &Record{Name: name, Credit: credit}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// access finds the record for name and runs fn on it under the store lock.
// The store is marked dirty when fn succeeds or a legacy record was moved.
func (s *Service) access(name string, fn func(rec map[string]any) error) error {
	var fnErr error
	err := s.store.Update(func(doc any) error {
		db, ok := doc.(map[string]any)
		if !ok {
			return errNotObject
		}
		rec, migrated := s.find(db, name)
		if rec == nil {
			return ErrUserNotFound
		}
		fnErr = fn(rec)
		if fnErr != nil && !migrated {
			return errNoChange
		}
		return nil
	})
	if fnErr != nil {
		if errors.Is(fnErr, errNoChange) {
			return nil
		}
		return fnErr
	}
	return s.storeErr(err)
}

// find returns the record for name, moving a legacy record under the
// prefixed key.
func (s *Service) find(db map[string]any, name string) (rec map[string]any, migrated bool) {
	if rec, ok := db[KeyPrefix+name].(map[string]any); ok {
		return rec, false
	}
	rec, ok := db[name].(map[string]any)
	if !ok {
		return nil, false
	}
	delete(db, name)
	db[KeyPrefix+name] = rec
	s.logger.Warn("DB Upgrade: added prefix for username: " + name)
	return rec, true
}

func (s *Service) checkCommon(username any) (string, error) {
	if !s.store.Loaded() {
		return "", ErrNotLoaded
	}
	if username == nil || username == "" {
		return "", ErrNoUsername
	}
	name, ok := username.(string)
	if !ok {
		return "", ErrUsernameFormat
	}
	return name, nil
}

// storeErr maps store failures to API errors.
func (s *Service) storeErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}
	if !s.store.Loaded() {
		return ErrNotLoaded
	}
	return err
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// addNumbers sums two JSON numbers. Integers are added exactly; anything
// else goes through float64 like the rest of JSON arithmetic.
func addNumbers(a, b any, fa, fb float64) (json.Number, error) {
	if x, ok := toBigInt(a); ok {
		if y, ok := toBigInt(b); ok {
			return json.Number(x.Add(x, y).String()), nil
		}
	}
	sum := fa + fb
	if math.IsInf(sum, 0) || math.IsNaN(sum) {
		return "", ErrCreditRange
	}
	return json.Number(formatNumber(sum)), nil
}

func toBigInt(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case json.Number:
		return new(big.Int).SetString(n.String(), 10)
	case int:
		return big.NewInt(int64(n)), true
	case int64:
		return big.NewInt(n), true
	default:
		return nil, false
	}
}

// numberText renders v with all its digits when it is an integer.
func numberText(v any, f float64) string {
	if n, ok := toBigInt(v); ok {
		return n.String()
	}
	return formatNumber(f)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// jsonType names the JSON type of v the way a JavaScript typeof would.
func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "undefined"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, float32, int, int64:
		return "number"
	default:
		return "object"
	}
}
