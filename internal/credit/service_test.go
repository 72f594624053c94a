package credit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/fnordcredit/fnordcredit/pkg/jsondb"
	"github.com/fnordcredit/fnordcredit/pkg/log"
)

type captureLogger struct {
	mu    sync.Mutex
	infos []string
	warns []string
}

func (c *captureLogger) Debug(string, ...log.Field) {}
func (c *captureLogger) Error(string, ...log.Field) {}

func (c *captureLogger) Info(msg string, _ ...log.Field) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.infos = append(c.infos, msg)
}

func (c *captureLogger) Warn(msg string, _ ...log.Field) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warns = append(c.warns, msg)
}

func newService(t *testing.T, content string) (*Service, *jsondb.Store, *captureLogger) {
	t.Helper()
	store, err := jsondb.New(jsondb.Config{StorageFilePrefix: "db"})
	if err != nil {
		t.Fatal(err)
	}
	if content != "" {
		if err := store.LoadFromString(content); err != nil {
			t.Fatal(err)
		}
	}
	logger := &captureLogger{}
	return NewService(store, logger), store, logger
}

func wantStatus(t *testing.T, err error, status int) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want status %d", status)
	}
	if got := StatusOf(err); got != status {
		t.Fatalf("StatusOf(%v) = %d, want %d", err, got, status)
	}
}

func TestService_NotLoaded(t *testing.T) {
	svc, _, _ := newService(t, "")

	_, err := svc.ListUsernames()
	wantStatus(t, err, http.StatusServiceUnavailable)
	_, err = svc.AddUser("alice")
	wantStatus(t, err, http.StatusServiceUnavailable)
	_, err = svc.Credit("alice")
	wantStatus(t, err, http.StatusServiceUnavailable)
	_, err = svc.UpdateCredit(Update{Username: "alice", Method: MethodDelta, Amount: 1.0})
	wantStatus(t, err, http.StatusServiceUnavailable)

	if err.Error() != "Database not loaded" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestService_AddUser(t *testing.T) {
	svc, store, logger := newService(t, `{}`)

	got, err := svc.AddUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	if got["created"] != "alice" {
		t.Errorf("AddUser() = %v", got)
	}
	if !store.Dirty() {
		t.Error("AddUser did not mark the store dirty")
	}
	if len(logger.infos) != 1 || logger.infos[0] != `[addUser] New user created: "alice"` {
		t.Errorf("infos = %v", logger.infos)
	}

	credit, err := svc.Credit("alice")
	if err != nil {
		t.Fatal(err)
	}
	if n, ok := toNumber(credit); !ok || n != 0 {
		t.Errorf("credit = %v, want 0", credit)
	}

	_, err = svc.AddUser("alice")
	wantStatus(t, err, http.StatusConflict)
}

func TestService_UsernameChecks(t *testing.T) {
	tests := []struct {
		name     string
		username any
		status   int
	}{
		{"missing", nil, http.StatusNotAcceptable},
		{"empty", "", http.StatusNotAcceptable},
		{"number", 42.0, http.StatusNotImplemented},
		{"object", map[string]any{"a": 1}, http.StatusNotImplemented},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newService(t, `{}`)
			_, err := svc.AddUser(tt.username)
			wantStatus(t, err, tt.status)
			_, err = svc.Credit(tt.username)
			wantStatus(t, err, tt.status)
		})
	}
}

func TestService_ListUsernames(t *testing.T) {
	svc, store, _ := newService(t, `{
		"~zoe": {"name": "zoe", "credit": 1},
		"~adam": {"name": "adam", "credit": 2},
		"bob": {"name": "bob", "credit": 3},
		"settings": "not a record"
	}`)

	names, err := svc.ListUsernames()
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(names, ","); got != "adam,bob,zoe" {
		t.Errorf("ListUsernames() = %v", names)
	}
	if store.Dirty() {
		t.Error("listing marked the store dirty")
	}

	empty, _, _ := newService(t, `{}`)
	names, err = empty.ListUsernames()
	if err != nil || names == nil || len(names) != 0 {
		t.Errorf("ListUsernames() on empty db = %#v, %v", names, err)
	}
}

func TestService_Credit(t *testing.T) {
	svc, store, _ := newService(t, `{"~alice": {"name": "alice", "credit": 12.5}}`)

	credit, err := svc.Credit("alice")
	if err != nil {
		t.Fatal(err)
	}
	if credit != json.Number("12.5") {
		t.Errorf("credit = %#v", credit)
	}
	if store.Dirty() {
		t.Error("reading credit marked the store dirty")
	}

	_, err = svc.Credit("bob")
	wantStatus(t, err, http.StatusNotFound)
}

func TestService_UpdateCredit(t *testing.T) {
	svc, store, logger := newService(t, `{"~alice": {"name": "alice", "credit": 10}}`)

	rec, err := svc.UpdateCredit(Update{Username: "alice", Method: MethodDelta, Amount: -2.5})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Name != "alice" || rec.Credit != "7.5" {
		t.Errorf("record = %+v", rec)
	}
	if !store.Dirty() {
		t.Error("update did not mark the store dirty")
	}
	want := `[userCredits] Changed credit for user "alice" by -2.5 from 10 to 7.5`
	if len(logger.infos) != 1 || logger.infos[0] != want {
		t.Errorf("infos = %v", logger.infos)
	}

	rec, err = svc.UpdateCredit(Update{Username: "alice", Method: MethodDelta, Amount: json.Number("3")})
	if err != nil || rec.Credit != "10.5" {
		t.Errorf("second update = %+v, %v", rec, err)
	}
}

func TestService_UpdateCreditKeepsIntegerPrecision(t *testing.T) {
	svc, store, logger := newService(t, `{"~alice": {"name": "alice", "credit": 9007199254740993}}`)

	rec, err := svc.UpdateCredit(Update{Username: "alice", Method: MethodDelta, Amount: json.Number("2")})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Credit != "9007199254740995" {
		t.Errorf("credit = %s, want 9007199254740995", rec.Credit)
	}

	want := `[userCredits] Changed credit for user "alice" by 2 from 9007199254740993 to 9007199254740995`
	if len(logger.infos) != 1 || logger.infos[0] != want {
		t.Errorf("infos = %v", logger.infos)
	}

	credit, err := svc.Credit("alice")
	if err != nil {
		t.Fatal(err)
	}
	if credit != json.Number("9007199254740995") {
		t.Errorf("stored credit = %#v", credit)
	}
	if !store.Dirty() {
		t.Error("update did not mark the store dirty")
	}
}

func TestService_UpdateCreditOutOfRange(t *testing.T) {
	svc, store, _ := newService(t, `{"~alice": {"name": "alice", "credit": 1.7e308}}`)

	_, err := svc.UpdateCredit(Update{Username: "alice", Method: MethodDelta, Amount: 1.7e308})
	if !errors.Is(err, ErrCreditRange) {
		t.Fatalf("error = %v, want ErrCreditRange", err)
	}
	if store.Dirty() {
		t.Error("rejected update marked the store dirty")
	}

	credit, _ := svc.Credit("alice")
	if credit != json.Number("1.7e308") {
		t.Errorf("stored credit = %#v", credit)
	}
}

func TestService_UpdateCreditRejects(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		upd    Update
		status int
		reason string
	}{
		{
			name:   "unknown user",
			doc:    `{}`,
			upd:    Update{Username: "bob", Method: MethodDelta, Amount: 1.0},
			status: http.StatusNotFound,
			reason: "Username not found",
		},
		{
			name:   "unknown method",
			doc:    `{"~bob": {"name": "bob", "credit": 1}}`,
			upd:    Update{Username: "bob", Method: "set", Amount: 1.0},
			status: http.StatusNotImplemented,
			reason: "Unsupported credits update method",
		},
		{
			name:   "string amount",
			doc:    `{"~bob": {"name": "bob", "credit": 1}}`,
			upd:    Update{Username: "bob", Method: MethodDelta, Amount: "5"},
			status: http.StatusNotImplemented,
			reason: `Unsupported field type {"fieldName":"amount", "receivedType": "string", "expectedType": "number"}`,
		},
		{
			name:   "missing amount",
			doc:    `{"~bob": {"name": "bob", "credit": 1}}`,
			upd:    Update{Username: "bob", Method: MethodDelta},
			status: http.StatusNotImplemented,
			reason: `Unsupported field type {"fieldName":"amount", "receivedType": "undefined", "expectedType": "number"}`,
		},
		{
			name:   "corrupt stored credit",
			doc:    `{"~bob": {"name": "bob", "credit": "lots"}}`,
			upd:    Update{Username: "bob", Method: MethodDelta, Amount: 1.0},
			status: http.StatusNotImplemented,
			reason: `Unsupported field type {"fieldName":"db:userRec:credit", "receivedType": "string", "expectedType": "number"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newService(t, tt.doc)
			_, err := svc.UpdateCredit(tt.upd)
			wantStatus(t, err, tt.status)
			if err.Error() != tt.reason {
				t.Errorf("reason = %q, want %q", err.Error(), tt.reason)
			}
			if store.Dirty() {
				t.Error("rejected update marked the store dirty")
			}
		})
	}
}

func TestService_MigratesLegacyRecords(t *testing.T) {
	svc, store, logger := newService(t, `{"bob": {"name": "bob", "credit": 5}}`)

	credit, err := svc.Credit("bob")
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := toNumber(credit); n != 5 {
		t.Errorf("credit = %v, want 5", credit)
	}
	if len(logger.warns) != 1 || logger.warns[0] != "DB Upgrade: added prefix for username: bob" {
		t.Errorf("warns = %v", logger.warns)
	}
	if !store.Dirty() {
		t.Error("migration was not marked dirty")
	}

	if err := store.SaveToFile(context.Background(), t.TempDir()+"/db.json"); err != nil {
		t.Fatal(err)
	}
	_ = store.View(func(doc any) error {
		db := doc.(map[string]any)
		if _, ok := db["bob"]; ok {
			t.Error("legacy key still present")
		}
		if _, ok := db["~bob"]; !ok {
			t.Error("prefixed key missing")
		}
		return nil
	})

	_, err = svc.AddUser("bob")
	wantStatus(t, err, http.StatusConflict)
}

func TestService_AddUserOverLegacyRecordMigrates(t *testing.T) {
	svc, store, _ := newService(t, `{"bob": {"name": "bob", "credit": 5}}`)

	_, err := svc.AddUser("bob")
	wantStatus(t, err, http.StatusConflict)
	if !store.Dirty() {
		t.Error("migration during AddUser was not marked dirty")
	}
}

func TestService_NonObjectDocument(t *testing.T) {
	svc, _, _ := newService(t, `[1, 2]`)

	_, err := svc.AddUser("alice")
	wantStatus(t, err, http.StatusInternalServerError)
	if !errors.Is(err, errNotObject) {
		t.Errorf("error = %v, want errNotObject", err)
	}
	_, err = svc.ListUsernames()
	wantStatus(t, err, http.StatusInternalServerError)
}
