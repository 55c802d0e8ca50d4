package core

// Logger is any service that can log messages and report errors.
// expected args: error, map[string]interface{} (extras), Actor (who the report is about)
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
)

// Actor is the signed-in user behind a logged event.
type Actor struct {
	UserID    string
	Email     string
	SessionID string
	Role      string // RoleAdmin, RoleStudent or empty when unknown
}
