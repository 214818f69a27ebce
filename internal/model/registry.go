package model

// AllModels lists every table for AutoMigrate. New tables only need adding here.
func AllModels() []interface{} {
	return []interface{}{
		&Campaign{},
		&Pledge{},
		&PendingSubmission{},
		&OutboxMessage{},
	}
}
