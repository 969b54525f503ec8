package models

import "github.com/google/uuid"

// ensureID assigns a v4 id when the caller has not chosen one. Postgres has a
// gen_random_uuid() default too, but ids are assigned in Go so rows created in
// a transaction can be referenced before commit.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
