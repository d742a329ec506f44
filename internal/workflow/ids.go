package workflow

import "github.com/google/uuid"

func NewRunID() string {
	return "run_" + uuid.NewString()
}
