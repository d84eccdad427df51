// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type ConversationID string
type GenerationID string

func NewGenerationID() GenerationID {
	return GenerationID(uuid.New().String())
}
