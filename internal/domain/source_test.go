package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSource(t *testing.T) {
	assert.Empty(t, SourceFrom(context.Background()))
	assert.Equal(t, SourceScheduler, SourceFrom(WithSource(context.Background(), SourceScheduler)))
}
